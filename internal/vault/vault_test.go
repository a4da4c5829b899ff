package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hoard/internal/config"
	"hoard/internal/encryption"
)

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestMemoryVault(t *testing.T) {
	ctx := context.Background()

	t.Run("put and get round trip", func(t *testing.T) {
		v := NewMemoryVault("test")
		data := []byte("hello vault")
		d := digestOf(data)

		if err := v.PutContent(ctx, d, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		var out bytes.Buffer
		if err := v.GetContent(ctx, d, &out); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if !bytes.Equal(out.Bytes(), data) {
			t.Errorf("GetContent() = %q, want %q", out.Bytes(), data)
		}
	})

	t.Run("put is idempotent", func(t *testing.T) {
		v := NewMemoryVault("test")
		data := []byte("same content")
		d := digestOf(data)

		for i := 0; i < 2; i++ {
			if err := v.PutContent(ctx, d, bytes.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutContent() #%d error = %v", i+1, err)
			}
		}
		if v.Len() != 1 {
			t.Errorf("Len() = %d, want 1", v.Len())
		}
	})

	t.Run("size mismatch rejected", func(t *testing.T) {
		v := NewMemoryVault("test")
		data := []byte("short")
		err := v.PutContent(ctx, digestOf(data), bytes.NewReader(data), 999)
		if err == nil {
			t.Fatal("PutContent() error = nil, want size mismatch")
		}
	})

	t.Run("get missing digest fails", func(t *testing.T) {
		v := NewMemoryVault("test")
		var out bytes.Buffer
		if err := v.GetContent(ctx, "deadbeef", &out); err == nil {
			t.Fatal("GetContent() error = nil, want not found")
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := NewMemoryVault("test").ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestFileSystemVault(t *testing.T) {
	ctx := context.Background()

	t.Run("put and get round trip", func(t *testing.T) {
		v, err := NewFileSystemVault("local", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		data := []byte("file content")
		d := digestOf(data)
		if err := v.PutContent(ctx, d, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		var out bytes.Buffer
		if err := v.GetContent(ctx, d, &out); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if !bytes.Equal(out.Bytes(), data) {
			t.Errorf("GetContent() = %q, want %q", out.Bytes(), data)
		}
	})

	t.Run("put existing digest skips write", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("local", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		data := []byte("stored once")
		d := digestOf(data)
		if err := v.PutContent(ctx, d, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("first PutContent() error = %v", err)
		}
		if err := v.PutContent(ctx, d, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("second PutContent() error = %v", err)
		}

		entries, err := os.ReadDir(filepath.Join(root, "content"))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("content dir entries = %d, want 1", len(entries))
		}
	})

	t.Run("size mismatch leaves no file", func(t *testing.T) {
		root := t.TempDir()
		v, err := NewFileSystemVault("local", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		data := []byte("short")
		d := digestOf(data)
		if err := v.PutContent(ctx, d, bytes.NewReader(data), 999); err == nil {
			t.Fatal("PutContent() error = nil, want size mismatch")
		}
		if _, err := os.Stat(filepath.Join(root, "content", d)); !os.IsNotExist(err) {
			t.Error("partial content left behind")
		}
	})

	t.Run("validate setup fails when root removed", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "mirror")
		v, err := NewFileSystemVault("local", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := v.ValidateSetup(ctx); err != nil {
			t.Fatalf("ValidateSetup() error = %v", err)
		}

		if err := os.RemoveAll(root); err != nil {
			t.Fatal(err)
		}
		if err := v.ValidateSetup(ctx); err == nil {
			t.Error("ValidateSetup() error = nil after root removed")
		}
	})
}

func TestEncryptingVault(t *testing.T) {
	ctx := context.Background()

	t.Run("stores ciphertext under plaintext digest", func(t *testing.T) {
		inner := NewMemoryVault("inner")
		v := NewEncryptingVault(inner, encryption.NewTestEncryptor())

		data := []byte("secret media")
		d := digestOf(data)
		if err := v.PutContent(ctx, d, bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		if !inner.Has(d) {
			t.Fatal("inner vault has no object under the plaintext digest")
		}

		var stored bytes.Buffer
		if err := inner.GetContent(ctx, d, &stored); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if bytes.Equal(stored.Bytes(), data) {
			t.Error("stored bytes equal plaintext, want ciphertext")
		}

		dc, err := encryption.NewTestEncryptor().Unlock("")
		if err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
		var plain bytes.Buffer
		if err := dc.Decrypt(bytes.NewReader(stored.Bytes()), &plain); err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(plain.Bytes(), data) {
			t.Errorf("decrypted = %q, want %q", plain.Bytes(), data)
		}
	})

	t.Run("validate setup requires configured keys", func(t *testing.T) {
		enc := encryption.NewAgeEncryptor(config.EncryptionConfig{
			PublicKeyPath:  filepath.Join(t.TempDir(), "missing.pub"),
			PrivateKeyPath: filepath.Join(t.TempDir(), "missing.key"),
		})
		v := NewEncryptingVault(NewMemoryVault("inner"), enc)
		err := v.ValidateSetup(ctx)
		if err == nil || !strings.Contains(err.Error(), "keys") {
			t.Errorf("ValidateSetup() error = %v, want missing-keys error", err)
		}
	})
}

func TestNewVaultFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("empty type disables mirroring", func(t *testing.T) {
		v, err := NewVaultFromConfig(ctx, config.MirrorConfig{}, nil)
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if v != nil {
			t.Errorf("vault = %T, want nil", v)
		}
	})

	t.Run("memory", func(t *testing.T) {
		v, err := NewVaultFromConfig(ctx, config.MirrorConfig{Type: "memory", Name: "m"}, nil)
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*MemoryVault); !ok {
			t.Errorf("vault = %T, want *MemoryVault", v)
		}
	})

	t.Run("filesystem requires root", func(t *testing.T) {
		_, err := NewVaultFromConfig(ctx, config.MirrorConfig{Type: "filesystem"}, nil)
		if err == nil {
			t.Fatal("NewVaultFromConfig() error = nil, want error for missing root")
		}
	})

	t.Run("encrypt wraps the vault", func(t *testing.T) {
		cfg := config.MirrorConfig{Type: "memory", Encrypt: true}
		v, err := NewVaultFromConfig(ctx, cfg, encryption.NewTestEncryptor())
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*EncryptingVault); !ok {
			t.Errorf("vault = %T, want *EncryptingVault", v)
		}
	})

	t.Run("encrypt without encryptor fails", func(t *testing.T) {
		cfg := config.MirrorConfig{Type: "memory", Encrypt: true}
		if _, err := NewVaultFromConfig(ctx, cfg, nil); err == nil {
			t.Fatal("NewVaultFromConfig() error = nil, want error")
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		if _, err := NewVaultFromConfig(ctx, config.MirrorConfig{Type: "tape"}, nil); err == nil {
			t.Fatal("NewVaultFromConfig() error = nil, want error")
		}
	})
}
