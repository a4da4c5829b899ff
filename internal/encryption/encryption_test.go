package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"hoard/internal/config"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	e := NewTestEncryptor()
	plaintext := []byte("not actually secret")

	var ciphertext bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext equals plaintext")
	}

	dc, err := e.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var decrypted bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestTestDecryptionContext_RejectsBadHeader(t *testing.T) {
	dc := &TestDecryptionContext{}
	var out bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader([]byte("WRONGHDRdata")), &out); err == nil {
		t.Fatal("Decrypt() error = nil, want invalid header error")
	}
}

func newAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "hoard.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "hoard.key"),
	})
}

func TestAgeEncryptor_Setup(t *testing.T) {
	e := newAgeEncryptor(t)

	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup")
	}
	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Fatal("IsConfigured() = false after Setup")
	}

	pub, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		t.Fatalf("reading public key: %v", err)
	}
	if !bytes.HasPrefix(pub, []byte("age1")) {
		t.Errorf("public key = %q, want age1 recipient", pub)
	}

	priv, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		t.Fatalf("reading private key: %v", err)
	}
	if bytes.Contains(priv, []byte("AGE-SECRET-KEY-")) {
		t.Error("private key stored in plaintext")
	}
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	e := newAgeEncryptor(t)
	if err := e.Setup("pass123"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	plaintext := []byte("archived media bytes")
	var ciphertext bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext.Bytes(), plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	dc, err := e.Unlock("pass123")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var decrypted bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestAgeEncryptor_UnlockWrongPassphrase(t *testing.T) {
	e := newAgeEncryptor(t)
	if err := e.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := e.Unlock("wrong"); err == nil {
		t.Fatal("Unlock() error = nil for wrong passphrase")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ      string
		wantType string
		wantErr  bool
	}{
		{"", "*encryption.AgeEncryptor", false},
		{"age", "*encryption.AgeEncryptor", false},
		{"test", "*encryption.TestEncryptor", false},
		{"rot13", "", true},
	}
	for _, tt := range tests {
		t.Run("type "+tt.typ, func(t *testing.T) {
			e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewEncryptorFromConfig() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig() error = %v", err)
			}
			switch e.(type) {
			case *AgeEncryptor:
				if tt.wantType != "*encryption.AgeEncryptor" {
					t.Errorf("encryptor = %T, want %s", e, tt.wantType)
				}
			case *TestEncryptor:
				if tt.wantType != "*encryption.TestEncryptor" {
					t.Errorf("encryptor = %T, want %s", e, tt.wantType)
				}
			default:
				t.Errorf("unexpected encryptor type %T", e)
			}
		})
	}
}
