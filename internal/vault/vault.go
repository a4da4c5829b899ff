package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"hoard/internal/core"
)

// Vault stores archived content in a secondary location, keyed by content
// digest. Every implementation satisfies core.Mirror; the extra methods
// support restore and setup checks.
type Vault interface {
	core.Mirror

	// GetContent retrieves content by digest and writes it to w.
	GetContent(ctx context.Context, digest string, w io.Writer) error

	// ValidateSetup verifies the backing store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// EncryptingVault wraps a Vault and encrypts content before it is stored.
// Content keys are unchanged: objects live under the digest of the
// plaintext, so duplicate detection still works against the local index.
type EncryptingVault struct {
	inner     Vault
	encryptor core.Encryptor
}

var _ Vault = (*EncryptingVault)(nil)

// NewEncryptingVault wraps inner so that all stored content passes through
// encryptor first.
func NewEncryptingVault(inner Vault, encryptor core.Encryptor) *EncryptingVault {
	return &EncryptingVault{inner: inner, encryptor: encryptor}
}

// PutContent encrypts the content and stores the ciphertext under the
// plaintext digest. The ciphertext is buffered because its size is not
// known until encryption finishes.
func (v *EncryptingVault) PutContent(ctx context.Context, digest string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if err := v.encryptor.Encrypt(r, &buf); err != nil {
		return fmt.Errorf("encrypting content %s: %w", digest, err)
	}
	return v.inner.PutContent(ctx, digest, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
}

// GetContent retrieves the ciphertext. Decryption requires an unlocked
// DecryptionContext and is left to the caller.
func (v *EncryptingVault) GetContent(ctx context.Context, digest string, w io.Writer) error {
	return v.inner.GetContent(ctx, digest, w)
}

func (v *EncryptingVault) ValidateSetup(ctx context.Context) error {
	if !v.encryptor.IsConfigured() {
		return fmt.Errorf("mirror encryption enabled but keys are not set up")
	}
	return v.inner.ValidateSetup(ctx)
}
