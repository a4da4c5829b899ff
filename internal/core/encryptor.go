package core

import "io"

// Encryptor encrypts content before it leaves the local archive for a
// mirror. Setup generates key material protected by the passphrase;
// Encrypt only needs the public half.
type Encryptor interface {
	Setup(passphrase string) error
	Encrypt(r io.Reader, w io.Writer) error
	Unlock(passphrase string) (DecryptionContext, error)
	IsConfigured() bool
}

// DecryptionContext holds unlocked key material for decrypting mirrored
// content.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
