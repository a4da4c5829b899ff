package vault

import (
	"context"
	"fmt"

	"hoard/internal/config"
	"hoard/internal/core"
)

// NewVaultFromConfig creates a Vault implementation based on the mirror
// config type. When encrypt is set, the vault is wrapped so content is
// age-encrypted before upload. An empty type returns nil: mirroring is
// disabled.
func NewVaultFromConfig(ctx context.Context, cfg config.MirrorConfig, encryptor core.Encryptor) (Vault, error) {
	var (
		v   Vault
		err error
	)

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		v = NewMemoryVault(cfg.Name)
	case "s3":
		v, err = NewS3Vault(ctx, cfg)
	case "filesystem":
		if cfg.FSMirrorRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_mirror_root to be set")
		}
		v, err = NewFileSystemVault(cfg.Name, cfg.FSMirrorRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Encrypt {
		if encryptor == nil {
			return nil, fmt.Errorf("mirror encryption enabled but no encryptor configured")
		}
		v = NewEncryptingVault(v, encryptor)
	}
	return v, nil
}
