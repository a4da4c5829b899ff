package database

import (
	"fmt"
	"path/filepath"

	"hoard/internal/config"
)

// NewJournalFromConfig creates a Journal based on the database config type.
func NewJournalFromConfig(cfg config.DatabaseConfig) (*Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewJournal(filepath.Join(cfg.DataDir, "journal.db"))
	case "memory":
		return NewJournal(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
