package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for hoard.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Downloads  DownloadsConfig  `toml:"downloads"`
	Sweep      SweepConfig      `toml:"sweep"`
	Mirror     MirrorConfig     `toml:"mirror"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
}

// DownloadsConfig holds settings for the download pipeline.
type DownloadsConfig struct {
	// Workers is the number of concurrent download workers. Zero means
	// the built-in default; values above the hard cap are clamped.
	Workers int `toml:"workers"`

	// DownloadDir is the default destination for items that don't carry
	// an explicit target path.
	DownloadDir string `toml:"download_dir"`

	// ExtractorBinary is the media extractor executable (a yt-dlp style
	// tool). Empty disables the extractor layer.
	ExtractorBinary string `toml:"extractor_binary"`

	// GalleryBinary is the gallery extractor executable (a gallery-dl
	// style tool). Empty disables the gallery layer.
	GalleryBinary string `toml:"gallery_binary"`

	UserAgent string `toml:"user_agent,omitempty"`

	// FetchTimeoutSeconds bounds a single direct HTTP fetch.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`

	// ExtractorTimeoutSeconds bounds a single extractor invocation.
	ExtractorTimeoutSeconds int `toml:"extractor_timeout_seconds"`
}

// SweepConfig holds default filters for the duplicate sweep.
type SweepConfig struct {
	IncludeExts       []string `toml:"include_exts"`
	MinSizeBytes      int64    `toml:"min_size_bytes"`
	ExcludeSubstrings []string `toml:"exclude_substrings"`
	IgnoreHidden      bool     `toml:"ignore_hidden"`
}

// MirrorConfig represents configuration for the mirror backend.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant. An empty Type disables mirroring.
type MirrorConfig struct {
	Type string `toml:"type"` // "", "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// Encrypt mirrors age-encrypted content instead of plaintext.
	Encrypt bool `toml:"encrypt"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSMirrorRoot string `toml:"fs_mirror_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for mirror encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the run journal database.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided base directory and
// default paths under it.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Downloads: DownloadsConfig{
			DownloadDir: filepath.Join(baseDir, "downloads"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "hoard.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "hoard.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
	}
}

// IndexPath returns the on-disk location of the content hash index.
func (c *Config) IndexPath() string {
	return filepath.Join(c.BaseDir, "file_hashes.json")
}

// HistoryPath returns the on-disk location of the download history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.BaseDir, "download_history.json")
}

// QueuePath returns the on-disk location of the persistent work queue.
func (c *Config) QueuePath() string {
	return filepath.Join(c.BaseDir, "download_queue.json")
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
