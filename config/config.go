package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arrayfs-dev/arrayfs/internal/util"
)

// Default geometry. These are the reference sizing of the store; they
// are fixed for the lifetime of an engine once constructed.
const (
	// DefaultInodeCount is the fixed number of inode slots, root included.
	DefaultInodeCount = 32

	// DefaultPagesPerFile is the fixed page extent of every file.
	DefaultPagesPerFile = 8

	// DefaultPageSize is the size of one data page in bytes.
	DefaultPageSize = 4096

	// DirTableLen is the encoded size of a directory table; PageSize
	// must be at least this, since a directory's table occupies its
	// first page. 8-byte bitmap plus 64 records of 36 bytes.
	DirTableLen = 8 + 64*(32+4)
)

// Config carries the engine geometry and runtime settings. Geometry is
// validated once at engine construction; there is no dynamic resizing.
type Config struct {
	MountOptions

	InodeCount   int // Fixed inode slots, inode 0 reserved for root (Default 32)
	PagesPerFile int // Fixed pages per file (Default 8)
	PageSize     int // Page size in bytes; must fit a directory table (Default 4096)

	LogLvl util.LogLevel // Logger verbosity (Default InfoLevel)
}

// MountOptions holds high-level settings for mounting.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug  bool   // fuse debug logs
	FsName string // mount's FsName
	Name   string // mount's Name
}

// ConfigOverride uses pointer fields to distinguish between unset and
// zero values when loading partial configuration. See [Config] for
// field descriptions.
type ConfigOverride struct {
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`

	InodeCount   *int `yaml:"inode_count,omitempty" json:"inode_count,omitempty"`
	PagesPerFile *int `yaml:"pages_per_file,omitempty" json:"pages_per_file,omitempty"`
	PageSize     *int `yaml:"page_size,omitempty" json:"page_size,omitempty"`

	LogLvl *util.LogLevel `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: "arrayfs",
			Name:   "arrayfs",
		},
		InodeCount:   DefaultInodeCount,
		PagesPerFile: DefaultPagesPerFile,
		PageSize:     DefaultPageSize,
		LogLvl:       util.InfoLevel,
	}
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.InodeCount != nil {
		c.InodeCount = *override.InodeCount
	}
	if override.PagesPerFile != nil {
		c.PagesPerFile = *override.PagesPerFile
	}
	if override.PageSize != nil {
		c.PageSize = *override.PageSize
	}
	if override.LogLvl != nil {
		c.LogLvl = *override.LogLvl
	}
}

// Validate checks that the geometry can actually host the store: at
// least the root inode, at least one page per file, and a first page
// big enough to embed a directory table.
func (c *Config) Validate() error {
	if c.InodeCount < 1 {
		return fmt.Errorf("inode_count %d: need at least the root inode", c.InodeCount)
	}
	if c.PagesPerFile < 1 {
		return fmt.Errorf("pages_per_file %d: need at least one page", c.PagesPerFile)
	}
	if c.PageSize < DirTableLen {
		return fmt.Errorf("page_size %d: directory table needs %d bytes", c.PageSize, DirTableLen)
	}
	return nil
}

// MaxFileSize returns the fixed byte extent of one file.
func (c *Config) MaxFileSize() uint64 {
	return uint64(c.PagesPerFile) * uint64(c.PageSize)
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with
// defaults and validating the result.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
