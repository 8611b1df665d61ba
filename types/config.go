package types

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreS3     = "s3"

	DefaultOrder    = 3
	DefaultDataRoot = "preprocessed"
)

type StoreConfig struct {
	Kind string `yaml:"kind" json:"kind"`
	// Path is a directory for file stores and a database file for sqlite.
	Path string `yaml:"path" json:"path"`
	// Prefix namespaces blob keys (s3) and hash keys (redis).
	Prefix string `yaml:"prefix" json:"prefix"`
}

type DataConfig struct {
	// Root anchors the directories below that are left empty.
	Root         string `yaml:"root" json:"root"`
	TrainDir     string `yaml:"train_dir" json:"train_dir"`
	TestDir      string `yaml:"test_dir" json:"test_dir"`
	GoldDir      string `yaml:"gold_dir" json:"gold_dir"`
	PredictedDir string `yaml:"predicted_dir" json:"predicted_dir"`
}

// RunConfig is a named training/evaluation profile.
type RunConfig struct {
	Name          string      `yaml:"name" json:"name"`
	FilePath      string      `yaml:"-" json:"file_path"`
	Order         int         `yaml:"order" json:"order"`
	Store         StoreConfig `yaml:"store" json:"store"`
	Data          DataConfig  `yaml:"data" json:"data"`
	DecodeWorkers int         `yaml:"decode_workers" json:"decode_workers"`
	TrainWorkers  int         `yaml:"train_workers" json:"train_workers"`
}

// DefaultRunConfig lays data out as <root>/train, <root>/test/{test,gold,predicted/<N>gram}
// under DefaultDataRoot.
func DefaultRunConfig(order int) RunConfig {
	return DefaultRunConfigAt(order, DefaultDataRoot)
}

func DefaultRunConfigAt(order int, root string) RunConfig {
	cfg := RunConfig{
		Name:  fmt.Sprintf("%dgram", order),
		Order: order,
		Store: StoreConfig{Kind: StoreFile, Path: "."},
		Data:  DataConfig{Root: root},
	}
	cfg.applyDefaults()
	return cfg
}

func (cfg *RunConfig) applyDefaults() {
	if cfg.Order == 0 {
		cfg.Order = DefaultOrder
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%dgram", cfg.Order)
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = StoreFile
	}
	if cfg.Store.Path == "" && (cfg.Store.Kind == StoreFile || cfg.Store.Kind == StoreSQLite) {
		cfg.Store.Path = "."
		if cfg.Store.Kind == StoreSQLite {
			cfg.Store.Path = "diac.db"
		}
	}
	if cfg.Data.Root == "" {
		cfg.Data.Root = DefaultDataRoot
	}
	testRoot := filepath.Join(cfg.Data.Root, "test")
	if cfg.Data.TrainDir == "" {
		cfg.Data.TrainDir = filepath.Join(cfg.Data.Root, "train")
	}
	if cfg.Data.TestDir == "" {
		cfg.Data.TestDir = filepath.Join(testRoot, "test")
	}
	if cfg.Data.GoldDir == "" {
		cfg.Data.GoldDir = filepath.Join(testRoot, "gold")
	}
	if cfg.Data.PredictedDir == "" {
		cfg.Data.PredictedDir = filepath.Join(testRoot, "predicted", fmt.Sprintf("%dgram", cfg.Order))
	}
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = 1
	}
	if cfg.TrainWorkers <= 0 {
		cfg.TrainWorkers = 1
	}
}

func (cfg RunConfig) Validate() error {
	if cfg.Order < 2 {
		return fmt.Errorf("order must be >= 2, got %d", cfg.Order)
	}
	switch cfg.Store.Kind {
	case StoreFile, StoreSQLite, StoreRedis, StoreS3:
	default:
		return fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
	return nil
}

func LoadRunConfig(filePath string) (RunConfig, error) {
	var cfg RunConfig
	buf, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, &MissingResourceError{Path: filePath, Err: err}
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filePath, err)
	}
	cfg.FilePath = filePath
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", filePath, err)
	}
	return cfg, nil
}
