// Package config loads the daemon configuration: YAML file over built-in
// defaults, with a couple of environment overrides for deployment knobs.
package config

// #region imports
import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/scoring"
	"github.com/reefipedia/reef/internal/search"
)

// #endregion

// #region types

// EmbeddingConfig selects and shapes the embedding adapter.
type EmbeddingConfig struct {
	// Provider is "local" (deterministic hash embedder) or "openai".
	Provider string `yaml:"provider"`
	// Model is the provider's model name.
	Model string `yaml:"model"`
	// WeightsHash pins the model revision; part of the space key.
	WeightsHash string `yaml:"weights_hash"`
	// Dimensions is the vector width the model produces.
	Dimensions int `yaml:"dimensions"`
	// APIKeyEnv names the environment variable holding the provider key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// Duration is a time.Duration that unmarshals YAML scalars like "12s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// EpochConfig shapes epoch time.
type EpochConfig struct {
	BlocksPerEpoch uint64   `yaml:"blocks_per_epoch"`
	BlockInterval  Duration `yaml:"block_interval"`
	SweepInterval  Duration `yaml:"sweep_interval"`
}

// Config is the full daemon configuration.
type Config struct {
	// DataDir holds the database and the daemon lock file.
	DataDir string `yaml:"data_dir"`
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen"`

	Embedding EmbeddingConfig        `yaml:"embedding"`
	Scoring   scoring.Config         `yaml:"scoring"`
	Gate      consensus.GateConfig   `yaml:"gate"`
	Sweep     consensus.EngineConfig `yaml:"sweep"`
	Search    search.Config          `yaml:"search"`
	Epoch     EpochConfig            `yaml:"epoch"`
}

// #endregion types

// #region defaults

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir: "data",
		Listen:  ":8480",
		Embedding: EmbeddingConfig{
			Provider:    "local",
			Model:       "hash-embed",
			WeightsHash: "dev",
			Dimensions:  256,
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Scoring: scoring.DefaultConfig(),
		Gate:    consensus.DefaultGateConfig(),
		Sweep:   consensus.DefaultEngineConfig(),
		Search:  search.DefaultConfig(),
		Epoch: EpochConfig{
			BlocksPerEpoch: consensus.DefaultBlocksPerEpoch,
			BlockInterval:  Duration(12 * time.Second),
			SweepInterval:  Duration(30 * time.Second),
		},
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults. A missing file is not an error: the
// defaults apply unchanged. REEF_DATA_DIR and REEF_LISTEN override the file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("REEF_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("REEF_LISTEN"); v != "" {
		cfg.Listen = v
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if !c.Gate.Weights.Valid() {
		return fmt.Errorf("config: score weights sum to %v, want 1.0", c.Gate.Weights.Sum())
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("config: embedding dimensions must be positive")
	}
	if c.Gate.Thresholds.Review > c.Gate.Thresholds.Approval {
		return fmt.Errorf("config: review threshold %v above approval threshold %v",
			c.Gate.Thresholds.Review, c.Gate.Thresholds.Approval)
	}
	return nil
}

// #endregion load
