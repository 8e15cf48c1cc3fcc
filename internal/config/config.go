package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Mailbox   Mailbox   `yaml:"mailbox"`
	Feeds     []Feed    `yaml:"feeds"`
	Classify  Classify  `yaml:"classify"`
	Embedding Embedding `yaml:"embedding"`
	Retrieval Retrieval `yaml:"retrieval"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
}

// Mailbox holds the maildrop folder layout. Incoming alerts land in Source;
// the ingestion pipeline files them into the other three.
type Mailbox struct {
	Root      string `yaml:"root"`
	Source    string `yaml:"source"`
	Indexed   string `yaml:"indexed"`
	Stubs     string `yaml:"stubs"`
	Processed string `yaml:"processed"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Classify struct {
	// MinCompleteLength is the cleaned-body length below which an item with a
	// story URL and no leading prose is treated as a stub.
	MinCompleteLength int `yaml:"min_complete_length"`
	// ProseThreshold is the minimum character count before the first metadata
	// marker for a body to count as substantial prose.
	ProseThreshold int `yaml:"prose_threshold"`
	// FingerprintBucketMinutes is the receipt-time bucket used in fallback
	// fingerprints. Coarse enough to absorb a few minutes of clock skew.
	FingerprintBucketMinutes int `yaml:"fingerprint_bucket_minutes"`
}

type Embedding struct {
	Provider    string `yaml:"provider"` // "ollama" or "openai"
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
}

type Retrieval struct {
	TopK           int     `yaml:"top_k"`
	RecencyWeight  float64 `yaml:"recency_weight"`
	HalflifeDays   float64 `yaml:"halflife_days"`
	CandidateFloor int     `yaml:"candidate_floor"`
	// OldestPendingFirst picks the oldest pending stub when several share a
	// fingerprint. Set false to prefer the most recent instead.
	OldestPendingFirst bool `yaml:"oldest_pending_first"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for bbrag.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "bbrag")
}

// DataDir returns the XDG data directory for bbrag.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "bbrag")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/bbrag/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'bbrag init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Mailbox: Mailbox{
			Source:    "source",
			Indexed:   "indexed",
			Stubs:     "stubs",
			Processed: "processed",
		},
		Classify: Classify{
			MinCompleteLength:        500,
			ProseThreshold:           200,
			FingerprintBucketMinutes: 5,
		},
		Embedding: Embedding{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Retrieval: Retrieval{
			TopK:               20,
			RecencyWeight:      0.3,
			HalflifeDays:       30,
			CandidateFloor:     20,
			OldestPendingFirst: true,
		},
		Server: Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// MailboxRoot returns the effective maildrop root directory.
func (c *Config) MailboxRoot() string {
	if c.Mailbox.Root != "" {
		return c.Mailbox.Root
	}
	return filepath.Join(c.GetDataDir(), "mail")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
