// Package config loads and validates the JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for AgentHub.
type Config struct {
	General      GeneralConfig             `json:"general"`
	Providers    map[string]ProviderConfig `json:"providers"`
	Routing      RoutingConfig             `json:"routing"`
	Conversation ConversationConfig        `json:"conversation"`
	Storage      StorageConfig             `json:"storage"`
	Channels     ChannelsConfig            `json:"channels"`
	Knowledge    KnowledgeConfig           `json:"knowledge"`
	Metrics      MetricsConfig             `json:"metrics"`
	Agents       AgentsConfig              `json:"agents"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"`
	DefaultProvider       string `json:"defaultProvider"`
	DefaultTenant         string `json:"defaultTenant"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
}

type ProviderConfig struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"` // "openai" | "ollama" | "claude"
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

// RoutingConfig tunes the intent classifier and decision engine.
type RoutingConfig struct {
	Strategy          string  `json:"strategy"` // "rules" | "llm"
	StrongScore       float64 `json:"strongScore"`
	ModerateScore     float64 `json:"moderateScore"`
	WeakScore         float64 `json:"weakScore"`
	MinAgentScore     float64 `json:"minAgentScore"`
	EscalateBelow     float64 `json:"escalateBelow"`
	MaxAlternatives   int     `json:"maxAlternatives"`
	CandidateLimit    int     `json:"candidateLimit"`
	LLMTimeoutSeconds int     `json:"llmTimeoutSeconds"`
}

type ConversationConfig struct {
	RecentTurnWindow int `json:"recentTurnWindow"`
}

type StorageConfig struct {
	DBPath string `json:"dbPath"`
}

type ChannelsConfig struct {
	Web      WebConfig      `json:"web"`
	CLI      CLIConfig      `json:"cli"`
	Telegram TelegramConfig `json:"telegram"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

// KnowledgeConfig tunes the per-agent document retrieval.
type KnowledgeConfig struct {
	Enabled      bool `json:"enabled"`
	ChunkSize    int  `json:"chunkSize"`
	ChunkOverlap int  `json:"chunkOverlap"`
	SearchTopK   int  `json:"searchTopK"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// AgentsConfig points at the YAML roster directory loaded at startup.
type AgentsConfig struct {
	RosterDir string `json:"rosterDir"`
}

// DefaultConfigDir returns the default config directory (~/.agenthub).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agenthub"
	}
	return filepath.Join(home, ".agenthub")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Agents.RosterDir = ExpandPath(cfg.Agents.RosterDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.DefaultTenant == "" {
		errs = append(errs, "general.defaultTenant must not be empty")
	}

	switch cfg.Routing.Strategy {
	case "rules", "llm":
		// valid
	default:
		errs = append(errs, "routing.strategy must be one of: rules, llm")
	}
	if cfg.Routing.StrongScore < cfg.Routing.ModerateScore {
		errs = append(errs, "routing.strongScore must be >= routing.moderateScore")
	}
	if cfg.Routing.ModerateScore < cfg.Routing.WeakScore {
		errs = append(errs, "routing.moderateScore must be >= routing.weakScore")
	}
	if cfg.Routing.MaxAlternatives < 0 {
		errs = append(errs, "routing.maxAlternatives must be >= 0")
	}
	if cfg.Routing.CandidateLimit < 1 {
		errs = append(errs, "routing.candidateLimit must be >= 1")
	}

	if cfg.Conversation.RecentTurnWindow < 1 {
		errs = append(errs, "conversation.recentTurnWindow must be >= 1")
	}

	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if cfg.Knowledge.ChunkSize < 1 {
		errs = append(errs, "knowledge.chunkSize must be >= 1")
	}
	if cfg.Knowledge.ChunkOverlap < 0 {
		errs = append(errs, "knowledge.chunkOverlap must be >= 0")
	}

	// Validate provider configs.
	for name, pc := range cfg.Providers {
		switch pc.Type {
		case "openai", "ollama", "claude", "":
			// valid
		default:
			errs = append(errs, fmt.Sprintf("providers.%s: unknown type %q", name, pc.Type))
		}
		if pc.Enabled && (pc.Type == "openai" || pc.Type == "claude") && pc.APIKey == "" {
			errs = append(errs, fmt.Sprintf("providers.%s: apiKey is required", name))
		}
	}
	if dp := cfg.General.DefaultProvider; dp != "" {
		if _, ok := cfg.Providers[dp]; !ok {
			errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", dp))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
