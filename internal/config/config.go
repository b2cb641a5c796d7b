// Package config loads service settings from an INI file with BLUEPRINT_*
// environment overrides. Environment wins over file, file wins over the
// built-in defaults.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/blueprintd.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// ServiceConfig describes runtime options for the blueprint daemon.
type ServiceConfig struct {
	Environment string
	ListenAddr  string

	// Storage: "sqlite" (default) or "postgres".
	StoreDriver string
	SQLitePath  string
	PostgresDSN string

	// Upstream provider selection and credentials. Provider names a client
	// registered at startup; request-level apiKey values override these.
	Provider           string
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicVersion   string
	AnthropicModel     string
	AnthropicMaxTokens int
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string

	// Stream coalescing.
	FlushSize     int
	FlushInterval time.Duration

	// Analytics: optional collector URL plus the in-memory ring size backing
	// the recent-events endpoint.
	AnalyticsEndpoint string
	AnalyticsBuffer   int

	// Optional YAML file overriding the built-in platform prompt templates.
	PromptTemplates string

	LogFile  string
	LogLevel string
}

// Load reads the current environment and the matching service config file.
func Load(root string) (ServiceConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return ServiceConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return ServiceConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := ServiceConfig{
		Environment: s.Environment,
		ListenAddr:  firstNonEmpty(os.Getenv("BLUEPRINT_LISTEN_ADDR"), merged["listen_addr"], ":8090"),
		StoreDriver: strings.ToLower(firstNonEmpty(os.Getenv("BLUEPRINT_STORE_DRIVER"), merged["store_driver"], "sqlite")),
		SQLitePath:  firstNonEmpty(os.Getenv("BLUEPRINT_SQLITE_PATH"), merged["sqlite_path"], DefaultSQLitePath()),
		PostgresDSN: firstNonEmpty(os.Getenv("BLUEPRINT_POSTGRES_DSN"), merged["postgres_dsn"]),

		Provider:         strings.ToLower(firstNonEmpty(os.Getenv("BLUEPRINT_PROVIDER"), merged["provider"], "anthropic")),
		AnthropicAPIKey:  firstNonEmpty(os.Getenv("BLUEPRINT_ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"), merged["anthropic_api_key"]),
		AnthropicBaseURL: firstNonEmpty(os.Getenv("BLUEPRINT_ANTHROPIC_BASE_URL"), merged["anthropic_base_url"]),
		AnthropicVersion: firstNonEmpty(os.Getenv("BLUEPRINT_ANTHROPIC_VERSION"), merged["anthropic_version"], "2023-06-01"),
		AnthropicModel:   firstNonEmpty(os.Getenv("BLUEPRINT_ANTHROPIC_MODEL"), merged["anthropic_model"]),
		OpenAIAPIKey:     firstNonEmpty(os.Getenv("BLUEPRINT_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL:    firstNonEmpty(os.Getenv("BLUEPRINT_OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIModel:      firstNonEmpty(os.Getenv("BLUEPRINT_OPENAI_MODEL"), merged["openai_model"]),

		AnalyticsEndpoint: firstNonEmpty(os.Getenv("BLUEPRINT_ANALYTICS_ENDPOINT"), merged["analytics_endpoint"]),
		AnalyticsBuffer:   parseOptionalInt(firstNonEmpty(os.Getenv("BLUEPRINT_ANALYTICS_BUFFER"), merged["analytics_buffer"]), 1000),

		PromptTemplates: firstNonEmpty(os.Getenv("BLUEPRINT_PROMPT_TEMPLATES"), merged["prompt_templates"]),

		LogFile:  firstNonEmpty(os.Getenv("BLUEPRINT_LOG_FILE"), merged["log_file"]),
		LogLevel: firstNonEmpty(os.Getenv("BLUEPRINT_LOG_LEVEL"), merged["log_level"], "info"),
	}

	switch cfg.StoreDriver {
	case "sqlite", "postgres":
	default:
		return ServiceConfig{}, fmt.Errorf("invalid store_driver %q: want sqlite or postgres", cfg.StoreDriver)
	}
	if cfg.StoreDriver == "postgres" && cfg.PostgresDSN == "" {
		return ServiceConfig{}, errors.New("store_driver postgres requires postgres_dsn")
	}

	cfg.AnthropicMaxTokens = parseOptionalInt(firstNonEmpty(os.Getenv("BLUEPRINT_ANTHROPIC_MAX_TOKENS"), merged["anthropic_max_tokens"]), 8192)
	cfg.FlushSize = parseOptionalInt(firstNonEmpty(os.Getenv("BLUEPRINT_FLUSH_SIZE"), merged["flush_size"]), 3)

	if v := firstNonEmpty(os.Getenv("BLUEPRINT_FLUSH_INTERVAL"), merged["flush_interval"]); strings.TrimSpace(v) != "" {
		dur, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return ServiceConfig{}, fmt.Errorf("invalid flush_interval %q: %w", v, err)
		}
		cfg.FlushInterval = dur
	} else {
		cfg.FlushInterval = 30 * time.Millisecond
	}

	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultSQLitePath returns the fallback database location under the user's
// home directory.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "blueprints.db"
	}
	return filepath.Join(home, ".blueprintforge", "blueprints.db")
}
