package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"nlcal/src-server/extract"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultOpenAIModel = "meta-llama/llama-4-scout-17b-16e-instruct"
)

type Config struct {
	port string

	location *time.Location

	llmProvider string
	llmApiKey   string
	llmBaseURL  string
	llmTimeout  time.Duration
	extraction  extract.Config

	uidDomain     string
	imageMaxBytes int64

	databasePath             string
	historyRetention         time.Duration
	metricCollectionInterval time.Duration

	rateLimitRPS   float64
	rateLimitBurst int

	discordAppToken string
	discordClientId string
	discordGuildID  string
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Environment
// variables override anything set here.
type fileConfig struct {
	LLM struct {
		Provider   string                    `yaml:"provider"`
		BaseURL    string                    `yaml:"base_url"`
		Timeout    time.Duration             `yaml:"timeout"`
		MaxRetries int                       `yaml:"max_retries"`
		BaseDelay  time.Duration             `yaml:"base_delay"`
		MaxBackoff time.Duration             `yaml:"max_backoff"`
		Generation *extract.GenerationConfig `yaml:"generation"`
	} `yaml:"llm"`
	UIDDomain string `yaml:"uid_domain"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("loadFileConfig: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("loadFileConfig: %s: %w", path, err)
	}
	slog.Debug("env", "CONFIG_FILE", path)
	return fc, nil
}

// NewConfig reads the environment (and CONFIG_FILE, if set). Every invalid
// value is reported in the returned error, not only the first.
func NewConfig() (*Config, error) {
	var errs []error
	file, err := loadFileConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		errs = append(errs, err)
	}

	c := &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			switch strings.ToLower(timezoneStr) {
			case "", "local":
				loc = time.Local
			case "utc":
				loc = time.UTC
			default:
				var err error
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", timezoneStr, err))
					loc = time.Local
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr, "location", loc)
			return loc
		}(),

		llmProvider: func() string {
			provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
			if provider == "" {
				provider = strings.ToLower(file.LLM.Provider)
			}
			if provider == "" {
				provider = ProviderGemini
			}
			if provider != ProviderGemini && provider != ProviderOpenAI {
				errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q, want %q or %q", provider, ProviderGemini, ProviderOpenAI))
				provider = ProviderGemini
			}
			slog.Debug("env", "LLM_PROVIDER", provider)
			return provider
		}(),

		uidDomain: func() string {
			domain := os.Getenv("UID_DOMAIN")
			if domain == "" {
				domain = file.UIDDomain
			}
			if domain == "" {
				domain = "nl-calendar"
			}
			slog.Debug("env", "UID_DOMAIN", domain)
			return domain
		}(),
		imageMaxBytes: func() int64 {
			raw := os.Getenv("IMAGE_MAX_BYTES")
			if raw == "" {
				return extract.DefaultMaxImageBytes
			}
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("invalid IMAGE_MAX_BYTES %q", raw))
				return extract.DefaultMaxImageBytes
			}
			slog.Debug("env", "IMAGE_MAX_BYTES", n)
			return n
		}(),

		databasePath: func() string {
			path := os.Getenv("DATABASE_PATH")
			if path == "" {
				path = "./sqlite.db"
			}
			slog.Debug("env", "DATABASE_PATH", path)
			return path
		}(),
		historyRetention:         durationEnv("HISTORY_RETENTION", 30*24*time.Hour, &errs),
		metricCollectionInterval: durationEnv("METRIC_COLLECTION_INTERVAL", 15*time.Second, &errs),

		rateLimitRPS: func() float64 {
			raw := os.Getenv("RATE_LIMIT_RPS")
			if raw == "" {
				return 1
			}
			rps, err := strconv.ParseFloat(raw, 64)
			if err != nil || rps <= 0 {
				errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS %q", raw))
				return 1
			}
			slog.Debug("env", "RATE_LIMIT_RPS", rps)
			return rps
		}(),
		rateLimitBurst: func() int {
			raw := os.Getenv("RATE_LIMIT_BURST")
			if raw == "" {
				return 5
			}
			burst, err := strconv.Atoi(raw)
			if err != nil || burst <= 0 {
				errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BURST %q", raw))
				return 5
			}
			slog.Debug("env", "RATE_LIMIT_BURST", burst)
			return burst
		}(),

		discordAppToken: func() string {
			token := os.Getenv("DISCORD_APP_TOKEN")
			if token == "" {
				slog.Info("DISCORD_APP_TOKEN is not set, the Discord bot is disabled")
				return ""
			}
			slog.Debug("env", "DISCORD_APP_TOKEN", MaskKey(token))
			return token
		}(),
		discordClientId: func() string {
			clientId := os.Getenv("DISCORD_CLIENT_ID")
			slog.Debug("env", "DISCORD_CLIENT_ID", clientId)
			return clientId
		}(),
		discordGuildID: func() string {
			guildID := os.Getenv("DISCORD_GUILD_ID")
			slog.Debug("env", "DISCORD_GUILD_ID", guildID)
			return guildID
		}(),
	}

	// #region | LLM settings, depend on the provider
	c.llmApiKey = func() string {
		keys := []string{"GEMINI_API_KEY_FREE", "GEMINI_API_KEY"}
		if c.llmProvider == ProviderOpenAI {
			keys = []string{"LLM_API_KEY", "GROQ_API_KEY"}
		}
		for _, key := range keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				slog.Debug("env", key, MaskKey(value))
				return value
			}
		}
		errs = append(errs, fmt.Errorf("%s is not set", strings.Join(keys, " or ")))
		return ""
	}()
	c.llmBaseURL = func() string {
		baseURL := os.Getenv("LLM_BASE_URL")
		if baseURL == "" {
			baseURL = file.LLM.BaseURL
		}
		if baseURL == "" {
			baseURL = extract.DefaultGeminiBaseURL
			if c.llmProvider == ProviderOpenAI {
				baseURL = extract.DefaultOpenAIBaseURL
			}
		}
		slog.Debug("env", "LLM_BASE_URL", baseURL)
		return baseURL
	}()
	c.llmTimeout = durationEnv("LLM_TIMEOUT", orDuration(file.LLM.Timeout, 60*time.Second), &errs)
	c.extraction = func() extract.Config {
		config := extract.DefaultConfig()
		if c.llmProvider == ProviderOpenAI {
			config.Generation.Model = defaultOpenAIModel
		}
		if file.LLM.Generation != nil {
			model := config.Generation.Model
			config.Generation = *file.LLM.Generation
			if config.Generation.Model == "" {
				config.Generation.Model = model
			}
		}
		if model := os.Getenv("LLM_MODEL"); model != "" {
			config.Generation.Model = model
		}
		config.BaseDelay = durationEnv("LLM_BASE_DELAY", orDuration(file.LLM.BaseDelay, config.BaseDelay), &errs)
		config.MaxBackoff = durationEnv("LLM_MAX_BACKOFF", orDuration(file.LLM.MaxBackoff, config.MaxBackoff), &errs)
		if file.LLM.MaxRetries > 0 {
			config.MaxRetries = file.LLM.MaxRetries
		}
		if raw := os.Getenv("LLM_MAX_RETRIES"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				errs = append(errs, fmt.Errorf("invalid LLM_MAX_RETRIES %q", raw))
			} else {
				config.MaxRetries = n
			}
		}
		slog.Debug("env", "LLM_MODEL", config.Generation.Model, "LLM_MAX_RETRIES", config.MaxRetries)
		return config
	}()
	// #endregion

	if len(errs) > 0 {
		return c, fmt.Errorf("NewConfig: %w", errors.Join(errs...))
	}
	return c, nil
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q", key, raw))
		return fallback
	}
	slog.Debug("env", key, raw, "duration", duration)
	return duration
}

func orDuration(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get TIMEZONE env
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// Get LLM_PROVIDER env
func (c *Config) GetLLMProvider() string {
	return c.llmProvider
}

// Get the provider API key
func (c *Config) GetLLMApiKey() string {
	return c.llmApiKey
}

// Get LLM_BASE_URL env
func (c *Config) GetLLMBaseURL() string {
	return c.llmBaseURL
}

// Get LLM_TIMEOUT env
func (c *Config) GetLLMTimeout() time.Duration {
	return c.llmTimeout
}

// Get retry and generation settings
func (c *Config) GetExtractConfig() extract.Config {
	return c.extraction
}

// Get UID_DOMAIN env
func (c *Config) GetUIDDomain() string {
	return c.uidDomain
}

// Get IMAGE_MAX_BYTES env
func (c *Config) GetImageMaxBytes() int64 {
	return c.imageMaxBytes
}

// Get DATABASE_PATH env
func (c *Config) GetDatabasePath() string {
	return c.databasePath
}

// Get HISTORY_RETENTION env
func (c *Config) GetHistoryRetention() time.Duration {
	return c.historyRetention
}

// Get METRIC_COLLECTION_INTERVAL env
func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}

// Get RATE_LIMIT_RPS env
func (c *Config) GetRateLimitRPS() float64 {
	return c.rateLimitRPS
}

// Get RATE_LIMIT_BURST env
func (c *Config) GetRateLimitBurst() int {
	return c.rateLimitBurst
}

// Get DISCORD_APP_TOKEN env
func (c *Config) GetDiscordAppToken() string {
	return c.discordAppToken
}

// Get DISCORD_CLIENT_ID env
func (c *Config) GetDiscordClientId() string {
	return c.discordClientId
}

// Get DISCORD_GUILD_ID env
func (c *Config) GetDiscordGuildID() string {
	return c.discordGuildID
}
