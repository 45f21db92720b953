package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	Voicemail VoicemailConfig
	Storage   StorageConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// ProviderTag selects the active voice provider implementation.
type ProviderTag string

const ProviderTwilio ProviderTag = "twilio"

// RecordingType discriminates the greeting prompt shape: a hosted audio
// file to play, or a text to synthesize.
type RecordingType string

const (
	RecordingTypeURL  RecordingType = "url"
	RecordingTypeText RecordingType = "text"
)

const defaultMaxLengthSeconds = 30

// RecordingConfig is the greeting prompt. Exactly one of URL/Text is set,
// matching Type.
type RecordingConfig struct {
	Type RecordingType
	URL  string
	Text string

	// MaxLength is the recording cap in seconds.
	MaxLength int
}

// VoicemailConfig describes the active provider, the caller allow-list,
// the greeting prompt and the callback endpoint. Built once at startup
// and never mutated afterwards.
type VoicemailConfig struct {
	Provider  ProviderTag
	Numbers   []string
	Recording RecordingConfig

	// Endpoint is the public base URL used to build provider callback URLs.
	Endpoint string

	// Provider credentials; required when Provider selects twilio.
	APIKey    string
	APISecret string
}

// IsAllowed reports whether number is on the caller allow-list.
// Membership is an exact string match.
func (c VoicemailConfig) IsAllowed(number string) bool {
	for _, n := range c.Numbers {
		if n == number {
			return true
		}
	}
	return false
}

type StorageConfig struct {
	// Backend selects where recordings and the index live.
	// Accepts: redis, postgres
	Backend string

	Redis RedisConfig
	DB    DBConfig
}

type RedisConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit. Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// ValidationError carries every failing field, not just the first one.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "config: " + e.Problems[0]
	}
	var b strings.Builder
	b.WriteString("config errors:")
	for _, p := range e.Problems {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds and validates a Config from an arbitrary key/value
// source. Pure transform; no side effects.
func LoadFrom(getenv func(string) string) (Config, error) {
	c := Config{}

	c.App.Env = strings.TrimSpace(getenv("APP_ENV"))
	c.App.Port = parseOrDefaultInt(getenv("APP_PORT"), 0)

	c.Voicemail.Provider = ProviderTag(strings.TrimSpace(getenv("PROVIDER")))
	c.Voicemail.Numbers = splitNumbers(getenv("NUMBERS"))
	c.Voicemail.Recording = RecordingConfig{
		Type: RecordingType(strings.TrimSpace(getenv("RECORDING_TYPE"))),
		URL:  strings.TrimSpace(getenv("RECORDING_URL")),
		Text: strings.TrimSpace(getenv("RECORDING_TEXT")),
		// Non-numeric values are ignored, not rejected ("parse-or-default").
		MaxLength: parseOrDefaultInt(getenv("RECORDING_MAX_LENGTH"), defaultMaxLengthSeconds),
	}
	c.Voicemail.Endpoint = strings.TrimRight(strings.TrimSpace(getenv("ENDPOINT")), "/")
	if c.Voicemail.Provider == ProviderTwilio {
		c.Voicemail.APIKey = getenv("TWILIO_API_KEY")
		c.Voicemail.APISecret = getenv("TWILIO_API_SECRET")
	}

	c.Storage.Backend = strings.TrimSpace(getenv("STORAGE_BACKEND"))
	if c.Storage.Backend == "" {
		c.Storage.Backend = "redis"
	}
	c.Storage.Redis.Host = strings.TrimSpace(getenv("REDIS_HOST"))
	c.Storage.Redis.Port = parseOrDefaultInt(getenv("REDIS_PORT"), 0)
	c.Storage.DB.Host = strings.TrimSpace(getenv("DB_HOST"))
	c.Storage.DB.Port = parseOrDefaultInt(getenv("DB_PORT"), 0)
	c.Storage.DB.User = strings.TrimSpace(getenv("DB_USER"))
	c.Storage.DB.Password = getenv("DB_PASSWORD")
	c.Storage.DB.Name = strings.TrimSpace(getenv("DB_NAME"))
	c.Storage.DB.SSLMode = strings.TrimSpace(getenv("DB_SSLMODE"))
	if c.Storage.DB.SSLMode == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.Storage.DB.SSLMode = "disable"
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the fully assembled Config and reports every violation.
func (c Config) Validate() error {
	var problems []string

	if c.App.Env == "" {
		problems = append(problems, "APP_ENV is required")
	} else if !isValidEnv(c.App.Env) {
		problems = append(problems, fmt.Sprintf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		problems = append(problems, fmt.Sprintf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	problems = append(problems, c.Voicemail.validate()...)
	problems = append(problems, c.Storage.validate(c.IsProduction())...)

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

func (c VoicemailConfig) validate() []string {
	var problems []string

	switch c.Provider {
	case ProviderTwilio:
		if c.APIKey == "" {
			problems = append(problems, "TWILIO_API_KEY is required")
		}
		if c.APISecret == "" {
			problems = append(problems, "TWILIO_API_SECRET is required")
		}
	case "":
		problems = append(problems, "PROVIDER is required")
	default:
		problems = append(problems, fmt.Sprintf("PROVIDER must be one of: twilio, got %q", c.Provider))
	}

	if len(c.Numbers) == 0 {
		problems = append(problems, "NUMBERS must contain at least one number")
	}
	for _, n := range c.Numbers {
		if len(n) < 5 {
			problems = append(problems, fmt.Sprintf("NUMBERS entry %q must be at least 5 characters long", n))
		}
	}

	switch c.Recording.Type {
	case RecordingTypeURL:
		if !isValidURL(c.Recording.URL) {
			problems = append(problems, "RECORDING_URL must be a valid URL when RECORDING_TYPE is url")
		}
		if c.Recording.Text != "" {
			problems = append(problems, "RECORDING_TEXT must not be set when RECORDING_TYPE is url")
		}
	case RecordingTypeText:
		if c.Recording.Text == "" {
			problems = append(problems, "RECORDING_TEXT is required when RECORDING_TYPE is text")
		}
		if c.Recording.URL != "" {
			problems = append(problems, "RECORDING_URL must not be set when RECORDING_TYPE is text")
		}
	default:
		problems = append(problems, fmt.Sprintf("RECORDING_TYPE must be one of url, text, got %q", c.Recording.Type))
	}
	if c.Recording.MaxLength <= 0 {
		problems = append(problems, fmt.Sprintf("RECORDING_MAX_LENGTH must be a positive number, got %d", c.Recording.MaxLength))
	}

	if !isValidURL(c.Endpoint) {
		problems = append(problems, fmt.Sprintf("ENDPOINT must be an absolute URL, got %q", c.Endpoint))
	}

	return problems
}

func (c StorageConfig) validate(production bool) []string {
	var problems []string

	switch c.Backend {
	case "redis":
		if c.Redis.Host == "" {
			problems = append(problems, "REDIS_HOST is required")
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			problems = append(problems, fmt.Sprintf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	case "postgres":
		if c.DB.Host == "" {
			problems = append(problems, "DB_HOST is required")
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			problems = append(problems, fmt.Sprintf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			problems = append(problems, "DB_USER is required")
		}
		if c.DB.Name == "" {
			problems = append(problems, "DB_NAME is required")
		}
		if c.DB.SSLMode == "" && production {
			problems = append(problems, "DB_SSLMODE is required in production")
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			problems = append(problems, fmt.Sprintf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_BACKEND must be one of redis, postgres, got %q", c.Backend))
	}

	return problems
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c StorageConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c StorageConfig) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// splitNumbers parses the comma-separated allow-list into a trimmed,
// ordered set. Empty or whitespace-only entries are dropped.
func splitNumbers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		n := strings.TrimSpace(part)
		if n == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseOrDefaultInt(raw string, fallback int) int {
	v := strings.TrimSpace(raw)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func isValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}
