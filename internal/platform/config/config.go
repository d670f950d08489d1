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
	defaultEnvFile       = ".env"
	defaultPort          = "8080"
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultEnvironment   = "development"
	defaultWriteLimit    = 5
	defaultReadLimit     = 30
	defaultPathLimit     = 10
	defaultIPHourlyLimit = 20
	defaultWindow        = time.Minute
	defaultIPWindow      = time.Hour
	defaultSweepInterval = 5 * time.Minute
	defaultMinLength     = 3
	defaultMaxLength     = 500
	defaultMaxURLs       = 2
	defaultSpamThreshold = 35
	defaultDupWindow     = 5 * time.Minute
	defaultDupMaxEntries = 10000
	defaultAbuseLimit    = 8
	defaultAbuseTTL      = 10 * time.Minute
	defaultListLimit     = 100
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	PubSub     PubSubConfig
	CORS       CORSConfig
	RateLimits RateLimitConfig
	Moderation ModerationConfig
	Admin      AdminConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Production reports whether the process runs with production error hygiene.
func (s ServerConfig) Production() bool {
	return strings.EqualFold(strings.TrimSpace(s.Environment), "production")
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
	ListLimit    int
}

// PubSubConfig configures the created-memory broadcast topic. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string
	TopicID   string
}

// CORSConfig lists origins allowed to call the write endpoint.
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig controls request throttling per client and endpoint.
type RateLimitConfig struct {
	WriteLimit     int
	WriteWindow    time.Duration
	ReadLimit      int
	ReadWindow     time.Duration
	DefaultLimit   int
	DefaultWindow  time.Duration
	IPHourlyLimit  int
	IPHourlyWindow time.Duration
	SweepInterval  time.Duration
}

// ModerationConfig holds the tunables of the content admission checks. The
// threshold and window values are deliberately configuration, not constants.
type ModerationConfig struct {
	MinLength           int
	MaxLength           int
	MaxURLs             int
	ForbiddenWords      []string
	SpamKeywords        []string
	SpamThreshold       int
	DuplicateWindow     time.Duration
	DuplicateMaxEntries int
	AbuseThreshold      int
	AbuseTTL            time.Duration
}

// AdminConfig guards the operator endpoints. SigningSecret is either a
// literal shared secret or a secret:// reference resolved through Secret
// Manager; when empty the signature guard is disabled.
type AdminConfig struct {
	SigningSecret    string
	SecretsProjectID string
	SecretsFallback  string
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the dot-env file consulted before the system environment.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies values directly, primarily for tests.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables fallback to the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from the dot-env file, the process
// environment, and defaults, in that order of precedence.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	fileValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if value, ok := fileValues[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "PORT", defaultPort),
			Environment:  stringWithDefault(lookup, "APP_ENV", defaultEnvironment),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "FIRESTORE_MEMORIES_COLLECTION", "memories"),
			ListLimit:    intWithDefault(lookup, "MEMORIES_LIST_LIMIT", defaultListLimit),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "PUBSUB_PROJECT_ID", ""),
			TopicID:   stringWithDefault(lookup, "PUBSUB_MEMORY_TOPIC", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: csvWithDefault(lookup, "ALLOWED_ORIGINS"),
		},
		RateLimits: RateLimitConfig{
			WriteLimit:     intWithDefault(lookup, "RATE_LIMIT_WRITE", defaultWriteLimit),
			WriteWindow:    durationWithDefault(lookup, "RATE_LIMIT_WRITE_WINDOW", defaultWindow),
			ReadLimit:      intWithDefault(lookup, "RATE_LIMIT_READ", defaultReadLimit),
			ReadWindow:     durationWithDefault(lookup, "RATE_LIMIT_READ_WINDOW", defaultWindow),
			DefaultLimit:   intWithDefault(lookup, "RATE_LIMIT_DEFAULT", defaultPathLimit),
			DefaultWindow:  durationWithDefault(lookup, "RATE_LIMIT_DEFAULT_WINDOW", defaultWindow),
			IPHourlyLimit:  intWithDefault(lookup, "RATE_LIMIT_IP_HOURLY", defaultIPHourlyLimit),
			IPHourlyWindow: durationWithDefault(lookup, "RATE_LIMIT_IP_WINDOW", defaultIPWindow),
			SweepInterval:  durationWithDefault(lookup, "RATE_LIMIT_SWEEP_INTERVAL", defaultSweepInterval),
		},
		Moderation: ModerationConfig{
			MinLength:           intWithDefault(lookup, "MEMORY_MIN_LENGTH", defaultMinLength),
			MaxLength:           intWithDefault(lookup, "MEMORY_MAX_LENGTH", defaultMaxLength),
			MaxURLs:             intWithDefault(lookup, "MEMORY_MAX_URLS", defaultMaxURLs),
			ForbiddenWords:      csvWithDefault(lookup, "MODERATION_FORBIDDEN_WORDS"),
			SpamKeywords:        csvWithDefault(lookup, "MODERATION_SPAM_KEYWORDS"),
			SpamThreshold:       intWithDefault(lookup, "SPAM_THRESHOLD", defaultSpamThreshold),
			DuplicateWindow:     durationWithDefault(lookup, "DUPLICATE_WINDOW", defaultDupWindow),
			DuplicateMaxEntries: intWithDefault(lookup, "DUPLICATE_MAX_ENTRIES", defaultDupMaxEntries),
			AbuseThreshold:      intWithDefault(lookup, "ABUSE_THRESHOLD", defaultAbuseLimit),
			AbuseTTL:            durationWithDefault(lookup, "ABUSE_TTL", defaultAbuseTTL),
		},
		Admin: AdminConfig{
			SigningSecret:    stringWithDefault(lookup, "ADMIN_SIGNING_SECRET", ""),
			SecretsProjectID: stringWithDefault(lookup, "SECRETS_PROJECT_ID", ""),
			SecretsFallback:  stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", ""),
		},
	}

	if len(cfg.Moderation.ForbiddenWords) == 0 {
		cfg.Moderation.ForbiddenWords = DefaultForbiddenWords()
	}
	if len(cfg.Moderation.SpamKeywords) == 0 {
		cfg.Moderation.SpamKeywords = DefaultSpamKeywords()
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultForbiddenWords seeds the validator word list when no override is set.
func DefaultForbiddenWords() []string {
	return []string{"viagra", "casino", "出会い系", "副業"}
}

// DefaultSpamKeywords seeds the spam scorer keyword list (English and Japanese).
func DefaultSpamKeywords() []string {
	return []string{
		"buy now",
		"click here",
		"free money",
		"limited offer",
		"earn money fast",
		"work from home",
		"guaranteed income",
		"今すぐ購入",
		"クリックして",
		"無料でお金",
		"限定オファー",
	}
}

func validateConfig(cfg Config) error {
	var fields []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		fields = append(fields, "PORT")
	}
	if cfg.RateLimits.WriteLimit <= 0 || cfg.RateLimits.WriteWindow <= 0 {
		fields = append(fields, "RATE_LIMIT_WRITE")
	}
	if cfg.RateLimits.ReadLimit <= 0 || cfg.RateLimits.ReadWindow <= 0 {
		fields = append(fields, "RATE_LIMIT_READ")
	}
	if cfg.RateLimits.IPHourlyLimit <= 0 || cfg.RateLimits.IPHourlyWindow <= 0 {
		fields = append(fields, "RATE_LIMIT_IP_HOURLY")
	}
	if cfg.Moderation.MinLength <= 0 || cfg.Moderation.MaxLength < cfg.Moderation.MinLength {
		fields = append(fields, "MEMORY_MAX_LENGTH")
	}
	if cfg.Moderation.SpamThreshold <= 0 {
		fields = append(fields, "SPAM_THRESHOLD")
	}
	if cfg.Moderation.DuplicateWindow <= 0 {
		fields = append(fields, "DUPLICATE_WINDOW")
	}
	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
