package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration required by the API process.
// Values come from defaults, then an optional YAML file (CONFIG_FILE), then env.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Auth   AuthConfig   `yaml:"auth"`
	Twilio TwilioConfig `yaml:"twilio"`
	Dialer DialerConfig `yaml:"dialer"`
	Import ImportConfig `yaml:"import"`
}

type AppConfig struct {
	Env  string `yaml:"env"`
	Port int    `yaml:"port"`

	// StaticDir optionally serves a browser client for unmatched routes.
	StaticDir string `yaml:"static_dir"`
}

type StoreDriver string

const (
	StoreDriverFile     StoreDriver = "file"
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
)

type StoreConfig struct {
	Driver  StoreDriver `yaml:"driver"`
	DataDir string      `yaml:"data_dir"`

	// PostgresDSN is only used by the postgres driver. Never log it.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RedisConfig is optional; when Addr is empty concurrency slots are tracked in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// AuthConfig is optional; when JWTSecret is empty the API is open.
type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"`
	JWTIssuer      string        `yaml:"jwt_issuer"`
	JWTAudience    string        `yaml:"jwt_audience"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	CallerID   string `yaml:"caller_id"`

	// APIBaseURL is overridable for tests and regional edges.
	APIBaseURL string `yaml:"api_base_url"`

	// PublicBaseURL is where Twilio can reach this service for status callbacks.
	PublicBaseURL string `yaml:"public_base_url"`
}

// Enabled is the single capability flag that selects real vs simulated placement.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.CallerID != ""
}

type DialerConfig struct {
	TickInterval         time.Duration `yaml:"tick_interval"`
	DefaultMaxConcurrent int           `yaml:"default_max_concurrent"`

	// SlotTTL bounds how long a leaked Redis concurrency slot survives a crash.
	SlotTTL time.Duration `yaml:"slot_ttl"`

	// QualifyRate is the probability the simulated conversation qualifies a lead.
	QualifyRate float64 `yaml:"qualify_rate"`

	RecoverOnStart bool `yaml:"recover_on_start"`
}

type ImportPolicy string

const (
	// ImportPolicyPermissive imports rows without a phone column with an empty phone.
	ImportPolicyPermissive ImportPolicy = "permissive"
	// ImportPolicyReject reports such rows and skips them.
	ImportPolicyReject ImportPolicy = "reject"
)

type ImportConfig struct {
	Policy         ImportPolicy `yaml:"policy"`
	MaxUploadBytes int64        `yaml:"max_upload_bytes"`
}

// Defaults: port 8080, JSON files under ./data, 1s ticks, 3 concurrent calls.
func Defaults() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		Store: StoreConfig{Driver: StoreDriverFile, DataDir: "data"},
		Auth:  AuthConfig{AccessTokenTTL: 12 * time.Hour},
		Twilio: TwilioConfig{
			APIBaseURL: "https://api.twilio.com",
		},
		Dialer: DialerConfig{
			TickInterval:         time.Second,
			DefaultMaxConcurrent: 3,
			SlotTTL:              10 * time.Minute,
			QualifyRate:          0.6,
			RecoverOnStart:       true,
		},
		Import: ImportConfig{Policy: ImportPolicyPermissive, MaxUploadBytes: 10 << 20},
	}
}

func Load() (Config, error) {
	c := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := c.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var parseErrs []error

	setString(&c.App.Env, "APP_ENV")
	if err := setInt(&c.App.Port, "PORT"); err != nil {
		parseErrs = append(parseErrs, err)
	}
	if err := setInt(&c.App.Port, "APP_PORT"); err != nil {
		parseErrs = append(parseErrs, err)
	}
	setString(&c.App.StaticDir, "STATIC_DIR")

	if v := strings.TrimSpace(os.Getenv("STORE_DRIVER")); v != "" {
		c.Store.Driver = StoreDriver(v)
	}
	setString(&c.Store.DataDir, "DATA_DIR")
	setSecret(&c.Store.PostgresDSN, "DATABASE_URL")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setSecret(&c.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		parseErrs = append(parseErrs, err)
	}

	setSecret(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.JWTIssuer, "JWT_ISSUER")
	setString(&c.Auth.JWTAudience, "JWT_AUDIENCE")
	if err := setDuration(&c.Auth.AccessTokenTTL, "JWT_ACCESS_TTL"); err != nil {
		parseErrs = append(parseErrs, err)
	}

	setString(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setSecret(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.Twilio.CallerID, "TWILIO_CALLER_ID")
	setString(&c.Twilio.APIBaseURL, "TWILIO_API_BASE_URL")
	setString(&c.Twilio.PublicBaseURL, "PUBLIC_BASE_URL")

	if err := setDuration(&c.Dialer.TickInterval, "DIALER_TICK_INTERVAL"); err != nil {
		parseErrs = append(parseErrs, err)
	}
	if err := setInt(&c.Dialer.DefaultMaxConcurrent, "DIALER_DEFAULT_MAX_CONCURRENT"); err != nil {
		parseErrs = append(parseErrs, err)
	}
	if err := setDuration(&c.Dialer.SlotTTL, "DIALER_SLOT_TTL"); err != nil {
		parseErrs = append(parseErrs, err)
	}
	if err := setFloat(&c.Dialer.QualifyRate, "DIALER_QUALIFY_RATE"); err != nil {
		parseErrs = append(parseErrs, err)
	}
	if err := setBool(&c.Dialer.RecoverOnStart, "DIALER_RECOVER_ON_START"); err != nil {
		parseErrs = append(parseErrs, err)
	}

	if v := strings.TrimSpace(os.Getenv("IMPORT_POLICY")); v != "" {
		c.Import.Policy = ImportPolicy(v)
	}
	if v := strings.TrimSpace(os.Getenv("UPLOAD_MAX_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("UPLOAD_MAX_BYTES must be an integer, got %q", v))
		} else {
			c.Import.MaxUploadBytes = n
		}
	}

	return joinErrors(parseErrs)
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Store.Driver {
	case StoreDriverFile:
		if strings.TrimSpace(c.Store.DataDir) == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the file store"))
		}
	case StoreDriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	case StoreDriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of file, memory, postgres, got %q", c.Store.Driver))
	}

	if c.IsProduction() && !c.Auth.Enabled() {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.Auth.Enabled() && c.Auth.AccessTokenTTL <= 0 {
		// Default: a working day.
		c.Auth.AccessTokenTTL = 12 * time.Hour
	}

	tw := c.Twilio
	if (tw.AccountSID != "" || tw.AuthToken != "" || tw.CallerID != "") && !tw.Enabled() {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_CALLER_ID must be set together"))
	}
	if tw.Enabled() {
		if _, err := url.ParseRequestURI(tw.APIBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("TWILIO_API_BASE_URL must be an absolute URL, got %q", tw.APIBaseURL))
		}
	}
	if tw.PublicBaseURL != "" {
		if u, err := url.Parse(tw.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", tw.PublicBaseURL))
		}
	}

	if c.Dialer.TickInterval <= 0 {
		errs = append(errs, errors.New("DIALER_TICK_INTERVAL must be positive"))
	}
	if c.Dialer.DefaultMaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("DIALER_DEFAULT_MAX_CONCURRENT must be positive, got %d", c.Dialer.DefaultMaxConcurrent))
	}
	if c.Dialer.SlotTTL <= 0 {
		errs = append(errs, errors.New("DIALER_SLOT_TTL must be positive"))
	}
	if c.Dialer.QualifyRate < 0 || c.Dialer.QualifyRate > 1 {
		errs = append(errs, fmt.Errorf("DIALER_QUALIFY_RATE must be within [0,1], got %v", c.Dialer.QualifyRate))
	}

	switch c.Import.Policy {
	case ImportPolicyPermissive, ImportPolicyReject:
	default:
		errs = append(errs, fmt.Errorf("IMPORT_POLICY must be one of permissive, reject, got %q", c.Import.Policy))
	}
	if c.Import.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StatusCallbackURL returns the Twilio status webhook for a call, or "" when no public URL is configured.
func (c Config) StatusCallbackURL(callID string) string {
	if c.Twilio.PublicBaseURL == "" {
		return ""
	}
	base := strings.TrimRight(c.Twilio.PublicBaseURL, "/")
	return base + "/webhooks/twilio/status?call_id=" + url.QueryEscape(callID)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// setSecret does not trim; secrets may legitimately carry whitespace.
func setSecret(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number, got %q", key, v)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	*dst = d
	return nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
