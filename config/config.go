// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gewnthar/civicpulse/utils"
)

const (
	DefaultConfigPath = "config/config.yaml"
	DefaultEnvFile    = ".env"

	EnvStorageConnectionString = "CIVICPULSE_STORAGE_CONNECTION_STRING"
	EnvStorageAccountURL       = "CIVICPULSE_STORAGE_ACCOUNT_URL"
	EnvDBHost                  = "CIVICPULSE_DB_HOST"
	EnvDBPort                  = "CIVICPULSE_DB_PORT"
	EnvDBUser                  = "CIVICPULSE_DB_USER"
	EnvDBPassword              = "CIVICPULSE_DB_PASSWORD"
	EnvDBName                  = "CIVICPULSE_DB_NAME"
	EnvNATSURL                 = "CIVICPULSE_NATS_URL"
	EnvLogLevel                = "CIVICPULSE_LOG_LEVEL"
	EnvTrackingURI             = "MLFLOW_TRACKING_URI"
	EnvTrackingUsername        = "MLFLOW_TRACKING_USERNAME"
	EnvTrackingPassword        = "MLFLOW_TRACKING_PASSWORD"
)

// DefaultPresidents is the fixed list of approval pages to collect, newest first.
var DefaultPresidents = []string{
	"joseph-r-biden",
	"donald-j-trump",
	"barack-obama",
	"george-w-bush",
	"william-j-clinton",
	"george-bush",
	"ronald-reagan",
	"jimmy-carter",
	"gerald-r-ford",
	"richard-m-nixon",
	"lyndon-b-johnson",
	"john-f-kennedy",
	"dwight-d-eisenhower",
	"harry-s-truman",
	"franklin-d-roosevelt",
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

type HTTPConfig struct {
	TimeoutStr      string        `yaml:"timeout"`
	RetryCount      int           `yaml:"retry_count"`
	RetryWaitStr    string        `yaml:"retry_wait"`
	RetryMaxWaitStr string        `yaml:"retry_max_wait"`
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"-"`
	RetryWait       time.Duration `yaml:"-"`
	RetryMaxWait    time.Duration `yaml:"-"`
}

type SourcesConfig struct {
	EconomicIndicatorsURL string   `yaml:"economic_indicators_url"` // prefix; YYYYMMDD.csv is appended
	LookbackDays          int      `yaml:"lookback_days"`
	ExecutiveOrdersURL    string   `yaml:"executive_orders_url"`
	MaxPages              int      `yaml:"max_pages"`
	ApprovalURLPrefix     string   `yaml:"approval_url_prefix"`
	ApprovalURLSuffix     string   `yaml:"approval_url_suffix"`
	Presidents            []string `yaml:"presidents"`
}

type StorageConfig struct {
	Backend          string `yaml:"backend"` // "local" or "azure"
	Container        string `yaml:"container"`
	LocalDir         string `yaml:"local_dir"`
	ConnectionString string `yaml:"connection_string"`
	AccountURL       string `yaml:"account_url"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	DBName             string        `yaml:"dbname"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetimeStr string        `yaml:"conn_max_lifetime"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
}

// Enabled reports whether a warehouse database is configured.
func (d DatabaseConfig) Enabled() bool { return d.DBName != "" }

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
	Name    string `yaml:"name"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type OrchestratorConfig struct {
	Concurrent    bool          `yaml:"concurrent"`
	RunTimeoutStr string        `yaml:"run_timeout"`
	RunTimeout    time.Duration `yaml:"-"`
}

type ForecastConfig struct {
	SnapshotTable  string   `yaml:"snapshot_table"`
	OutputTable    string   `yaml:"output_table"`
	DateColumn     string   `yaml:"date_column"`
	RunDateColumn  string   `yaml:"run_date_column"`
	TargetColumn   string   `yaml:"target_column"`
	ExcludeColumns []string `yaml:"exclude_columns"`
	Components     int      `yaml:"components"`
	TrainFraction  float64  `yaml:"train_fraction"`
	SeasonalPeriod int      `yaml:"seasonal_period"`
	OutlierSigma   float64  `yaml:"outlier_sigma"`
	MaxOrder       int      `yaml:"max_order"` // grid covers 0..MaxOrder for every order term
}

type TrackerConfig struct {
	URI        string `yaml:"uri"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Experiment string `yaml:"experiment"`
}

// Enabled reports whether experiment tracking is configured.
func (t TrackerConfig) Enabled() bool { return t.URI != "" }

type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	HTTP         HTTPConfig         `yaml:"http"`
	Sources      SourcesConfig      `yaml:"sources"`
	Storage      StorageConfig      `yaml:"storage"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Forecast     ForecastConfig     `yaml:"forecast"`
	Tracker      TrackerConfig      `yaml:"tracker"`
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// New returns a Config seeded with the defaults for which zero is a valid
// setting, so they are only applied when the YAML omits the key.
func New() *Config {
	return &Config{
		HTTP:     HTTPConfig{RetryCount: 3},
		Forecast: ForecastConfig{MaxOrder: 1},
	}
}

// Load reads the optional .env file, then the YAML file at configPath, then
// applies defaults and environment overrides. A missing YAML file is not an
// error when configPath is the default path; defaults and env cover it.
func Load(configPath, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := New()
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	file, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults, environment overrides, duration parsing and validation.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	var err error
	if c.HTTP.Timeout, err = parseDuration("http.timeout", c.HTTP.TimeoutStr); err != nil {
		return err
	}
	if c.HTTP.RetryWait, err = parseDuration("http.retry_wait", c.HTTP.RetryWaitStr); err != nil {
		return err
	}
	if c.HTTP.RetryMaxWait, err = parseDuration("http.retry_max_wait", c.HTTP.RetryMaxWaitStr); err != nil {
		return err
	}
	if c.Database.ConnMaxLifetime, err = parseDuration("database.conn_max_lifetime", c.Database.ConnMaxLifetimeStr); err != nil {
		return err
	}
	if c.Orchestrator.RunTimeout, err = parseDuration("orchestrator.run_timeout", c.Orchestrator.RunTimeoutStr); err != nil {
		return err
	}

	presidents := make([]string, 0, len(c.Sources.Presidents))
	for _, p := range c.Sources.Presidents {
		if slug := utils.NormalizeSlug(p); slug != "" {
			presidents = append(presidents, slug)
		}
	}
	c.Sources.Presidents = presidents

	return c.validate()
}

func (c *Config) loadDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.HTTP.TimeoutStr == "" {
		c.HTTP.TimeoutStr = "30s"
	}
	if c.HTTP.RetryWaitStr == "" {
		c.HTTP.RetryWaitStr = "1s"
	}
	if c.HTTP.RetryMaxWaitStr == "" {
		c.HTTP.RetryMaxWaitStr = "10s"
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "civicpulse/1.0"
	}

	if c.Sources.EconomicIndicatorsURL == "" {
		c.Sources.EconomicIndicatorsURL = "https://www.census.gov/econ_index/archive_data/Indicator_Input_Values_"
	}
	if c.Sources.LookbackDays == 0 {
		c.Sources.LookbackDays = 6
	}
	if c.Sources.ExecutiveOrdersURL == "" {
		// The API allows 1000 per page; 500 keeps responses small.
		c.Sources.ExecutiveOrdersURL = "https://www.federalregister.gov/api/v1/documents.json" +
			"?fields[]=presidential_document_number&fields[]=president&fields[]=publication_date" +
			"&per_page=500&conditions[presidential_document_type][]=executive_order"
	}
	if c.Sources.MaxPages == 0 {
		c.Sources.MaxPages = 1000
	}
	if c.Sources.ApprovalURLPrefix == "" {
		c.Sources.ApprovalURLPrefix = "https://www.presidency.ucsb.edu/statistics/data/"
	}
	if c.Sources.ApprovalURLSuffix == "" {
		c.Sources.ApprovalURLSuffix = "-public-approval"
	}
	if len(c.Sources.Presidents) == 0 {
		c.Sources.Presidents = append([]string(nil), DefaultPresidents...)
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.Container == "" {
		c.Storage.Container = "executive-orders"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./data"
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == "" {
		c.Database.Port = "3306"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 25
	}
	if c.Database.ConnMaxLifetimeStr == "" {
		c.Database.ConnMaxLifetimeStr = "5m"
	}

	if c.NATS.Subject == "" {
		c.NATS.Subject = "civicpulse.ingest"
	}
	if c.NATS.Queue == "" {
		c.NATS.Queue = "civicpulse-ingest"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "civicpulse"
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}

	if c.Orchestrator.RunTimeoutStr == "" {
		c.Orchestrator.RunTimeoutStr = "15m"
	}

	f := &c.Forecast
	if f.SnapshotTable == "" {
		f.SnapshotTable = "weekly_variables_flattened"
	}
	if f.OutputTable == "" {
		f.OutputTable = "executive_order_count"
	}
	if f.DateColumn == "" {
		f.DateColumn = "week_start"
	}
	if f.RunDateColumn == "" {
		f.RunDateColumn = "run_date"
	}
	if f.TargetColumn == "" {
		f.TargetColumn = "orders_outcome_var"
	}
	if f.ExcludeColumns == nil {
		f.ExcludeColumns = []string{"disapproving"}
	}
	if f.Components == 0 {
		f.Components = 4
	}
	if f.TrainFraction == 0 {
		f.TrainFraction = 0.8
	}
	if f.SeasonalPeriod == 0 {
		f.SeasonalPeriod = 52
	}
	if f.OutlierSigma == 0 {
		f.OutlierSigma = 3
	}

	if c.Tracker.Experiment == "" {
		c.Tracker.Experiment = "SARIMAX"
	}
}

func (c *Config) loadEnv() {
	setFromEnv(&c.Storage.ConnectionString, EnvStorageConnectionString)
	setFromEnv(&c.Storage.AccountURL, EnvStorageAccountURL)
	setFromEnv(&c.Database.Host, EnvDBHost)
	setFromEnv(&c.Database.Port, EnvDBPort)
	setFromEnv(&c.Database.User, EnvDBUser)
	setFromEnv(&c.Database.Password, EnvDBPassword)
	setFromEnv(&c.Database.DBName, EnvDBName)
	setFromEnv(&c.NATS.URL, EnvNATSURL)
	setFromEnv(&c.Logging.Level, EnvLogLevel)
	setFromEnv(&c.Tracker.URI, EnvTrackingURI)
	setFromEnv(&c.Tracker.Username, EnvTrackingUsername)
	setFromEnv(&c.Tracker.Password, EnvTrackingPassword)
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local":
	case "azure":
		if c.Storage.ConnectionString == "" && c.Storage.AccountURL == "" {
			return fmt.Errorf("storage: azure backend requires connection_string or account_url")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Sources.LookbackDays < 1 {
		return fmt.Errorf("sources: lookback_days must be positive, got %d", c.Sources.LookbackDays)
	}
	if len(c.Sources.Presidents) == 0 {
		return fmt.Errorf("sources: presidents list is empty")
	}
	if c.HTTP.RetryCount < 0 {
		return fmt.Errorf("http: retry_count must not be negative")
	}
	if _, err := strconv.Atoi(c.Database.Port); err != nil {
		return fmt.Errorf("database: invalid port %q", c.Database.Port)
	}

	f := c.Forecast
	for _, name := range []string{f.SnapshotTable, f.OutputTable, f.DateColumn, f.RunDateColumn, f.TargetColumn} {
		if !identifierRegex.MatchString(name) {
			return fmt.Errorf("forecast: invalid identifier %q", name)
		}
	}
	if f.TrainFraction <= 0 || f.TrainFraction >= 1 {
		return fmt.Errorf("forecast: train_fraction must be in (0, 1), got %v", f.TrainFraction)
	}
	if f.Components < 1 {
		return fmt.Errorf("forecast: components must be positive")
	}
	if f.SeasonalPeriod < 2 {
		return fmt.Errorf("forecast: seasonal_period must be at least 2")
	}
	if f.MaxOrder < 0 || f.MaxOrder > 3 {
		return fmt.Errorf("forecast: max_order must be between 0 and 3")
	}
	return nil
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return d, nil
}
