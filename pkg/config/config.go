package config

import (
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"

	EnvironmentTest = "test"

	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/canon.yaml"
)

type Config struct {
	DatabaseDriver            string        `koanf:"database_driver" default:"sqlite"`
	DatabaseFilePath          string        `koanf:"database_file_path" required:"sqlite"`
	DatabaseURL               string        `koanf:"database_url" required:"postgres" json:"-"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`
	DatabaseMaxOpenConns      int           `koanf:"database_max_open_conns" default:"10"`
	DatabaseDebug             bool          `koanf:"database_debug"`

	// Environment enables the /test routes when set to "test".
	Environment string `koanf:"environment" default:"production"`

	ServerHost string `koanf:"server_host" default:"0.0.0.0"`
	ServerPort int    `koanf:"server_port" default:"3689"`

	GoogleBooksAPIKey  string `koanf:"google_books_api_key" json:"-"`
	GoogleBooksBaseURL string `koanf:"google_books_base_url" default:"https://www.googleapis.com/books/v1"`
	OpenLibraryBaseURL string `koanf:"open_library_base_url" default:"https://openlibrary.org"`
	NYTimesAPIKey      string `koanf:"nytimes_api_key" json:"-"`
	NYTimesBaseURL     string `koanf:"nytimes_base_url" default:"https://api.nytimes.com/svc/books/v3"`

	// ProviderTimeout bounds every external call made on a read path.
	ProviderTimeout    time.Duration `koanf:"provider_timeout" default:"3s"`
	LocalSearchTimeout time.Duration `koanf:"local_search_timeout" default:"1500ms"`
	// CircuitResetTimeZone is where the upstream quota day rolls over.
	CircuitResetTimeZone string        `koanf:"circuit_reset_time_zone" default:"America/Los_Angeles"`
	SearchBatchWindow    time.Duration `koanf:"search_batch_window" default:"250ms"`

	BackfillQueueCapacity  int     `koanf:"backfill_queue_capacity" default:"5000"`
	BackfillRatePerSecond  float64 `koanf:"backfill_rate_per_second" default:"1"`
	BackfillBurst          int     `koanf:"backfill_burst" default:"2"`
	ProviderBulkhead       int64   `koanf:"provider_bulkhead" default:"4"`
	ProviderRatePerSecond  float64 `koanf:"provider_rate_per_second" default:"5"`
	BestsellerLists        string  `koanf:"bestseller_lists" default:"hardcover-fiction,hardcover-nonfiction"`
	SyncIntervalMinutes    int     `koanf:"sync_interval_minutes" default:"1440"`
	WorkerProcesses        int     `koanf:"worker_processes" default:"2"`
	BestsellerSyncDisabled bool    `koanf:"bestseller_sync_disabled"`
}

// New loads the config from the YAML file named by CONFIG_FILE (if it
// exists) and then from environment variables, which take precedence.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	path := os.Getenv(configFileENV)
	if path == "" {
		path = defaultConfigFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(err, "failed to load config file %s", path)
	}

	keys := knownKeys()
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := keys[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a config backed by an in-memory database.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	cfg.BestsellerSyncDisabled = true
	cfg.Environment = EnvironmentTest
	return cfg
}

// BestsellerListNames splits the configured list codes.
func (cfg *Config) BestsellerListNames() []string {
	names := []string{}
	for _, name := range strings.Split(cfg.BestsellerLists, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (cfg *Config) validate() error {
	switch cfg.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return errors.Errorf("invalid config: database_driver must be %q or %q", DatabaseDriverSQLite, DatabaseDriverPostgres)
	}

	if _, err := time.LoadLocation(cfg.CircuitResetTimeZone); err != nil {
		return errors.Wrap(err, "invalid config: circuit_reset_time_zone")
	}

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		driver, ok := field.Tag.Lookup("required")
		if !ok || driver != cfg.DatabaseDriver {
			continue
		}
		if v.Field(i).IsZero() {
			key := toSnakeCase(field.Name)
			return errors.Errorf("missing required config: set %s env or %s in config file", strings.ToUpper(key), key)
		}
	}

	return nil
}

// knownKeys returns the config keys so unrelated environment variables are
// ignored.
func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("koanf"); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
