package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds application configuration values
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Static   StaticSource   `mapstructure:"static"`
	API      APISource      `mapstructure:"api"`
	Dynamic  DynamicSource  `mapstructure:"dynamic"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// HTTPConfig applies to every outbound HTTP request
type HTTPConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout"`
	UserAgent string            `mapstructure:"user_agent"`
	Proxy     string            `mapstructure:"proxy"`
	Headers   map[string]string `mapstructure:"headers"`
}

// RatePolicy selects the governor policy for one source kind
type RatePolicy struct {
	Policy  string        `mapstructure:"policy"`
	Delay   time.Duration `mapstructure:"delay"`
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// StaticSource configures the form-POST company lookup. ExtraForm keys are
// lowercased by viper, so the built-in form fields live in the strategy and
// ExtraForm only adds to them.
type StaticSource struct {
	Endpoint  string            `mapstructure:"endpoint"`
	FormField string            `mapstructure:"form_field"`
	ExtraForm map[string]string `mapstructure:"extra_form"`
	Headers   map[string]string `mapstructure:"headers"`
	Container string            `mapstructure:"container"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	Rate      RatePolicy        `mapstructure:"rate"`
}

// APISource configures the developer profile API
type APISource struct {
	BaseURL  string        `mapstructure:"base_url"`
	Token    string        `mapstructure:"token"`
	MaxPages int           `mapstructure:"max_pages"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Rate     RatePolicy    `mapstructure:"rate"`
}

// DynamicSource configures the rendered job listing page
type DynamicSource struct {
	URL         string        `mapstructure:"url"`
	Container   string        `mapstructure:"container"`
	Item        string        `mapstructure:"item"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	Rate        RatePolicy    `mapstructure:"rate"`
}

// PipelineConfig controls the orchestrator
type PipelineConfig struct {
	Workers     int           `mapstructure:"workers"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// BrowserConfig controls the render driver
type BrowserConfig struct {
	Headless    bool   `mapstructure:"headless"`
	MaxSessions int    `mapstructure:"max_sessions"`
	ChromePath  string `mapstructure:"chrome_path"`

	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// StoreConfig selects the sink backend
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	ExportDir string `mapstructure:"export_dir"`
}

// ServerConfig configures the lookup API
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultJSONLog)

	v.SetDefault("http.timeout", DefaultHTTPTimeout)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.proxy", "")

	v.SetDefault("static.endpoint", DefaultStaticEndpoint)
	v.SetDefault("static.form_field", DefaultStaticFormField)
	v.SetDefault("static.container", DefaultStaticContainer)
	v.SetDefault("static.rate.policy", PolicyFixed)
	v.SetDefault("static.rate.delay", DefaultStaticDelay)
	v.SetDefault("static.timeout", time.Duration(0))

	v.SetDefault("api.base_url", DefaultAPIBaseURL)
	v.SetDefault("api.token", "")
	v.SetDefault("api.max_pages", DefaultAPIMaxPages)
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("api.rate.policy", PolicyQuota)
	v.SetDefault("api.rate.max_wait", DefaultAPIMaxWait)

	v.SetDefault("dynamic.url", DefaultDynamicURL)
	v.SetDefault("dynamic.container", DefaultDynamicContainer)
	v.SetDefault("dynamic.item", DefaultDynamicItem)
	v.SetDefault("dynamic.wait_timeout", DefaultDynamicWaitTimeout)
	v.SetDefault("dynamic.rate.policy", PolicyFixed)
	v.SetDefault("dynamic.rate.delay", DefaultDynamicDelay)

	v.SetDefault("pipeline.workers", DefaultWorkers)
	v.SetDefault("pipeline.max_retries", DefaultMaxRetries)
	v.SetDefault("pipeline.backoff_base", DefaultBackoffBase)
	v.SetDefault("pipeline.backoff_max", DefaultBackoffMax)
	v.SetDefault("pipeline.call_timeout", DefaultCallTimeout)

	v.SetDefault("browser.headless", DefaultBrowserHeadless)
	v.SetDefault("browser.max_sessions", DefaultBrowserMaxSessions)
	v.SetDefault("browser.read_timeout", DefaultBrowserReadTimeout)
	v.SetDefault("browser.chrome_path", "")

	v.SetDefault("store.driver", DefaultStoreDriver)
	v.SetDefault("store.dsn", DefaultStoreDSN)
	v.SetDefault("store.export_dir", "")

	v.SetDefault("server.addr", DefaultListenAddr)
}

// Load builds a Config by combining defaults, an optional config file, environment variables, and CLI flags.
// Caller should pass the executing *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "config: read %s", configFile)
		}
	} else {
		v.SetConfigName("harvest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".harvest"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, eris.Wrap(err, "config: read file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.API.Token == "" {
		cfg.API.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Browser.ChromePath == "" {
		cfg.Browser.ChromePath = os.Getenv("CHROME_PATH")
	}

	if cmd != nil {
		if err := applyFlags(cmd, &cfg); err != nil {
			return nil, err
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, eris.Wrap(err, "invalid config")
	}

	return &cfg, nil
}

// Default returns the configuration used when no file, env or flags apply
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// applyFlags copies explicitly set CLI flags over file and env values
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	changed := func(name string) (string, bool) {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			return "", false
		}
		return f.Value.String(), true
	}

	if s, ok := changed("user-agent"); ok && s != "" {
		cfg.HTTP.UserAgent = s
	}
	if s, ok := changed("proxy"); ok {
		cfg.HTTP.Proxy = s
	}
	if s, ok := changed("timeout"); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return eris.Wrapf(err, "invalid --timeout %q", s)
		}
		cfg.HTTP.Timeout = d
	}
	if s, ok := changed("json"); ok && s == "true" {
		cfg.Log.JSON = true
	}
	if s, ok := changed("verbose"); ok && s == "true" {
		cfg.Log.Level = "debug"
	}
	if s, ok := changed("quiet"); ok && s == "true" {
		cfg.Log.Level = "error"
	}
	if s, ok := changed("store"); ok {
		cfg.Store.Driver = s
	}
	if s, ok := changed("dsn"); ok {
		cfg.Store.DSN = s
	}
	if s, ok := changed("export-dir"); ok {
		cfg.Store.ExportDir = s
	}
	if f := cmd.Flags().Lookup("workers"); f != nil && f.Changed {
		n, err := cmd.Flags().GetInt("workers")
		if err != nil {
			return eris.Wrap(err, "invalid --workers")
		}
		cfg.Pipeline.Workers = n
	}
	if f := cmd.Flags().Lookup("retries"); f != nil && f.Changed {
		n, err := cmd.Flags().GetInt("retries")
		if err != nil {
			return eris.Wrap(err, "invalid --retries")
		}
		cfg.Pipeline.MaxRetries = n
	}
	return nil
}
