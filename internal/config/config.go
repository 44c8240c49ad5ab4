package config

import (
	"strings"
	"time"

	"github.com/AegisDefend/aegis-installer/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds all installer configuration. It is loaded once, validated,
// and passed through the pipeline unchanged.
type Config struct {
	Console   ConsoleConfig   `mapstructure:"console"`
	Selection SelectionConfig `mapstructure:"selection"`
	Download  DownloadConfig  `mapstructure:"download"`
	Install   InstallConfig   `mapstructure:"install"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ConsoleConfig holds the management console endpoint and credentials.
type ConsoleConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	SiteToken  string        `mapstructure:"site_token"`
	Channel    string        `mapstructure:"channel"`
	AuthScheme string        `mapstructure:"auth_scheme"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SelectionConfig holds package selection behavior.
type SelectionConfig struct {
	Policy string `mapstructure:"policy"`
	Limit  int    `mapstructure:"limit"`
}

// DownloadConfig holds artifact staging behavior.
type DownloadConfig struct {
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// InstallConfig holds installer driver behavior.
type InstallConfig struct {
	SkipStart    bool   `mapstructure:"skip_start"`
	AutoReboot   bool   `mapstructure:"auto_reboot"`
	ArchOverride string `mapstructure:"arch_override"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from file, environment and defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/aegis")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}

	err = initLogger(&config.Logging)
	if err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys so AutomaticEnv can resolve them.
	v.SetDefault("console.url", "")
	v.SetDefault("console.api_key", "")
	v.SetDefault("console.site_token", "")
	v.SetDefault("console.channel", "ga")
	v.SetDefault("console.auth_scheme", "ApiToken")
	v.SetDefault("console.timeout", "60s")

	v.SetDefault("selection.policy", "version")
	v.SetDefault("selection.limit", 20)

	v.SetDefault("download.dir", "")
	v.SetDefault("download.timeout", "10m")
	v.SetDefault("download.retries", 3)

	v.SetDefault("install.skip_start", false)
	v.SetDefault("install.auto_reboot", false)
	v.SetDefault("install.arch_override", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// initLogger initializes the logger with the provided configuration
func initLogger(cfg *LoggingConfig) error {
	logConfig := logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Module: "main",
	}

	return logger.Init(logConfig)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Console: ConsoleConfig{
			Channel:    "ga",
			AuthScheme: "ApiToken",
			Timeout:    60 * time.Second,
		},
		Selection: SelectionConfig{
			Policy: "version",
			Limit:  20,
		},
		Download: DownloadConfig{
			Timeout: 10 * time.Minute,
			Retries: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
