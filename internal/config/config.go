package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/remoterg/internal/domain"
)

const envPrefix = "REMOTERG"

// Relay configures the relay server.
type Relay struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	Secret        string        `mapstructure:"secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	JanitorPeriod time.Duration `mapstructure:"janitor_period"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	UpgradeLimit  int           `mapstructure:"upgrade_limit"`
	UpgradeWindow time.Duration `mapstructure:"upgrade_window"`
	// SessionLimit caps sessions minted per client token per upgrade window.
	SessionLimit int    `mapstructure:"session_limit"`
	LogLevel     string `mapstructure:"log_level"`
}

// Viewer configures the headless viewer client.
type Viewer struct {
	RelayURL          string        `mapstructure:"relay_url"`
	SessionID         string        `mapstructure:"session_id"`
	Codec             string        `mapstructure:"codec"`
	ICEServers        []string      `mapstructure:"ice_servers"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	HealthInterval    time.Duration `mapstructure:"health_interval"`
	ControlRetryDelay time.Duration `mapstructure:"control_retry_delay"`
	ControlLabel      string        `mapstructure:"control_label"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir"`
	RecordDir         string        `mapstructure:"record_dir"`
	RecordVideo       bool          `mapstructure:"record_video"`
	RecordAudio       bool          `mapstructure:"record_audio"`
	AutoConnect       bool          `mapstructure:"auto_connect"`
	LogLevel          string        `mapstructure:"log_level"`
}

func relayFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	fs.String("config", "", "config file (default config/relay.<CONFIG_ENV>.yaml)")
	fs.String("mode", "release", "gin mode: debug or release")
	fs.Int("port", 8080, "listen port")
	fs.Duration("session-ttl", 10*time.Minute, "idle time before a relay is suspended")
	fs.String("log-level", "info", "log level")
	return fs
}

func viewerFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("viewer", pflag.ContinueOnError)
	fs.String("config", "", "config file (default config/viewer.<CONFIG_ENV>.yaml)")
	fs.String("relay-url", "ws://localhost:8080/ws", "relay upgrade endpoint")
	fs.String("session-id", "", "session to join")
	fs.String("codec", "h264", "preferred video codec (h264, vp8, vp9, any)")
	fs.String("screenshot-dir", "./screenshots", "where received screenshots are written")
	fs.String("record-dir", "", "record incoming media into this directory")
	fs.Bool("auto-connect", true, "connect on start")
	fs.String("log-level", "info", "log level")
	return fs
}

// LoadRelay reads the relay configuration from defaults, the config file,
// REMOTERG_* environment variables and args, later sources winning.
func LoadRelay(args []string) (*Relay, error) {
	v, err := load("relay", relayFlags(), args, func(v *viper.Viper) {
		v.SetDefault("mode", "release")
		v.SetDefault("port", 8080)
		v.SetDefault("secret", "remoterg-dev-secret")
		v.SetDefault("session_ttl", "10m")
		v.SetDefault("janitor_period", "30s")
		v.SetDefault("read_limit", 65536)
		v.SetDefault("ping_period", "54s")
		v.SetDefault("upgrade_limit", 10)
		v.SetDefault("upgrade_window", "1m")
		v.SetDefault("session_limit", 20)
		v.SetDefault("log_level", "info")
	})
	if err != nil {
		return nil, err
	}
	var cfg Relay
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Dur("session_ttl", cfg.SessionTTL).Msg("relay config")
	return &cfg, nil
}

func (c *Relay) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.JanitorPeriod <= 0 {
		errs = append(errs, errors.New("janitor_period must be positive"))
	}
	if c.UpgradeWindow <= 0 {
		errs = append(errs, errors.New("upgrade_window must be positive"))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret must be set"))
	}
	return errors.Join(errs...)
}

// LoadViewer reads the viewer configuration the same way LoadRelay does.
func LoadViewer(args []string) (*Viewer, error) {
	v, err := load("viewer", viewerFlags(), args, func(v *viper.Viper) {
		v.SetDefault("relay_url", "ws://localhost:8080/ws")
		v.SetDefault("session_id", "")
		v.SetDefault("codec", "h264")
		v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
		v.SetDefault("keepalive_interval", "5s")
		v.SetDefault("health_interval", "2s")
		v.SetDefault("control_retry_delay", "1s")
		v.SetDefault("control_label", "control")
		v.SetDefault("screenshot_dir", "./screenshots")
		v.SetDefault("record_dir", "")
		v.SetDefault("record_video", false)
		v.SetDefault("record_audio", false)
		v.SetDefault("auto_connect", true)
		v.SetDefault("log_level", "info")
	})
	if err != nil {
		return nil, err
	}
	var cfg Viewer
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("relay_url", cfg.RelayURL).Str("session_id", cfg.SessionID).
		Str("codec", cfg.Codec).Msg("viewer config")
	return &cfg, nil
}

func (c *Viewer) Validate() error {
	var errs []error
	if c.RelayURL == "" {
		errs = append(errs, errors.New("relay_url must be set"))
	}
	if _, err := domain.ParseSessionID(c.SessionID); err != nil {
		errs = append(errs, fmt.Errorf("session_id: %w", err))
	}
	if c.KeepaliveInterval <= 0 || c.HealthInterval <= 0 || c.ControlRetryDelay <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}
	return errors.Join(errs...)
}

func load(name string, fs *pflag.FlagSet, args []string, defaults func(*viper.Viper)) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	defaults(v)

	fileName, _ := fs.GetString("config")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/%s.%s.yaml", name, env)
	}
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return v, nil
}
