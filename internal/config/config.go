package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/app/meeting"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AdmissionConfig struct {
	Policy    string        `mapstructure:"policy" yaml:"policy"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

type SessionConfig struct {
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace" yaml:"reconnect_grace"`
}

type RecordingConfig struct {
	AckTimeout time.Duration   `mapstructure:"ack_timeout" yaml:"ack_timeout"`
	Backoff    []time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

type BusConfig struct {
	JournalSize      int `mapstructure:"journal_size" yaml:"journal_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
}

type RecorderConfig struct {
	// Latency simulates the acknowledgement delay of the in-memory recorder.
	Latency time.Duration `mapstructure:"latency" yaml:"latency"`
}

type SignalConfig struct {
	JoinLimit    int           `mapstructure:"join_limit" yaml:"join_limit"`
	JoinInterval time.Duration `mapstructure:"join_interval" yaml:"join_interval"`
	SendBuffer   int           `mapstructure:"send_buffer" yaml:"send_buffer"`
}

type RTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers" yaml:"ice_servers"`
}

type Config struct {
	Mode       string `mapstructure:"mode" yaml:"mode"`
	Port       int    `mapstructure:"port" yaml:"port"`
	StaticPath string `mapstructure:"static_path" yaml:"static_path"`
	Secret     string `mapstructure:"secret" yaml:"secret"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`

	Admission AdmissionConfig `mapstructure:"admission" yaml:"admission"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Bus       BusConfig       `mapstructure:"bus" yaml:"bus"`
	Recorder  RecorderConfig  `mapstructure:"recorder" yaml:"recorder"`
	Signal    SignalConfig    `mapstructure:"signal" yaml:"signal"`
	RTC       RTCConfig       `mapstructure:"rtc" yaml:"rtc"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). A missing
// file leaves the defaults; MEET_* variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := meeting.DefaultOptions()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("admission.policy", string(d.AdmissionPolicy))
	v.SetDefault("admission.timeout", d.AdmissionTimeout)
	v.SetDefault("admission.retention", d.AdmissionRetention)
	v.SetDefault("session.reconnect_grace", d.ReconnectGrace)
	v.SetDefault("recording.ack_timeout", d.Recording.AckTimeout)
	v.SetDefault("recording.backoff", d.Recording.Backoff)
	v.SetDefault("bus.journal_size", d.JournalSize)
	v.SetDefault("bus.subscriber_buffer", d.SubscriberBuffer)
	v.SetDefault("recorder.latency", "200ms")
	v.SetDefault("signal.join_limit", 5)
	v.SetDefault("signal.join_interval", "1m")
	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("rtc.ice_servers", []string{"stun:stun.l.google.com:19302"})
}

func (c *Config) validate() error {
	if !domain.AdmissionPolicy(c.Admission.Policy).Valid() {
		return fmt.Errorf("invalid admission.policy %q", c.Admission.Policy)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Level is the configured zerolog level; unknown values mean info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// MeetingOptions carries the session tunables. Recorder and Policy are left
// for the caller to wire.
func (c *Config) MeetingOptions() meeting.Options {
	return meeting.Options{
		AdmissionPolicy:    domain.AdmissionPolicy(c.Admission.Policy),
		AdmissionTimeout:   c.Admission.Timeout,
		AdmissionRetention: c.Admission.Retention,
		ReconnectGrace:     c.Session.ReconnectGrace,
		Recording: meeting.RecordingOptions{
			AckTimeout: c.Recording.AckTimeout,
			Backoff:    c.Recording.Backoff,
		},
		JournalSize:      c.Bus.JournalSize,
		SubscriberBuffer: c.Bus.SubscriberBuffer,
		Now:              time.Now,
	}
}

func (c *Config) WebRTC() webrtc.Configuration {
	if len(c.RTC.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.RTC.ICEServers}},
	}
}
