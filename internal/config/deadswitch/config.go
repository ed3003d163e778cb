package deadswitch_config

import (
	"time"

	"github.com/NordCoder/Deadswitch/internal/obs"
	pg "github.com/NordCoder/Deadswitch/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Redis is optional; an empty Addr selects the in-process run lock.
type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type Kafka struct {
	Enable  bool     `mapstructure:"enable"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	OutboxWorkers       int           `mapstructure:"outbox_workers"`
	OutboxBatch         int           `mapstructure:"outbox_batch"`
	OutboxWait          time.Duration `mapstructure:"outbox_wait"`
	OutboxInProgressTTL time.Duration `mapstructure:"outbox_in_progress_ttl"`
	OutboxMaxAttempts   int           `mapstructure:"outbox_max_attempts"`
	OutboxRetention     time.Duration `mapstructure:"outbox_retention"`
}

// SMTP with an empty Addr means no notification channel is configured.
type SMTP struct {
	Addr     string        `mapstructure:"addr"`
	From     string        `mapstructure:"from"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Dispatch struct {
	Threshold      time.Duration `mapstructure:"threshold"`
	DedupWindow    time.Duration `mapstructure:"dedup_window"`
	Workers        int           `mapstructure:"workers"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	SendRate       float64       `mapstructure:"send_rate"`
	Timezone       string        `mapstructure:"timezone"`
	Interval       time.Duration `mapstructure:"interval"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockKey        string        `mapstructure:"lock_key"`
	StatusTimezone string        `mapstructure:"status_timezone"`

	// StatusHistory is how many recent check-ins the status reads; streaks cap at this many days.
	StatusHistory int `mapstructure:"status_history"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Trigger protects the job endpoint. An empty TokenHash leaves it open.
type Trigger struct {
	TokenHash string `mapstructure:"token_hash"`
}

type Config struct {
	App      App       `mapstructure:"app"`
	Log      Log       `mapstructure:"log"`
	OTEL     OTEL      `mapstructure:"otel"`
	DB       pg.Config `mapstructure:"db"`
	Redis    Redis     `mapstructure:"redis"`
	Kafka    Kafka     `mapstructure:"kafka"`
	SMTP     SMTP      `mapstructure:"smtp"`
	Dispatch Dispatch  `mapstructure:"dispatch"`
	Server   Server    `mapstructure:"server"`
	Trigger  Trigger   `mapstructure:"trigger"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

func (c *Config) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		Version:     c.App.Version,
		Env:         c.App.Env,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
