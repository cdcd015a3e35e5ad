package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Risk         RiskConfig         `koanf:"risk"`
	Dispatch     DispatchConfig     `koanf:"dispatch"`
	Notify       NotifyConfig       `koanf:"notify"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Security     SecurityConfig     `koanf:"security"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// RiskConfig carries the scorer's look-back window and rule weights
type RiskConfig struct {
	LookbackDays int `koanf:"lookback_days"`

	ContactAttemptWeight   int `koanf:"contact_attempt_weight"`
	ContactTamperingWeight int `koanf:"contact_tampering_weight"`

	BurstThreshold int           `koanf:"burst_threshold"`
	BurstWindow    time.Duration `koanf:"burst_window"`
	BurstScore     int           `koanf:"burst_score"`

	PermissionDenialThreshold int `koanf:"permission_denial_threshold"`
	PermissionDenialWeight    int `koanf:"permission_denial_weight"`
	SensitivePermissionWeight int `koanf:"sensitive_permission_weight"`

	NightStartHour   int     `koanf:"night_start_hour"`
	NightEndHour     int     `koanf:"night_end_hour"`
	NightThreshold   int     `koanf:"night_threshold"`
	NightWeight      int     `koanf:"night_weight"`
	WeekendRatio     float64 `koanf:"weekend_ratio"`
	WeekendMinEvents int     `koanf:"weekend_min_events"`
	WeekendScore     int     `koanf:"weekend_score"`

	SafetyTamperingWeight int `koanf:"safety_tampering_weight"`
	SurveillanceThreshold int `koanf:"surveillance_threshold"`
	SurveillanceScore     int `koanf:"surveillance_score"`

	EscalationHistory int `koanf:"escalation_history"`
	EscalationMargin  int `koanf:"escalation_margin"`
	EscalationScore   int `koanf:"escalation_score"`

	PanicTriggerScore     int `koanf:"panic_trigger_score"`
	TamperingTriggerScore int `koanf:"tampering_trigger_score"`
}

type DispatchConfig struct {
	ChannelTimeout     time.Duration `koanf:"channel_timeout"`
	CriticalSMSRepeats int           `koanf:"critical_sms_repeats"`
	SMSSpacing         time.Duration `koanf:"sms_spacing"`
	ManualRetryBackoff time.Duration `koanf:"manual_retry_backoff"`
}

// NotifyConfig points at the platform's notification gateway. All remote
// channels (SMS, calls, push, advocate) go through it.
type NotifyConfig struct {
	GatewayURL   string        `koanf:"gateway_url"`
	APIKey       string        `koanf:"api_key"`
	Timeout      time.Duration `koanf:"timeout"`
	RateLimitRPS int           `koanf:"rate_limit_rps"`
}

type ConnectivityConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	MissThreshold     int           `koanf:"miss_threshold"`
	ProbeTimeout      time.Duration `koanf:"probe_timeout"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRate   float64 `koanf:"sample_rate"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Risk: RiskConfig{
			LookbackDays:              7,
			ContactAttemptWeight:      15,
			ContactTamperingWeight:    25,
			BurstThreshold:            3,
			BurstWindow:               time.Hour,
			BurstScore:                30,
			PermissionDenialThreshold: 2,
			PermissionDenialWeight:    10,
			SensitivePermissionWeight: 20,
			NightStartHour:            23,
			NightEndHour:              6,
			NightThreshold:            5,
			NightWeight:               8,
			WeekendRatio:              0.6,
			WeekendMinEvents:          1,
			WeekendScore:              20,
			SafetyTamperingWeight:     40,
			SurveillanceThreshold:     20,
			SurveillanceScore:         15,
			EscalationHistory:         3,
			EscalationMargin:          10,
			EscalationScore:           25,
			PanicTriggerScore:         30,
			TamperingTriggerScore:     40,
		},
		Dispatch: DispatchConfig{
			ChannelTimeout:     10 * time.Second,
			CriticalSMSRepeats: 3,
			SMSSpacing:         2 * time.Second,
			ManualRetryBackoff: 5 * time.Second,
		},
		Notify: NotifyConfig{
			GatewayURL:   "http://localhost:8090",
			Timeout:      15 * time.Second,
			RateLimitRPS: 20,
		},
		Connectivity: ConnectivityConfig{
			HeartbeatInterval: 5 * time.Minute,
			MissThreshold:     3,
			ProbeTimeout:      10 * time.Second,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Telemetry: TelemetryConfig{
			SampleRate: 0.1,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if err := k.Load(file.Provider("configs/config.yaml"), yaml.Parser()); err != nil {
		_ = err
	}

	// Environment variables win: ELDER_SERVER_PORT=9090 -> server.port
	if err := k.Load(env.Provider("ELDER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ELDER_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
