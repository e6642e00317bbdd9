package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/isqad/livelook-uplink/internal/uplink"
)

const envPrefix = "livelook"

const (
	RedisDriver = "redis"
	NATSDriver  = "nats"
)

var (
	ErrUnknownRosterDriver = errors.New("unknown roster driver")
	ErrInvalidBandwidth    = errors.New("ideal max bandwidth must be positive")
	ErrEmptySession        = errors.New("uplink session id is required")
)

type Environment string

const (
	DevelopmentEnv Environment = "development"
	ProductionEnv  Environment = "production"
)

func (e Environment) IsProduction() bool {
	return e == ProductionEnv
}

func (e Environment) IsDevelopment() bool {
	return e == DevelopmentEnv
}

type Config struct {
	Env     Environment   `mapstructure:"env"`
	Uplink  UplinkConfig  `mapstructure:"uplink"`
	Roster  RosterConfig  `mapstructure:"roster"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Publish PublishConfig `mapstructure:"publish"`
}

type UplinkConfig struct {
	Policy                string `mapstructure:"policy"`
	SessionID             string `mapstructure:"session_id"`
	SelfAttendeeID        string `mapstructure:"self_attendee_id"`
	IdealMaxBandwidthKbps int    `mapstructure:"ideal_max_bandwidth_kbps"`
	BandwidthPriority     bool   `mapstructure:"bandwidth_priority"`
}

type RosterConfig struct {
	Driver    string `mapstructure:"driver"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	NATSURL   string `mapstructure:"nats_url"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// PublishConfig is the WHIP endpoint the camera is published to. An empty
// URL leaves publishing to another process.
type PublishConfig struct {
	URL        string   `mapstructure:"url"`
	ICEServers []string `mapstructure:"ice_servers"`
}

func NewConfig() *Config {
	conf := &Config{
		Env: DevelopmentEnv,
		Uplink: UplinkConfig{
			Policy:                uplink.NScalePolicyName,
			IdealMaxBandwidthKbps: uplink.DefaultIdealMaxBandwidthKbps,
		},
		Roster: RosterConfig{
			Driver:    RedisDriver,
			RedisAddr: "localhost:6379",
			NATSURL:   "nats://127.0.0.1:4222",
		},
		HTTP: HTTPConfig{
			Address: ":8080",
		},
		Publish: PublishConfig{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
	}

	return conf
}

// Override is applied after the config file and env, e.g. from command line flags.
type Override func(v *viper.Viper)

// Set overrides a single key such as "uplink.session_id".
func Set(key string, value interface{}) Override {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load reads the optional config file at path and applies LIVELOOK_* env
// overrides on top of NewConfig defaults, e.g. LIVELOOK_UPLINK_SESSION_ID.
func Load(path string, overrides ...Override) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, override := range overrides {
		override(v)
	}

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if conf.Uplink.SelfAttendeeID == "" {
		conf.Uplink.SelfAttendeeID = uuid.NewString()
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) Validate() error {
	if c.Uplink.SessionID == "" {
		return ErrEmptySession
	}
	if c.Uplink.IdealMaxBandwidthKbps <= 0 {
		return ErrInvalidBandwidth
	}

	switch c.Uplink.Policy {
	case "", uplink.NScalePolicyName, uplink.NoVideoPolicyName:
	default:
		return fmt.Errorf("%w: %q", uplink.ErrUnknownPolicy, c.Uplink.Policy)
	}

	switch c.Roster.Driver {
	case RedisDriver, NATSDriver:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRosterDriver, c.Roster.Driver)
	}

	return nil
}

func setDefaults(v *viper.Viper, conf *Config) {
	v.SetDefault("env", string(conf.Env))

	v.SetDefault("uplink.policy", conf.Uplink.Policy)
	v.SetDefault("uplink.session_id", conf.Uplink.SessionID)
	v.SetDefault("uplink.self_attendee_id", conf.Uplink.SelfAttendeeID)
	v.SetDefault("uplink.ideal_max_bandwidth_kbps", conf.Uplink.IdealMaxBandwidthKbps)
	v.SetDefault("uplink.bandwidth_priority", conf.Uplink.BandwidthPriority)

	v.SetDefault("roster.driver", conf.Roster.Driver)
	v.SetDefault("roster.redis_addr", conf.Roster.RedisAddr)
	v.SetDefault("roster.redis_db", conf.Roster.RedisDB)
	v.SetDefault("roster.nats_url", conf.Roster.NATSURL)

	v.SetDefault("http.address", conf.HTTP.Address)

	v.SetDefault("publish.url", conf.Publish.URL)
	v.SetDefault("publish.ice_servers", conf.Publish.ICEServers)
}
