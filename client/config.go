package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var validate = validator.New()

type Config struct {
	// WSURL is the websocket endpoint of the chat server.
	WSURL string `mapstructure:"ws_url" validate:"required,url"`
	// APIURL is the base URL of the REST collaborator endpoints.
	APIURL string `mapstructure:"api_url" validate:"omitempty,url"`
	// Token is the bearer token issued by the authentication collaborator.
	Token string `mapstructure:"token" validate:"required"`
	// UserID is the session user's id, assigned at login. Live messages
	// with this sender id are recognized as the client's own sends.
	UserID int64 `mapstructure:"user_id" validate:"required"`
	// Name and Avatar decorate optimistic messages before the server
	// echoes them back.
	Name   string `mapstructure:"name"`
	Avatar string `mapstructure:"avatar"`

	// Heartbeat is the ping period. PongWait is how long the connection
	// may stay silent before it is torn down and redialed.
	Heartbeat time.Duration `mapstructure:"heartbeat" validate:"required"`
	PongWait  time.Duration `mapstructure:"pong_wait" validate:"required,gtfield=Heartbeat"`

	// ResendInterval is the initial retransmission delay for pending
	// sends; it backs off exponentially up to ResendMaxInterval.
	ResendInterval    time.Duration `mapstructure:"resend_interval" validate:"required"`
	ResendMaxInterval time.Duration `mapstructure:"resend_max_interval" validate:"required"`
	// ResendMaxRetries caps retransmissions before a send is declared
	// failed.
	ResendMaxRetries int `mapstructure:"resend_max_retries" validate:"required,min=1"`

	ReconnectMaxInterval time.Duration `mapstructure:"reconnect_max_interval" validate:"required"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout" validate:"required"`
}

// LoadConfig loads the configuration from the config file and environment
// variables. Invalid values are caught in the validation step.
func LoadConfig() (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("heartbeat", "7500ms")
	viper.SetDefault("pong_wait", "30s")
	viper.SetDefault("resend_interval", "5s")
	viper.SetDefault("resend_max_interval", "60s")
	viper.SetDefault("resend_max_retries", 10)
	viper.SetDefault("reconnect_max_interval", "30s")
	viper.SetDefault("dial_timeout", "10s")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc()),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
