// Package config loads go-speaky configuration from defaults, an optional
// YAML file and the environment.
//
// Every key can be overridden with a SPEAKY_ prefixed variable where dots become
// underscores (openai.model -> SPEAKY_OPENAI_MODEL). The well-known variables
// OPENAI_API_KEY, ETH_RPC_URL and WALLET_PRIVATE_KEY are honoured as well.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Transport TransportConfig `mapstructure:"transport"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Audio     AudioConfig     `mapstructure:"audio"`
}

// OpenAIConfig configures access to the speech provider.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Voice   string `mapstructure:"voice"`
}

// BrokerConfig configures the credential broker and dashboard server.
type BrokerConfig struct {
	// Addr is the listen address for `speaky serve`.
	Addr string `mapstructure:"addr"`
	// URL is where the assistant reaches the broker.
	URL string `mapstructure:"url"`
	// Mode selects the signalling flow: "token" or "session".
	Mode string `mapstructure:"mode"`
	// StaticDir is served at / by the dashboard when set.
	StaticDir string `mapstructure:"static_dir"`
}

// TransportConfig configures the realtime session.
type TransportConfig struct {
	// Kind is "webrtc" or "websocket".
	Kind           string        `mapstructure:"kind"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	EventLogCap    int           `mapstructure:"event_log_cap"`
	WireTimestamps bool          `mapstructure:"wire_timestamps"`
	InitGap        time.Duration `mapstructure:"init_gap"`
	OutputGap      time.Duration `mapstructure:"output_gap"`
}

// WalletConfig configures the Ethereum wallet adapter.
type WalletConfig struct {
	RPCURL           string        `mapstructure:"rpc_url"`
	PrivateKey       string        `mapstructure:"private_key"`
	DefaultRecipient string        `mapstructure:"default_recipient"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	AutoConnect      bool          `mapstructure:"auto_connect"`
}

// AudioConfig configures the optional audio plumbing of `speaky talk`.
type AudioConfig struct {
	// OutputFile receives decoded PCM16LE 48kHz mono assistant speech ("-" for stdout).
	OutputFile string `mapstructure:"output_file"`
	// InputFile provides PCM16LE 48kHz mono microphone audio ("-" for stdin).
	InputFile string `mapstructure:"input_file"`
}

// Default values.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-realtime"
	DefaultVoice          = "marin"
	DefaultBrokerAddr     = ":3000"
	DefaultBrokerURL      = "http://localhost:3000"
	DefaultRecipient      = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
	DefaultEventLogCap    = 500
	DefaultSTUNServer     = "stun:stun.l.google.com:19302"
	DefaultInitGap        = 500 * time.Millisecond
	DefaultOutputGap      = 100 * time.Millisecond
	DefaultConfirmTimeout = 2 * time.Minute
	TransportWebRTC       = "webrtc"
	TransportWebSocket    = "websocket"
	BrokerModeToken       = "token"
	BrokerModeSession     = "session"
)

// ErrInvalid wraps configuration validation failures.
var ErrInvalid = errors.New("config: invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("openai.base_url", DefaultBaseURL)
	v.SetDefault("openai.model", DefaultModel)
	v.SetDefault("openai.voice", DefaultVoice)
	v.SetDefault("broker.addr", DefaultBrokerAddr)
	v.SetDefault("broker.url", DefaultBrokerURL)
	v.SetDefault("broker.mode", BrokerModeToken)
	v.SetDefault("broker.static_dir", "")
	v.SetDefault("transport.kind", TransportWebRTC)
	v.SetDefault("transport.ice_servers", []string{DefaultSTUNServer})
	v.SetDefault("transport.event_log_cap", DefaultEventLogCap)
	v.SetDefault("transport.wire_timestamps", false)
	v.SetDefault("transport.init_gap", DefaultInitGap)
	v.SetDefault("transport.output_gap", DefaultOutputGap)
	v.SetDefault("wallet.default_recipient", DefaultRecipient)
	v.SetDefault("wallet.confirm_timeout", DefaultConfirmTimeout)
	v.SetDefault("wallet.auto_connect", false)
	v.SetDefault("audio.output_file", "")
	v.SetDefault("audio.input_file", "")
}

// Load reads configuration. path may be empty, in which case only defaults and
// environment variables are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPEAKY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// SPEAKY_ names take precedence over the conventional ones.
	_ = v.BindEnv("openai.api_key", "SPEAKY_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("wallet.rpc_url", "SPEAKY_WALLET_RPC_URL", "ETH_RPC_URL")
	_ = v.BindEnv("wallet.private_key", "SPEAKY_WALLET_PRIVATE_KEY", "WALLET_PRIVATE_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportWebRTC, TransportWebSocket:
	default:
		return fmt.Errorf("%w: transport.kind %q", ErrInvalid, c.Transport.Kind)
	}
	switch c.Broker.Mode {
	case BrokerModeToken, BrokerModeSession:
	default:
		return fmt.Errorf("%w: broker.mode %q", ErrInvalid, c.Broker.Mode)
	}
	if c.Transport.EventLogCap < 0 {
		return fmt.Errorf("%w: transport.event_log_cap must be >= 0", ErrInvalid)
	}
	if c.Transport.InitGap < 0 || c.Transport.OutputGap < 0 {
		return fmt.Errorf("%w: transport gaps must be >= 0", ErrInvalid)
	}
	return nil
}
