package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ICEServer describes one STUN/TURN entry handed to clients as-is.
// The server never talks to these itself.
type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	StaticPath      string        `mapstructure:"static_path"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	MaxParticipants int           `mapstructure:"max_participants"`
	CandidateQueue  int           `mapstructure:"candidate_queue"`
	JoinRateLimit   int           `mapstructure:"join_rate_limit"`
	JoinRateWindow  time.Duration `mapstructure:"join_rate_window"`
	ICEServers      []ICEServer   `mapstructure:"ice_servers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("max_participants", 8)
	v.SetDefault("candidate_queue", 64)
	v.SetDefault("join_rate_limit", 5)
	v.SetDefault("join_rate_window", "10s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
