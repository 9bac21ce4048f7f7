package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/entity"
)

const (
	ModeServer  = "server"
	ModeReplica = "replica"
)

type Config struct {
	Mode       string `yaml:"mode" env:"APP_MODE" env-default:"server"`
	LogLevel   string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	Redis      Redis  `yaml:"redis"`
	Nats       Nats   `yaml:"nats"`
	Bot        Bot    `yaml:"bot"`
	Match      Match  `yaml:"match"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// Nats configures the replica feed. An empty URL disables it.
type Nats struct {
	URL           string `yaml:"url" env:"NATS_URL" env-default:""`
	SubjectPrefix string `yaml:"subject-prefix" env:"NATS_SUBJECT_PREFIX" env-default:"tictactoe.match"`
}

type Bot struct {
	ThinkDelay        time.Duration     `yaml:"think-delay" env:"BOT_THINK_DELAY" env-default:"700ms"`
	DefaultDifficulty entity.Difficulty `yaml:"default-difficulty" env:"BOT_DEFAULT_DIFFICULTY" env-default:"medium"`
}

type Match struct {
	DefaultVariant entity.Variant `yaml:"default-variant" env:"MATCH_DEFAULT_VARIANT" env-default:"expiring"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	if err := config.validate(); err != nil {
		panic(fmt.Errorf("invalid config: %w", err))
	}

	return config
}

func (that *Config) validate() error {
	switch that.Mode {
	case ModeServer:
	case ModeReplica:
		if !that.Nats.Enabled() {
			return errors.New("replica mode needs nats.url")
		}
	default:
		return fmt.Errorf("unknown mode %q", that.Mode)
	}

	if !that.Match.DefaultVariant.IsValid() {
		return fmt.Errorf("unknown match variant %q", that.Match.DefaultVariant)
	}

	if !that.Bot.DefaultDifficulty.IsValid() {
		return fmt.Errorf("unknown bot difficulty %q", that.Bot.DefaultDifficulty)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	if that.Host == "" || that.Port == "" {
		return ""
	}

	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Nats) Enabled() bool {
	return that.URL != ""
}
