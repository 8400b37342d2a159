package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Session   Session         `envPrefix:"SESSION_"`
	ChatAPI   ChatAPIConfig   `envPrefix:"CHAT_API_"`
	Socket    SocketConfig    `envPrefix:"SOCKET_"`
	Send      SendConfig      `envPrefix:"SEND_"`
	Typing    TypingConfig    `envPrefix:"TYPING_"`
	Ephemeral EphemeralConfig `envPrefix:"EPHEMERAL_"`
	Crypto    CryptoConfig    `envPrefix:"CRYPTO_"`
}

// Session identifies the local user the client acts as.
type Session struct {
	UserID int64 `env:"USER_ID,required"`
}

type ChatAPIConfig struct {
	BaseURL string `env:"BASE_URL,required"`
}

type SocketConfig struct {
	URL string `env:"URL,required"`
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
}

type SendConfig struct {
	// SocketAckWait is how long a send waits for a socket acknowledgment
	// before falling back to REST.
	SocketAckWait time.Duration `env:"SOCKET_ACK_WAIT" envDefault:"4s"`
	// Timeout is the overall bound after which an unconfirmed send is
	// marked failed. A late confirmation is still absorbed by the store.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"12s"`
	// ChunkSize caps how many attachments one transport call may carry.
	ChunkSize int `env:"CHUNK_SIZE" envDefault:"10"`
	// Workers bounds how many chunk sends run concurrently.
	Workers int `env:"WORKERS" envDefault:"4"`
}

type TypingConfig struct {
	// TTL after which a typing entry is purged even without a stop event.
	TTL time.Duration `env:"TTL" envDefault:"4s"`
	// StopAfter is the local inactivity window before typing:stop is emitted.
	StopAfter time.Duration `env:"STOP_AFTER" envDefault:"2500ms"`
}

type EphemeralConfig struct {
	// SweepInterval is how often expired ephemeral messages are purged.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"3s"`
}

type CryptoConfig struct {
	Key string `env:"KEY,required"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
