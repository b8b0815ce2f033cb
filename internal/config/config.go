package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP     HTTPServer
	MySQL    MySQL
	Redis    Redis
	Kafka    Kafka
	Auth     Auth
	Receipts Receipts
	Checkout Checkout
	Log      Log
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

func (h HTTPServer) Addr() string {
	return fmt.Sprintf("%s:%s", h.Host, h.Port)
}

type MySQL struct {
	DSN string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/marketplace?parseTime=true"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"100"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"order-events"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`
}

type Receipts struct {
	Dir string `env:"RECEIPT_DIR" envDefault:"./receipts"`
}

type Checkout struct {
	CardDelay      time.Duration `env:"CARD_PROCESSING_DELAY" envDefault:"2s"`
	CardTimeout    time.Duration `env:"CARD_CHARGE_TIMEOUT" envDefault:"10s"`
	PendingTTL     time.Duration `env:"PENDING_ORDER_TTL" envDefault:"72h"`
	ExpirySweep    time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"10m"`
	ExpiryDisabled bool          `env:"EXPIRY_DISABLED" envDefault:"false"`
}

type Log struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
