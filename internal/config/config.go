package config

import (
	"time"
)

var AppEnv Config

const (
	AppModeProduction = "PROD"
	AppModeDevelop    = "DEV"
)

type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Mode           string        `env:"APP_MODE" envDefault:"DEV"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`

	MongoURI          string `env:"MONGO_URI"`
	DBName            string `env:"DB_NAME" envDefault:"shoestore"`
	MongoTransactions bool   `env:"MONGO_TRANSACTIONS" envDefault:"true"`

	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`

	// StrictOrderTotals rejects orders whose totals do not add up server-side.
	StrictOrderTotals bool `env:"STRICT_ORDER_TOTALS" envDefault:"true"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"shoestore"`
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func (c Config) IsProduction() bool {
	return c.Mode == AppModeProduction
}
