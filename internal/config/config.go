package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN       string
	MongoURI      string
	RedisAddr     string
	RabbitURL     string
	ListenAddr    string
	GraceWindow   time.Duration
	ChallengeTTL  time.Duration
	ChallengeGap  time.Duration
	ChallengeCap  int
	SweepInterval time.Duration
	OTLPEndpoint  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		CRDBDSN:       os.Getenv("CRDB_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		GraceWindow:   getDuration("GRACE_WINDOW", 24*time.Hour),
		ChallengeTTL:  getDuration("CHALLENGE_TTL", 10*time.Minute),
		ChallengeGap:  getDuration("CHALLENGE_MIN_INTERVAL", 60*time.Second),
		ChallengeCap:  5,
		SweepInterval: getDuration("SWEEP_INTERVAL", 5*time.Minute),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return fallback
	}
	return d
}
