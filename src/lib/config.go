package lib

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nbd-wtf/go-nostr"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config contains runtime configuration loaded from environment variables.
type Config struct {
	StoreBackend           string   `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL            string   `env:"DATABASE_URL"`
	RegistryPubKey         string   `env:"REGISTRY_PUBKEY"`
	RegistryPrivKey        string   `env:"REGISTRY_PRIVKEY"`
	HTTPAddr               string   `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"INFO"`
	GroupCreationLimit     int      `env:"GROUP_CREATION_LIMIT" envDefault:"10"`
	NeuronPageSize         int      `env:"NEURON_PAGE_SIZE" envDefault:"100"`
	NeuronMaxPages         int      `env:"NEURON_MAX_PAGES" envDefault:"1"`
	VerifierConcurrency    int      `env:"VERIFIER_CONCURRENCY" envDefault:"4"`
	VerifierAddr           string   `env:"VERIFIER_ADDR"`
	VerifierTimeoutSeconds int      `env:"VERIFIER_TIMEOUT_SECONDS" envDefault:"10"`
	KafkaBrokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	RewardTopic            string   `env:"REWARD_TOPIC" envDefault:"group-rewards"`
	RabbitMQURL            string   `env:"RABBITMQ_URL"`
	NotificationQueue      string   `env:"NOTIFICATION_QUEUE" envDefault:"group-notifications"`
	JoinRateLimitBurst     int      `env:"JOIN_RATE_LIMIT_BURST" envDefault:"10"`
	JoinRateLimitPerMinute int      `env:"JOIN_RATE_LIMIT_PER_MIN" envDefault:"30"`
	OTELEnabled            bool     `env:"OTEL_ENABLED" envDefault:"true"`
	OTELEndpoint           string   `env:"OTEL_ENDPOINT"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.RegistryPubKey = strings.ToLower(strings.TrimSpace(cfg.RegistryPubKey))
	cfg.RegistryPrivKey = strings.ToLower(strings.TrimSpace(cfg.RegistryPrivKey))

	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreBackendMemory:
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND must be %q or %q", StoreBackendPostgres, StoreBackendMemory)
	}
	if cfg.RegistryPrivKey == "" {
		return Config{}, fmt.Errorf("REGISTRY_PRIVKEY is required")
	}

	derivedPubKey, err := nostr.GetPublicKey(cfg.RegistryPrivKey)
	if err != nil {
		return Config{}, fmt.Errorf("REGISTRY_PRIVKEY is invalid: %w", err)
	}
	derivedPubKey = strings.ToLower(strings.TrimSpace(derivedPubKey))
	if cfg.RegistryPubKey == "" {
		cfg.RegistryPubKey = derivedPubKey
	}
	if !strings.EqualFold(cfg.RegistryPubKey, derivedPubKey) {
		return Config{}, fmt.Errorf("REGISTRY_PUBKEY does not match REGISTRY_PRIVKEY")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"GROUP_CREATION_LIMIT", cfg.GroupCreationLimit},
		{"NEURON_PAGE_SIZE", cfg.NeuronPageSize},
		{"NEURON_MAX_PAGES", cfg.NeuronMaxPages},
		{"VERIFIER_CONCURRENCY", cfg.VerifierConcurrency},
		{"VERIFIER_TIMEOUT_SECONDS", cfg.VerifierTimeoutSeconds},
		{"JOIN_RATE_LIMIT_BURST", cfg.JoinRateLimitBurst},
		{"JOIN_RATE_LIMIT_PER_MIN", cfg.JoinRateLimitPerMinute},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return Config{}, fmt.Errorf("%s must be > 0", p.name)
		}
	}

	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.KafkaBrokers = brokers

	return cfg, nil
}

func (c Config) VerifierTimeout() time.Duration {
	return time.Duration(c.VerifierTimeoutSeconds) * time.Second
}
