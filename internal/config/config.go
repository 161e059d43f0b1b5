package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the chat engine.
type Config struct {
	// APIBaseURL is the REST endpoint serving the room directory and
	// room history.
	APIBaseURL string `validate:"required,url"`

	// BrokerURL is the websocket endpoint of the chat broker. Leave it
	// empty to run against the in-memory transport.
	BrokerURL string `validate:"omitempty,url"`

	// AccessToken is the bearer token obtained by the auth collaborator.
	// It may be empty; the engine reports ErrAuthMissing on use.
	AccessToken string

	// RequestTimeout bounds each directory/history fetch.
	RequestTimeout time.Duration `validate:"gt=0"`
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		APIBaseURL:     os.Getenv("CHAT_API_URL"),
		BrokerURL:      os.Getenv("CHAT_BROKER_URL"),
		AccessToken:    os.Getenv("CHAT_ACCESS_TOKEN"),
		RequestTimeout: 10 * time.Second,
	}

	if raw := os.Getenv("CHAT_REQUEST_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		log.Fatalf("Invalid chat configuration: %v", err)
	}

	return cfg
}
