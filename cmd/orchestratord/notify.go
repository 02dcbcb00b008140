package main

import (
	"fmt"

	"github.com/haltline/haltd/config"
	"github.com/haltline/haltd/notifier"
	"github.com/haltline/haltd/notifier/redis"
	"github.com/haltline/haltd/notifier/webhook"
)

// buildNotifier constructs the configured outbound execution-summary
// publisher. A zero-value NotifierConfig (Type == "") means no notifier is
// wired; execution records are still appended to the ledger, just not
// published downstream.
func buildNotifier(cfg config.NotifierConfig) (notifier.Notifier, error) {
	switch cfg.Type {
	case "":
		return nil, nil

	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})

	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})

	default:
		return nil, fmt.Errorf("unknown notifier type %q (want webhook or redis)", cfg.Type)
	}
}
