package main

import (
	"fmt"

	"github.com/haltline/haltd/config"
	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/driver/fixture"
	"github.com/haltline/haltd/driver/httpdriver"
)

// buildDriverLookup constructs a driver for every host declared in the
// config's hosts map, eagerly (so a bad fixture path or missing base_url
// fails at startup, not on first dispatch), and returns a lookup closure
// shared by the inventory index and execution engine.
func buildDriverLookup(cfg *config.Config) (func(hostID string) (driver.Driver, error), error) {
	drivers := make(map[string]driver.Driver, len(cfg.Hosts))

	for hostID, hc := range cfg.Hosts {
		d, err := buildDriver(hc)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hostID, err)
		}
		drivers[hostID] = d
	}

	return func(hostID string) (driver.Driver, error) {
		d, ok := drivers[hostID]
		if !ok {
			return nil, fmt.Errorf("no driver configured for host %q", hostID)
		}
		return d, nil
	}, nil
}

func buildDriver(hc config.HostConfig) (driver.Driver, error) {
	switch hc.Driver {
	case "http":
		retries := httpdriver.DefaultRetries
		if hc.Retries != nil {
			retries = *hc.Retries
		}
		return httpdriver.New(httpdriver.Config{
			BaseURL: hc.BaseURL,
			Headers: hc.Headers,
			Timeout: hc.Timeout.Duration,
			Retries: retries,
		})

	case "fixture":
		fx, err := fixture.Load(hc.Fixture)
		if err != nil {
			return nil, fmt.Errorf("load fixture: %w", err)
		}
		return fixture.New(*fx), nil

	default:
		return nil, fmt.Errorf("unknown driver type %q (want http or fixture)", hc.Driver)
	}
}
