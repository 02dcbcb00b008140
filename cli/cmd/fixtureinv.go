package cmd

import (
	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/driver/fixture"
	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/log"
)

// fixtureLookup resolves every host ID to the same fixture-backed driver.
type fixtureLookup = func(string) (driver.Driver, error)

// newFixtureLookup loads a fixture file and returns a DriverLookup bound to
// it, used by the offline commands (compile, validate, dryrun) so they can
// exercise the full pipeline without a live host.
func newFixtureLookup(fixturePath string) (fixtureLookup, error) {
	fx, err := fixture.Load(fixturePath)
	if err != nil {
		return nil, err
	}
	drv := fixture.New(*fx)
	return func(string) (driver.Driver, error) { return drv, nil }, nil
}

// loadFixtureInventory builds an inventory index backed by a single static
// fixture file.
func loadFixtureInventory(fixturePath string) (*inventory.Index, error) {
	lookup, err := newFixtureLookup(fixturePath)
	if err != nil {
		return nil, err
	}
	return inventory.New(inventory.DefaultConfig(), lookup, log.New(log.Context{})), nil
}
