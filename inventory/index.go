// Package inventory implements C1, the Inventory Index: a per-host cache of
// capability descriptors and discovered targets, with a freshness SLA,
// single-flight refresh, and selector expansion.
//
// The single-flight-per-host refresh gate is grounded on the teacher's
// runtime/fanout.go Operator: a channel/mutex pairing that lets concurrent
// callers block on the same in-flight work instead of duplicating it.
package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haltline/haltd/driver"
	"github.com/haltline/haltd/log"
	"github.com/haltline/haltd/selector"
	"github.com/haltline/haltd/types"
)

// Config controls cache freshness defaults per spec.md §6.
type Config struct {
	InventoryTTL          time.Duration // default 30s
	CapabilityTTL         time.Duration // default 5m
	InventoryRefreshSLA   time.Duration // default 5s, hard timeout on a refresh
}

// DefaultConfig returns the spec.md-documented defaults.
func DefaultConfig() Config {
	return Config{
		InventoryTTL:        30 * time.Second,
		CapabilityTTL:       5 * time.Minute,
		InventoryRefreshSLA: 5 * time.Second,
	}
}

// capabilityEntry is the cached capability descriptor set for one host.
type capabilityEntry struct {
	caps      []types.HostCapability
	fetchedAt time.Time
	stale     bool
	err       error
}

// targetEntry is the cached target list for one (host, targetType) pair.
type targetEntry struct {
	targets   []types.TargetDescriptor
	fetchedAt time.Time
	stale     bool
	err       error
}

// Index is the process-wide inventory cache. Constructed explicitly and
// passed to callers as a dependency (spec.md §9 "Global singletons") —
// never a package-level instance.
type Index struct {
	cfg     Config
	drivers DriverLookup
	logger  *log.Logger

	mu           sync.Mutex
	capabilities map[string]*capabilityEntry          // host -> entry
	targets      map[string]map[string]*targetEntry   // host -> targetType -> entry
	capInFlight  map[string]chan struct{}              // host -> refresh-in-progress gate
	tgtInFlight  map[string]chan struct{}              // "host\x00type" -> refresh-in-progress gate
}

// DriverLookup resolves the driver bound to a host's integration instance.
type DriverLookup func(hostID string) (driver.Driver, error)

// New creates an inventory index.
func New(cfg Config, drivers DriverLookup, logger *log.Logger) *Index {
	return &Index{
		cfg:          cfg,
		drivers:      drivers,
		logger:       logger,
		capabilities: make(map[string]*capabilityEntry),
		targets:      make(map[string]map[string]*targetEntry),
		capInFlight:  make(map[string]chan struct{}),
		tgtInFlight:  make(map[string]chan struct{}),
	}
}

// Capabilities returns the capability descriptors for hostID, refreshing if
// the cached entry is older than sla (or absent). Stale results are
// returned with stale=true if the refresh exceeds the hard refresh SLA.
func (idx *Index) Capabilities(ctx context.Context, hostID string, sla time.Duration) (caps []types.HostCapability, stale bool, err error) {
	if sla <= 0 {
		sla = idx.cfg.CapabilityTTL
	}

	idx.mu.Lock()
	entry := idx.capabilities[hostID]
	fresh := entry != nil && time.Since(entry.fetchedAt) < sla
	idx.mu.Unlock()

	if fresh {
		return entry.caps, entry.stale, entry.err
	}

	return idx.refreshCapabilities(ctx, hostID)
}

func (idx *Index) refreshCapabilities(ctx context.Context, hostID string) ([]types.HostCapability, bool, error) {
	idx.mu.Lock()
	if ch, inFlight := idx.capInFlight[hostID]; inFlight {
		idx.mu.Unlock()
		<-ch // block on the in-flight refresh
		idx.mu.Lock()
		entry := idx.capabilities[hostID]
		idx.mu.Unlock()
		if entry == nil {
			return nil, false, nil
		}
		return entry.caps, entry.stale, entry.err
	}
	done := make(chan struct{})
	idx.capInFlight[hostID] = done
	idx.mu.Unlock()

	defer func() {
		idx.mu.Lock()
		delete(idx.capInFlight, hostID)
		idx.mu.Unlock()
		close(done)
	}()

	refreshCtx, cancel := context.WithTimeout(ctx, idx.cfg.InventoryRefreshSLA)
	defer cancel()

	d, lookupErr := idx.drivers(hostID)
	var caps []types.HostCapability
	var fetchErr error
	if lookupErr != nil {
		fetchErr = lookupErr
	} else {
		caps, fetchErr = d.ListCapabilities(refreshCtx)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if fetchErr != nil {
		// Refresh failures do not evict existing entries; mark stale.
		if existing := idx.capabilities[hostID]; existing != nil {
			existing.stale = true
			existing.err = fetchErr
			if idx.logger != nil {
				idx.logger.Warn("capability refresh failed, serving stale", map[string]any{"host_id": hostID, "error": fetchErr.Error()})
			}
			return existing.caps, true, nil
		}
		return nil, false, fetchErr
	}

	idx.capabilities[hostID] = &capabilityEntry{caps: caps, fetchedAt: time.Now(), stale: false}
	return caps, false, nil
}

// Targets returns the discovered targets of targetType on hostID.
func (idx *Index) Targets(ctx context.Context, hostID, targetType string, sla time.Duration) ([]types.TargetDescriptor, bool, error) {
	if sla <= 0 {
		sla = idx.cfg.InventoryTTL
	}

	key := hostID + "\x00" + targetType

	idx.mu.Lock()
	hostMap := idx.targets[hostID]
	var entry *targetEntry
	if hostMap != nil {
		entry = hostMap[targetType]
	}
	fresh := entry != nil && time.Since(entry.fetchedAt) < sla
	idx.mu.Unlock()

	if fresh {
		return entry.targets, entry.stale, entry.err
	}

	return idx.refreshTargets(ctx, hostID, targetType, key)
}

func (idx *Index) refreshTargets(ctx context.Context, hostID, targetType, key string) ([]types.TargetDescriptor, bool, error) {
	idx.mu.Lock()
	if ch, inFlight := idx.tgtInFlight[key]; inFlight {
		idx.mu.Unlock()
		<-ch
		idx.mu.Lock()
		entry := idx.targetEntryLocked(hostID, targetType)
		idx.mu.Unlock()
		if entry == nil {
			return nil, false, nil
		}
		return entry.targets, entry.stale, entry.err
	}
	done := make(chan struct{})
	idx.tgtInFlight[key] = done
	idx.mu.Unlock()

	defer func() {
		idx.mu.Lock()
		delete(idx.tgtInFlight, key)
		idx.mu.Unlock()
		close(done)
	}()

	refreshCtx, cancel := context.WithTimeout(ctx, idx.cfg.InventoryRefreshSLA)
	defer cancel()

	d, lookupErr := idx.drivers(hostID)
	var discovered []types.TargetDescriptor
	var fetchErr error
	if lookupErr != nil {
		fetchErr = lookupErr
	} else {
		discovered, fetchErr = d.Discover(refreshCtx, targetType, false)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if fetchErr != nil {
		if existing := idx.targetEntryLocked(hostID, targetType); existing != nil {
			existing.stale = true
			existing.err = fetchErr
			if idx.logger != nil {
				idx.logger.Warn("inventory refresh failed, serving stale", map[string]any{"host_id": hostID, "target_type": targetType, "error": fetchErr.Error()})
			}
			return existing.targets, true, nil
		}
		return nil, false, fetchErr
	}

	if idx.targets[hostID] == nil {
		idx.targets[hostID] = make(map[string]*targetEntry)
	}
	idx.targets[hostID][targetType] = &targetEntry{targets: discovered, fetchedAt: time.Now(), stale: false}
	return discovered, false, nil
}

// targetEntryLocked must be called while holding idx.mu.
func (idx *Index) targetEntryLocked(hostID, targetType string) *targetEntry {
	hostMap := idx.targets[hostID]
	if hostMap == nil {
		return nil
	}
	return hostMap[targetType]
}

// ExpansionResult is the outcome of resolving a selector against a host's
// live inventory.
type ExpansionResult struct {
	ResolvedIDs []string
	Unresolved  []string // identifiers that did not match any known target
	Stale       bool
}

// ResolveSelector expands sel textually, then intersects against the known
// targets of targetType on hostID, dropping unknown identifiers into the
// side-channel Unresolved set. Empty expansions are permitted.
func (idx *Index) ResolveSelector(ctx context.Context, hostID, targetType string, sel types.Selector, sla time.Duration) (ExpansionResult, error) {
	patterns, err := selector.Expand(sel)
	if err != nil {
		return ExpansionResult{}, err
	}

	targets, stale, err := idx.Targets(ctx, hostID, targetType, sla)
	if err != nil {
		return ExpansionResult{}, err
	}

	known := make(map[string]bool, len(targets))
	for _, t := range targets {
		known[t.CanonicalID] = true
	}

	var resolved, unresolved []string
	for _, p := range patterns {
		if known[p] {
			resolved = append(resolved, p)
		} else {
			unresolved = append(unresolved, p)
		}
	}
	sort.Strings(resolved)

	return ExpansionResult{ResolvedIDs: resolved, Unresolved: unresolved, Stale: stale}, nil
}
