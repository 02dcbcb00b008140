package policy

import (
	"fmt"
	"sync"

	"github.com/haltline/haltd/types"
)

// ConflictError reports that a policy with an identical content hash is
// already registered under a different policy ID.
type ConflictError struct {
	ExistingPolicyID string
	Hash             string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("policy: hash %s already registered as %s", e.Hash, e.ExistingPolicyID)
}

// Registry tracks compiled policies by content hash, the narrow in-core
// surface standing in for what would otherwise be a database uniqueness
// constraint on (hash).
type Registry struct {
	mu       sync.Mutex
	byHash   map[string]string         // hash -> policy ID
	byPolicy map[string]*types.PolicyIR // policy ID -> current IR
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byHash:   make(map[string]string),
		byPolicy: make(map[string]*types.PolicyIR),
	}
}

// Register records ir, bumping VersionInt if this policy ID was already
// registered. Returns a *ConflictError if another policy ID already holds
// this exact hash.
func (r *Registry) Register(ir *types.PolicyIR) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byHash[ir.Hash]; ok && existingID != ir.PolicyID {
		return &ConflictError{ExistingPolicyID: existingID, Hash: ir.Hash}
	}

	if prev, ok := r.byPolicy[ir.PolicyID]; ok {
		ir.VersionInt = prev.VersionInt + 1
		if prev.Hash != ir.Hash {
			delete(r.byHash, prev.Hash)
		}
	}

	r.byHash[ir.Hash] = ir.PolicyID
	r.byPolicy[ir.PolicyID] = ir
	return nil
}

// Get returns the currently registered IR for policyID, if any.
func (r *Registry) Get(policyID string) (*types.PolicyIR, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ir, ok := r.byPolicy[policyID]
	return ir, ok
}

// All returns every registered IR, in no particular order.
func (r *Registry) All() []*types.PolicyIR {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.PolicyIR, 0, len(r.byPolicy))
	for _, ir := range r.byPolicy {
		out = append(out, ir)
	}
	return out
}

// Remove deletes policyID from the registry.
func (r *Registry) Remove(policyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ir, ok := r.byPolicy[policyID]; ok {
		delete(r.byHash, ir.Hash)
		delete(r.byPolicy, policyID)
	}
}
