package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haltline/haltd/inventory"
	"github.com/haltline/haltd/log"
	"github.com/haltline/haltd/metrics"
	"github.com/haltline/haltd/policy"
	"github.com/haltline/haltd/types"
)

// loadPolicies compiles and registers every *.yaml/*.yml spec file in dir.
// The file's basename (without extension) is used as the stable policy ID,
// so re-running against the same directory reuses identity and bumps
// VersionInt on the registry rather than minting new IDs each start.
func loadPolicies(ctx context.Context, dir string, compiler *policy.Compiler, reg *policy.Registry, logger *log.Logger, collector *metrics.Collector) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policies dir %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		policyID := strings.TrimSuffix(name, ext)

		path := filepath.Join(dir, name)
		spec, err := readPolicySpec(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		result, err := compiler.Compile(ctx, spec, policyID)
		if err != nil {
			return fmt.Errorf("%s: compile: %w", path, err)
		}
		if !result.OK {
			collector.IncCompileBlocked()
			logger.Error("policy failed to compile", map[string]any{
				"path":   path,
				"issues": result.AllIssues(),
			})
			continue
		}
		if len(result.CompileIssues) > 0 {
			collector.IncCompileWarned()
		} else {
			collector.IncCompileSuccess()
		}

		if err := reg.Register(result.IR); err != nil {
			logger.Error("policy registration conflict", map[string]any{"path": path, "error": err.Error()})
			continue
		}
		logger.Info("policy registered", map[string]any{"policy_id": policyID, "hash": result.IR.Hash, "enabled": result.IR.Enabled})
	}

	return nil
}

func readPolicySpec(path string) (types.PolicySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PolicySpec{}, err
	}
	var spec types.PolicySpec
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return types.PolicySpec{}, err
	}
	return spec, nil
}

// reloadPolicies re-reads dir and re-registers every spec with a fresh
// Compiler, picking up edits without a process restart. No admin route
// calls it: the server exposes only /healthz and /admin/events. Inventory SLA defaults are used for capability
// verification during compilation.
func reloadPolicies(ctx context.Context, dir string, inv *inventory.Index, reg *policy.Registry, logger *log.Logger, collector *metrics.Collector) error {
	compiler := policy.NewCompiler(inv)
	return loadPolicies(ctx, dir, compiler, reg, logger, collector)
}
