package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/haltline/haltd/cli/render"
	"github.com/haltline/haltd/policy"
	"github.com/haltline/haltd/types"
)

// CompileResponse is the rendered result of a compile or validate run.
type CompileResponse struct {
	OK            bool          `json:"ok"`
	PolicyID      string        `json:"policy_id,omitempty"`
	Hash          string        `json:"hash,omitempty"`
	SchemaIssues  []policy.Issue `json:"schema_issues,omitempty"`
	CompileIssues []policy.Issue `json:"compile_issues,omitempty"`
	IR            *types.PolicyIR `json:"ir,omitempty"`
}

// CompileCommand returns the compile command: spec -> IR, printing the
// full compiled artifact on success.
func CompileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile a policy spec into its IR against a fixture inventory",
		ArgsUsage: "<spec.yaml>",
		Flags:     append(append([]cli.Flag{}, ReadOnlyFlags()...), fixtureFlag, policyIDFlag),
		Action:    compileAction,
	}
}

// ValidateCommand returns the validate command: the same pipeline as
// compile, but only reports ok/issues and exits non-zero on a blocker.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a policy spec without printing the compiled IR",
		ArgsUsage: "<spec.yaml>",
		Flags:     append(append([]cli.Flag{}, ReadOnlyFlags()...), fixtureFlag, policyIDFlag),
		Action:    validateAction,
	}
}

var fixtureFlag = &cli.StringFlag{
	Name:     "fixture",
	Usage:    "Path to a fixture YAML file describing capabilities and targets",
	Required: true,
}

var policyIDFlag = &cli.StringFlag{
	Name:  "policy-id",
	Usage: "Stable policy ID to assign (minted if omitted)",
}

func loadSpec(path string) (types.PolicySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.PolicySpec{}, fmt.Errorf("read spec: %w", err)
	}
	var spec types.PolicySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return types.PolicySpec{}, fmt.Errorf("parse spec: %w", err)
	}
	return spec, nil
}

func compileSpec(c *cli.Context) (policy.Result, error) {
	if c.NArg() < 1 {
		return policy.Result{}, cli.Exit("spec path required", 1)
	}
	spec, err := loadSpec(c.Args().First())
	if err != nil {
		return policy.Result{}, cli.Exit(err.Error(), 1)
	}
	inv, err := loadFixtureInventory(c.String("fixture"))
	if err != nil {
		return policy.Result{}, cli.Exit(fmt.Sprintf("load fixture: %v", err), 1)
	}
	compiler := policy.NewCompiler(inv)
	return compiler.Compile(context.Background(), spec, c.String("policy-id"))
}

func compileAction(c *cli.Context) error {
	result, err := compileSpec(c)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	resp := CompileResponse{
		OK:            result.OK,
		SchemaIssues:  result.SchemaIssues,
		CompileIssues: result.CompileIssues,
		IR:            result.IR,
	}
	if result.IR != nil {
		resp.PolicyID = result.IR.PolicyID
		resp.Hash = result.IR.Hash
	}

	if err := r.Render(resp); err != nil {
		return err
	}
	if !result.OK {
		return cli.Exit("", 1)
	}
	return nil
}

func validateAction(c *cli.Context) error {
	result, err := compileSpec(c)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	resp := CompileResponse{
		OK:            result.OK,
		SchemaIssues:  result.SchemaIssues,
		CompileIssues: result.CompileIssues,
	}
	if err := r.Render(resp); err != nil {
		return err
	}
	if !result.OK {
		return cli.Exit("", 1)
	}
	return nil
}
