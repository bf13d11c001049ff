// Package dgtool exposes the patch workflow for use as a library.
package dgtool

import (
	"context"
	"fmt"

	"github.com/sokinpui/dgtool/cli"
	"github.com/sokinpui/dgtool/internal/app"
	"github.com/sokinpui/dgtool/model"
)

// Config for using dgtool as a library.
type Config struct {
	// Project is any directory inside the project. Empty means the current directory.
	Project string
	// Libraries limits the operation to these libraries or groups.
	Libraries []string
	// Template overrides the template tree used by CreatePatches and Verify.
	Template string
	// AllowPartial skips files that cannot be diffed.
	AllowPartial bool
	// DryRun only checks that patches would apply.
	DryRun bool
	// Force ignores the recorded patch state.
	Force bool
}

func (c Config) patch() cli.PatchConfig {
	project := c.Project
	if project == "" {
		project = "."
	}
	return cli.PatchConfig{
		Project:      project,
		Libraries:    c.Libraries,
		Template:     c.Template,
		AllowPartial: c.AllowPartial,
		DryRun:       c.DryRun,
		Force:        c.Force,
		NoClean:      true,
	}
}

// ApplyPatches applies library patches to the project.
func ApplyPatches(ctx context.Context, config Config) (map[string][]string, error) {
	return execute(ctx, cli.CmdPatchApply, config)
}

// RevertPatches reverses previously applied library patches.
func RevertPatches(ctx context.Context, config Config) (map[string][]string, error) {
	return execute(ctx, cli.CmdPatchRevert, config)
}

// CreatePatches regenerates patch files from the template and instance trees.
func CreatePatches(ctx context.Context, config Config) (map[string][]string, error) {
	return execute(ctx, cli.CmdPatchCreate, config)
}

// Verify checks that each patch reproduces the instance's files.
func Verify(ctx context.Context, config Config) (map[string][]string, error) {
	return execute(ctx, cli.CmdPatchVerify, config)
}

func execute(ctx context.Context, cmd cli.Command, config Config) (map[string][]string, error) {
	a, err := app.New(&cli.Config{Command: cmd, NoAnimation: true, Patch: config.patch()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dgtool app: %w", err)
	}
	summary, err := a.Execute(ctx)
	return result(summary), err
}

func result(s model.Summary) map[string][]string {
	return map[string][]string{
		"Done":    s.Done,
		"Skipped": s.Skipped,
		"Failed":  s.Failed,
	}
}
