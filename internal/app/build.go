package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sokinpui/dgtool/internal/build"
	"github.com/sokinpui/dgtool/internal/buildenv"
	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/patcher"
	"github.com/sokinpui/dgtool/model"
)

func (a *App) build(ctx context.Context) (model.Summary, error) {
	b := a.cfg.Build
	proj, m, err := loadProject(b.Project)
	if err != nil {
		return model.Summary{}, err
	}

	var env *buildenv.Env
	loaded, err := buildenv.Load(proj)
	switch {
	case err == nil:
		env = &loaded
	case errors.Is(err, buildenv.ErrNotFound) && b.MakeOnly:
	default:
		return model.Summary{}, err
	}

	d := &build.Driver{
		Runner:     a.runner,
		ProjectDir: proj,
		Manifest:   m,
		Env:        env,
		Stream:     a.Stream,
	}
	summary, err := d.Run(ctx, build.Options{
		Target:   b.Target,
		Clean:    b.Clean,
		MakeOnly: b.MakeOnly,
		Jobs:     b.Jobs,
	}, a.progressCallback)
	if err == nil {
		summary.Message = fmt.Sprintf("Built %d component(s).", len(summary.Done))
	}
	return summary, err
}

// makeTemplate regenerates the external libraries' patches into a template
// tree, diffing it against this project.
func (a *App) makeTemplate(ctx context.Context) (model.Summary, error) {
	mt := a.cfg.MakeTemplate
	summary := model.Summary{}
	proj, m, err := loadProject(mt.Project)
	if err != nil {
		return summary, err
	}
	libs, err := m.SelectLibraries(manifest.GroupExternal)
	if err != nil {
		return summary, err
	}

	if m.ExternalClean != "" {
		ran, err := a.runIfPresent(ctx, proj, []string{m.ExternalClean})
		if err != nil {
			return summary, fmt.Errorf("clean external libraries: %w", err)
		}
		if ran {
			summary.Done = append(summary.Done, "ran "+m.ExternalClean)
		}
	}

	roots := patcher.Roots{Template: mt.TemplateDir, Instance: proj}
	if _, err := a.generate(ctx, roots, libs, &summary); err != nil {
		return summary, err
	}
	summary.Message = "Template patches written to " + mt.TemplateDir
	return summary, nil
}
