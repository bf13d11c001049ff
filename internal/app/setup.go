package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sokinpui/dgtool/internal/buildenv"
	"github.com/sokinpui/dgtool/internal/fs"
	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/patcher"
	"github.com/sokinpui/dgtool/internal/state"
	"github.com/sokinpui/dgtool/internal/template"
	"github.com/sokinpui/dgtool/internal/toolchain"
	"github.com/sokinpui/dgtool/model"
)

// prepareSetup resolves the destination project and confirms overwriting it.
func (a *App) prepareSetup() error {
	s := a.cfg.Setup
	name := s.Name
	if name == "" {
		m, err := manifest.Load(s.From)
		if err != nil {
			return err
		}
		name = m.Instance
	}
	dest, err := filepath.Abs(filepath.Join(s.Output, name))
	if err != nil {
		return err
	}
	from, err := filepath.Abs(s.From)
	if err != nil {
		return err
	}
	if fs.IsWithin(dest, from) {
		return fmt.Errorf("cannot set up %s: it would overwrite the project being copied", dest)
	}
	if err := fs.PrepareDest(dest, s.Yes, a.Stdin); err != nil {
		return err
	}
	a.setupDest = dest
	return nil
}

// setup instantiates a configured project: copy, toolchain, scripts, patches.
func (a *App) setup(ctx context.Context) (model.Summary, error) {
	s := a.cfg.Setup
	dest := a.setupDest
	summary := model.Summary{}

	var m *manifest.Manifest
	var installDir string
	stages := []model.Stage{
		{
			Name: "copying project files",
			Run: func(ctx context.Context) error {
				// The copy resets every tracked file, so earlier patch state is stale.
				if err := os.RemoveAll(filepath.Join(dest, state.DirName)); err != nil {
					return fmt.Errorf("cannot reset patch state: %w", err)
				}
				if err := fs.CopyTree(s.From, dest, state.DirName); err != nil {
					return fmt.Errorf("cannot copy project files: %w", err)
				}
				var err error
				if m, err = manifest.Load(dest); err != nil {
					return err
				}
				summary.Done = append(summary.Done, "copied project to "+dest)
				return nil
			},
		},
		{
			Name: "creating android build standalone toolchain",
			Run: func(ctx context.Context) error {
				var err error
				installDir, err = toolchain.Generate(ctx, a.runner, toolchain.Options{
					NDK:        s.NDK,
					ProjectDir: dest,
					API:        s.API,
					Arch:       s.Arch,
					Config:     m.Toolchain,
					Stream:     a.Stream,
				})
				if err != nil {
					return err
				}
				summary.Done = append(summary.Done, "toolchain installed in "+installDir)
				return nil
			},
		},
		{
			Name: "setting up build scripts",
			Run: func(ctx context.Context) error {
				return a.configureScripts(dest, m, installDir, &summary)
			},
		},
		{
			Name: "patching source code",
			Run: func(ctx context.Context) error {
				st, err := state.New(dest)
				if err != nil {
					return err
				}
				applier := &patcher.Applier{Runner: a.runner}
				for _, lib := range m.Libraries {
					if _, err := applyLibrary(ctx, applier, st, dest, lib, patcher.ApplyOptions{}, false); err != nil {
						summary.Failed = append(summary.Failed, lib.Name)
						return fmt.Errorf("cannot patch source code: %w", err)
					}
					summary.Done = append(summary.Done, "patched "+lib.Name)
				}
				return nil
			},
		},
	}

	if err := model.RunStages(ctx, stages, a.progressCallback); err != nil {
		return summary, err
	}
	summary.Message = "Project ready at " + dest
	return summary, nil
}

// configureScripts substitutes markers in the manifest's template files and
// writes the structured build environment.
func (a *App) configureScripts(dest string, m *manifest.Manifest, installDir string, summary *model.Summary) error {
	s := a.cfg.Setup
	values := template.Values{
		manifest.MarkerBuildDir:   installDir,
		manifest.MarkerAPIVersion: s.API,
		manifest.MarkerGradlePath: s.Gradle,
		manifest.MarkerSDKPath:    s.SDK,
	}
	libsVer, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(m.LibsVerFile)))
	switch {
	case err == nil:
		values[manifest.MarkerLibsVer] = string(libsVer)
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	for _, tf := range m.Templates {
		path := filepath.Join(dest, filepath.FromSlash(tf.Path))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if tf.Optional {
				summary.Skipped = append(summary.Skipped, tf.Path+": not present")
				continue
			}
			return fmt.Errorf("template file %s is missing", tf.Path)
		}
		changed, err := template.RenderFile(path, values, tf.Markers...)
		if err != nil {
			return err
		}
		if changed {
			summary.Done = append(summary.Done, "configured "+tf.Path)
		}
	}

	arch := s.Arch
	if arch == "" {
		arch = m.Toolchain.Arch
	}
	env := buildenv.Env{
		ProjectDir:   dest,
		AndroidBuild: installDir,
		APIVersion:   s.API,
		GradleBin:    s.Gradle,
		SDKPath:      s.SDK,
		Arch:         arch,
		Versions:     m.Versions,
	}
	if err := buildenv.Write(dest, env); err != nil {
		return fmt.Errorf("write build environment: %w", err)
	}
	summary.Done = append(summary.Done, "wrote "+buildenv.FileName)
	return nil
}
