package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sokinpui/dgtool/internal/fs"
	"github.com/sokinpui/dgtool/internal/manifest"
	"github.com/sokinpui/dgtool/internal/patcher"
	"github.com/sokinpui/dgtool/internal/state"
	"github.com/sokinpui/dgtool/internal/ui"
	"github.com/sokinpui/dgtool/internal/verify"
	"github.com/sokinpui/dgtool/model"
)

// applyLibrary applies (or with opts.Reverse, reverts) one library's patch
// inside the project and records the outcome. Unless force is set the
// recorded state must allow the transition.
func applyLibrary(ctx context.Context, applier *patcher.Applier, st *state.Manager, proj string, lib manifest.Library, opts patcher.ApplyOptions, force bool) (*patcher.ApplyResult, error) {
	cur := st.Get(lib.Name)
	if !force {
		switch {
		case !opts.Reverse && cur.Status == state.StatusPatched:
			return nil, fmt.Errorf("%s is already patched (use --force to try anyway)", lib.Name)
		case opts.Reverse && cur.Status != state.StatusPatched:
			return nil, fmt.Errorf("%s is not recorded as patched (use --force to try anyway)", lib.Name)
		}
	}

	patchFile := filepath.Join(proj, filepath.FromSlash(lib.PatchFile))
	sum, err := fs.FileSHA256(patchFile)
	if err != nil {
		return nil, fmt.Errorf("%s: patch file: %w", lib.Name, err)
	}

	opts.Strip = lib.StripDepth()
	res, err := applier.Apply(ctx, patchFile, filepath.Join(proj, filepath.FromSlash(lib.Source)), opts)
	if opts.DryRun {
		return res, err
	}
	if err != nil {
		// A failed revert leaves the tree patched.
		if !opts.Reverse {
			if recErr := st.Record(lib.Name, state.StatusFailed, sum, err); recErr != nil {
				return nil, errors.Join(err, recErr)
			}
		}
		return nil, err
	}

	to := state.StatusPatched
	if opts.Reverse {
		to, sum = state.StatusPristine, ""
	}
	if err := st.Record(lib.Name, to, sum, nil); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *App) applyPatches(ctx context.Context, reverse bool) (model.Summary, error) {
	p := a.cfg.Patch
	summary := model.Summary{}
	proj, m, err := loadProject(p.Project)
	if err != nil {
		return summary, err
	}
	libs, err := m.SelectLibraries(p.Libraries...)
	if err != nil {
		return summary, err
	}
	st, err := state.New(proj)
	if err != nil {
		return summary, err
	}

	verb := "apply"
	if reverse {
		verb = "revert"
		for i, j := 0, len(libs)-1; i < j; i, j = i+1, j-1 {
			libs[i], libs[j] = libs[j], libs[i]
		}
	}

	applier := &patcher.Applier{Runner: a.runner}
	stages := make([]model.Stage, 0, len(libs))
	for _, lib := range libs {
		lib := lib
		stages = append(stages, model.Stage{
			Name: verb + " " + lib.Name,
			Run: func(ctx context.Context) error {
				res, err := applyLibrary(ctx, applier, st, proj, lib, patcher.ApplyOptions{Reverse: reverse, DryRun: p.DryRun}, p.Force)
				if err != nil {
					summary.Failed = append(summary.Failed, lib.Name)
					return err
				}
				switch {
				case res.Empty:
					summary.Skipped = append(summary.Skipped, lib.Name+": empty patch")
				default:
					summary.Done = append(summary.Done, fmt.Sprintf("%s (%s)", lib.Name, strings.Join(res.Files, ", ")))
				}
				return nil
			},
		})
	}
	if err := model.RunStages(ctx, stages, a.progressCallback); err != nil {
		return summary, err
	}
	if p.DryRun {
		summary.Message = "Dry run: every patch would " + verb + " cleanly."
	}
	return summary, nil
}

// patchRoots resolves the template and instance trees for create and verify.
func (a *App) patchRoots() (patcher.Roots, *manifest.Manifest, error) {
	p := a.cfg.Patch
	inst := p.Instance
	var err error
	if inst == "" {
		if inst, err = projectRoot(p.Project); err != nil {
			return patcher.Roots{}, nil, err
		}
	}
	if inst, err = filepath.Abs(inst); err != nil {
		return patcher.Roots{}, nil, err
	}
	m, err := manifest.Load(inst)
	if err != nil {
		return patcher.Roots{}, nil, err
	}
	tpl := p.Template
	if tpl == "" {
		tpl = filepath.Join(filepath.Dir(inst), m.Template)
	}
	if tpl, err = filepath.Abs(tpl); err != nil {
		return patcher.Roots{}, nil, err
	}
	return patcher.Roots{Template: tpl, Instance: inst}, m, nil
}

func (a *App) createPatches(ctx context.Context) (model.Summary, error) {
	p := a.cfg.Patch
	summary := model.Summary{}
	roots, m, err := a.patchRoots()
	if err != nil {
		return summary, err
	}
	libs, err := m.SelectLibraries(p.Libraries...)
	if err != nil {
		return summary, err
	}

	if !p.NoClean {
		ran, err := a.runIfPresent(ctx, roots.Instance, m.CreateClean)
		if err != nil {
			return summary, fmt.Errorf("clean before creating patches: %w", err)
		}
		if ran {
			summary.Done = append(summary.Done, "ran "+strings.Join(m.CreateClean, " "))
		}
	}

	patches, err := a.generate(ctx, roots, libs, &summary)
	if err != nil {
		return summary, err
	}

	if p.Copy {
		var all strings.Builder
		for _, lp := range patches {
			all.WriteString(lp.Text)
		}
		if err := a.sourceProvider.Copy(all.String()); err != nil {
			return summary, err
		}
		summary.Message = "Patch text copied to clipboard."
	}
	return summary, nil
}

// generate writes one patch per library into the template tree.
func (a *App) generate(ctx context.Context, roots patcher.Roots, libs []manifest.Library, summary *model.Summary) ([]*patcher.LibraryPatch, error) {
	gen := &patcher.Generator{Runner: a.runner, AllowPartial: a.cfg.Patch.AllowPartial}
	var out []*patcher.LibraryPatch
	stages := make([]model.Stage, 0, len(libs))
	for _, lib := range libs {
		lib := lib
		stages = append(stages, model.Stage{
			Name: "create " + lib.Name + " patch",
			Run: func(ctx context.Context) error {
				dest := filepath.Join(roots.Template, filepath.FromSlash(lib.PatchFile))
				lp, err := gen.Generate(ctx, roots, lib, dest)
				if err != nil {
					summary.Failed = append(summary.Failed, lib.Name)
					return err
				}
				hunks := 0
				for _, f := range lp.Files {
					hunks += f.Hunks
				}
				for _, f := range lp.Skipped() {
					summary.Skipped = append(summary.Skipped, fmt.Sprintf("%s/%s: %v", lib.Name, f.File, f.Err))
				}
				summary.Done = append(summary.Done, fmt.Sprintf("%s: %d hunk(s) -> %s", lib.Name, hunks, dest))
				out = append(out, lp)
				return nil
			},
		})
	}
	err := model.RunStages(ctx, stages, a.progressCallback)
	return out, err
}

func (a *App) showPatch() (model.Summary, error) {
	text, err := a.sourceProvider.GetContent()
	if err != nil || text == "" {
		return model.Summary{}, err
	}
	files, err := patcher.ParsePatch(text)
	if err != nil {
		return model.Summary{}, err
	}
	return model.Summary{}, patcher.WriteStats(a.Stdout, patcher.Stats(files))
}

func (a *App) fixPatch() (model.Summary, error) {
	p := a.cfg.Patch
	text, err := a.sourceProvider.GetContent()
	if err != nil || text == "" {
		return model.Summary{}, err
	}
	fixed, err := patcher.RepairPatch(text, p.Base, p.Strip)
	if err != nil {
		return model.Summary{}, err
	}
	_, err = fmt.Fprint(a.Stdout, fixed)
	return model.Summary{}, err
}

func (a *App) verifyPatches(ctx context.Context) (model.Summary, error) {
	p := a.cfg.Patch
	summary := model.Summary{}
	roots, m, err := a.patchRoots()
	if err != nil {
		return summary, err
	}
	libs, err := m.SelectLibraries(p.Libraries...)
	if err != nil {
		return summary, err
	}

	v := &verify.Verifier{
		Generator: &patcher.Generator{Runner: a.runner, AllowPartial: p.AllowPartial},
		Applier:   &patcher.Applier{Runner: a.runner},
	}
	for _, lib := range libs {
		rep, err := v.RoundTrip(ctx, roots, lib)
		if err != nil {
			summary.Failed = append(summary.Failed, lib.Name+": "+err.Error())
			continue
		}
		if rep.OK() {
			summary.Done = append(summary.Done, fmt.Sprintf("%s: %d file(s) reproduced", lib.Name, rep.Files))
			continue
		}
		for _, mm := range rep.Mismatches {
			summary.Failed = append(summary.Failed, lib.Name+"/"+mm.File)
			fmt.Fprintf(a.Stdout, "=== %s/%s\n%s", lib.Name, mm.File, mm.Diff)
		}
	}
	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%d round-trip failure(s)", len(summary.Failed))
	}
	return summary, nil
}

func (a *App) patchStatus() (model.Summary, error) {
	proj, m, err := loadProject(a.cfg.Patch.Project)
	if err != nil {
		return model.Summary{}, err
	}
	libs, err := m.SelectLibraries(a.cfg.Patch.Libraries...)
	if err != nil {
		return model.Summary{}, err
	}
	st, err := state.New(proj)
	if err != nil {
		return model.Summary{}, err
	}

	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LIBRARY\tSTATUS\tUPDATED\tERROR")
	for _, lib := range libs {
		ls := st.Get(lib.Name)
		updated := "-"
		if !ls.Updated.IsZero() {
			updated = ls.Updated.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", lib.Name, ls.Status, updated, firstLine(ls.Error))
	}
	if err := tw.Flush(); err != nil {
		return model.Summary{}, err
	}
	if len(libs) == 0 {
		ui.Warning("The manifest tracks no libraries.")
	}
	for _, ls := range st.Libraries() {
		if _, ok := m.Library(ls.Name); !ok {
			ui.Warning("State records %s (%s), which the manifest no longer lists.", ls.Name, ls.Status)
		}
	}

	selected := make(map[string]bool, len(libs))
	for _, lib := range libs {
		selected[lib.Name] = true
	}
	var recent []state.HistoryEntry
	for _, h := range st.History() {
		if selected[h.Library] {
			recent = append(recent, h)
		}
	}
	if len(recent) > statusHistory {
		recent = recent[len(recent)-statusHistory:]
	}
	if len(recent) > 0 {
		fmt.Fprintln(a.Stdout, "\nRecent changes:")
		for _, h := range recent {
			fmt.Fprintf(a.Stdout, "  %s  %s: %s -> %s\n",
				time.Unix(h.Timestamp, 0).Local().Format("2006-01-02 15:04:05"), h.Library, h.From, h.To)
		}
	}
	return model.Summary{}, nil
}

// statusHistory bounds the transitions patch status prints.
const statusHistory = 10

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
