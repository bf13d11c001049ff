package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sokinpui/dgtool/cli"
	"github.com/sokinpui/dgtool/internal/fs"
	"github.com/sokinpui/dgtool/internal/state"
	"github.com/sokinpui/dgtool/internal/ui"
)

const testManifest = `template: Tpl
instance: Inst
versions:
  foo: foo-1.0
libraries:
  - name: foo
    group: external
    source: build/external/src/${foo}
    patch: build/external/patches/foo.patch
    files:
      - config.h
components:
  - name: foo
    group: external
    source: build/external/src/${foo}
    script: build/external/build-scripts/foo-android-build.sh
templates:
  - path: tools/patch.py
    markers: [LIBS_VER]
  - path: build/external/build-scripts/foo-android-build.sh
    markers: [ANDROID_BUILD, API_VERSION, GRADLE_BIN_PATH, ANDROID_SDK_PATH]
  - path: build/missing.sh
    markers: [API_VERSION]
    optional: true
toolchain:
  script: build/tools/make_standalone_toolchain.py
  installDir: build/android
  arch: arm
  extraArgs: [--force]
`

const (
	configPristine = "#define A 1\n#define ANDROID 0\n"
	configPatched  = "#define A 1\n#define ANDROID 1\n"
	fooPatch       = "--- Tpl/build/external/src/foo-1.0/config.h\n" +
		"+++ Inst/build/external/src/foo-1.0/config.h\n" +
		"@@ -1,2 +1,2 @@\n" +
		" #define A 1\n" +
		"-#define ANDROID 0\n" +
		"+#define ANDROID 1\n"
)

func write(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func requireTools(t *testing.T) {
	t.Helper()
	for _, name := range []string{"diff", "patch", "sh"} {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
	}
}

func quiet(t *testing.T) {
	t.Helper()
	old := ui.Output
	ui.Output = &bytes.Buffer{}
	t.Cleanup(func() { ui.Output = old })
}

type env struct {
	from, ndk, sdk, gradle, out string
}

// newEnv lays out a source project, a fake NDK and the SDK, gradle and
// output directories.
func newEnv(t *testing.T) env {
	t.Helper()
	base := t.TempDir()
	e := env{
		from:   filepath.Join(base, "src-project"),
		ndk:    filepath.Join(base, "ndk"),
		sdk:    filepath.Join(base, "sdk"),
		gradle: filepath.Join(base, "gradle", "bin"),
		out:    filepath.Join(base, "out"),
	}
	for _, d := range []string{e.sdk, e.gradle, e.out} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	write(t, filepath.Join(e.from, "dgtool.yaml"), testManifest, 0o644)
	write(t, filepath.Join(e.from, "LIBS_VER"), "FOO_VER=\"foo-1.0\"\n", 0o644)
	write(t, filepath.Join(e.from, "tools", "patch.py"), "#{*LIBS_VER*}#\n", 0o755)
	write(t, filepath.Join(e.from, "build", "external", "src", "foo-1.0", "config.h"), configPristine, 0o644)
	write(t, filepath.Join(e.from, "build", "external", "patches", "foo.patch"), fooPatch, 0o644)
	write(t, filepath.Join(e.from, "build", "external", "build-scripts", "foo-android-build.sh"),
		"#!/bin/sh\necho \"api=#{*API_VERSION*}# env=$DG_API_VERSION\" > built.txt\n", 0o755)

	write(t, filepath.Join(e.ndk, "build", "tools", "make_standalone_toolchain.py"),
		"#!/bin/sh\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = --install-dir ]; then dir=$2; fi\n  shift\ndone\nmkdir -p \"$dir/bin\"\n", 0o755)
	return e
}

func (e env) setupConfig() *cli.Config {
	return &cli.Config{
		Command:     cli.CmdSetup,
		NoAnimation: true,
		Setup: cli.SetupConfig{
			API:    "21",
			NDK:    e.ndk,
			SDK:    e.sdk,
			Gradle: e.gradle,
			Output: e.out,
			From:   e.from,
		},
	}
}

func run(t *testing.T, cfg *cli.Config, stdin string) (*bytes.Buffer, error) {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	a.Stdin = strings.NewReader(stdin)
	a.Stdout = &out
	_, err = a.Execute(context.Background())
	return &out, err
}

func TestSetupBuildAndPatchLifecycle(t *testing.T) {
	requireTools(t)
	quiet(t)
	e := newEnv(t)

	a, err := New(e.setupConfig())
	if err != nil {
		t.Fatal(err)
	}
	var stages []string
	a.SetProgressCallback(func(cur, total int, name string) { stages = append(stages, name) })
	summary, err := a.Execute(context.Background())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if len(stages) != 4 {
		t.Errorf("stages = %v", stages)
	}

	dest := filepath.Join(e.out, "Inst")
	src := filepath.Join(dest, "build", "external", "src", "foo-1.0")
	if got := read(t, filepath.Join(src, "config.h")); got != configPatched {
		t.Errorf("config.h = %q", got)
	}
	if got := read(t, filepath.Join(dest, "tools", "patch.py")); got != "FOO_VER=\"foo-1.0\"\n\n" {
		t.Errorf("patch.py = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "build", "android", "bin")); err != nil {
		t.Errorf("toolchain not installed: %v", err)
	}
	if !strings.Contains(strings.Join(summary.Skipped, "\n"), "build/missing.sh") {
		t.Errorf("optional template not reported: %v", summary.Skipped)
	}
	if got := read(t, filepath.Join(e.from, "build", "external", "src", "foo-1.0", "config.h")); got != configPristine {
		t.Error("source project was modified")
	}

	st, err := state.New(dest)
	if err != nil {
		t.Fatal(err)
	}
	if got := st.Get("foo").Status; got != state.StatusPatched {
		t.Errorf("state = %s", got)
	}

	// Build runs the rendered script with the build environment.
	if _, err := run(t, &cli.Config{Command: cli.CmdBuild, Build: cli.BuildConfig{Project: dest, Target: "all"}}, ""); err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := read(t, filepath.Join(src, "built.txt")); got != "api=21 env=21\n" {
		t.Errorf("built.txt = %q", got)
	}

	// Applying twice is refused by the recorded state.
	if _, err := run(t, &cli.Config{Command: cli.CmdPatchApply, Patch: cli.PatchConfig{Project: dest}}, ""); err == nil {
		t.Error("second apply succeeded")
	}

	if _, err := run(t, &cli.Config{Command: cli.CmdPatchRevert, Patch: cli.PatchConfig{Project: dest}}, ""); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got := read(t, filepath.Join(src, "config.h")); got != configPristine {
		t.Errorf("after revert config.h = %q", got)
	}

	if _, err := run(t, &cli.Config{Command: cli.CmdPatchApply, Patch: cli.PatchConfig{Project: dest, DryRun: true}}, ""); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if got := read(t, filepath.Join(src, "config.h")); got != configPristine {
		t.Error("dry run modified the tree")
	}

	out, err := run(t, &cli.Config{Command: cli.CmdPatchStatus, Patch: cli.PatchConfig{Project: dest}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "pristine") {
		t.Errorf("status output:\n%s", out)
	}
	for _, want := range []string{"Recent changes:", "foo: pristine -> patched", "foo: patched -> pristine"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestSetupDeclinedOverwrite(t *testing.T) {
	quiet(t)
	e := newEnv(t)
	if err := os.MkdirAll(filepath.Join(e.out, "Inst"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, e.setupConfig(), "n\n")
	if !errors.Is(err, fs.ErrDeclined) {
		t.Errorf("err = %v, want ErrDeclined", err)
	}
	if _, err := os.Stat(filepath.Join(e.out, "Inst", "dgtool.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Error("project copied despite declined overwrite")
	}
}

func TestSetupOverwriteRepatches(t *testing.T) {
	requireTools(t)
	quiet(t)
	e := newEnv(t)

	cfg := e.setupConfig()
	if _, err := run(t, cfg, ""); err != nil {
		t.Fatalf("first setup: %v", err)
	}
	cfg = e.setupConfig()
	cfg.Setup.Yes = true
	if _, err := run(t, cfg, ""); err != nil {
		t.Fatalf("second setup: %v", err)
	}

	dest := filepath.Join(e.out, "Inst")
	if got := read(t, filepath.Join(dest, "build", "external", "src", "foo-1.0", "config.h")); got != configPatched {
		t.Errorf("config.h after second setup = %q", got)
	}
	st, err := state.New(dest)
	if err != nil {
		t.Fatal(err)
	}
	if got := st.Get("foo").Status; got != state.StatusPatched {
		t.Errorf("state = %s", got)
	}
}

func TestSetupStopsWhenToolchainFails(t *testing.T) {
	requireTools(t)
	quiet(t)
	e := newEnv(t)
	write(t, filepath.Join(e.ndk, "build", "tools", "make_standalone_toolchain.py"), "#!/bin/sh\nexit 1\n", 0o755)

	_, err := run(t, e.setupConfig(), "")
	if err == nil {
		t.Fatal("setup succeeded")
	}
	dest := filepath.Join(e.out, "Inst")
	if got := read(t, filepath.Join(dest, "tools", "patch.py")); got != "#{*LIBS_VER*}#\n" {
		t.Errorf("scripts configured after toolchain failure: %q", got)
	}
}

func TestCreateShowAndVerify(t *testing.T) {
	requireTools(t)
	quiet(t)
	parent := t.TempDir()
	tpl := filepath.Join(parent, "Tpl")
	inst := filepath.Join(parent, "Inst")
	write(t, filepath.Join(tpl, "build", "external", "src", "foo-1.0", "config.h"), configPristine, 0o644)
	write(t, filepath.Join(inst, "dgtool.yaml"), testManifest, 0o644)
	write(t, filepath.Join(inst, "build", "external", "src", "foo-1.0", "config.h"), configPatched, 0o644)

	if _, err := run(t, &cli.Config{Command: cli.CmdPatchCreate, Patch: cli.PatchConfig{Project: inst, NoClean: true}}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	patchFile := filepath.Join(tpl, "build", "external", "patches", "foo.patch")
	if got := read(t, patchFile); got != fooPatch {
		t.Errorf("patch =\n%s\nwant\n%s", got, fooPatch)
	}

	out, err := run(t, &cli.Config{Command: cli.CmdPatchShow, Patch: cli.PatchConfig{File: patchFile}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "config.h") || !strings.Contains(out.String(), "1 file(s)") {
		t.Errorf("show output:\n%s", out)
	}

	if _, err := run(t, &cli.Config{Command: cli.CmdPatchVerify, Patch: cli.PatchConfig{Project: inst}}, ""); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestCreateStrictMissingTemplate(t *testing.T) {
	requireTools(t)
	quiet(t)
	inst := filepath.Join(t.TempDir(), "Inst")
	write(t, filepath.Join(inst, "dgtool.yaml"), testManifest, 0o644)
	if _, err := run(t, &cli.Config{Command: cli.CmdPatchCreate, Patch: cli.PatchConfig{Project: inst, NoClean: true}}, ""); err == nil {
		t.Error("create succeeded without a template tree")
	}
}

func TestFixPatch(t *testing.T) {
	quiet(t)
	base := t.TempDir()
	write(t, filepath.Join(base, "config.h"), configPristine, 0o644)
	broken := strings.Replace(fooPatch, "@@ -1,2 +1,2 @@", "@@ -9,9 +9,9 @@", 1)
	patchFile := filepath.Join(t.TempDir(), "broken.patch")
	write(t, patchFile, broken, 0o644)

	out, err := run(t, &cli.Config{Command: cli.CmdPatchFix, Patch: cli.PatchConfig{File: patchFile, Base: base, Strip: 5}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != fooPatch {
		t.Errorf("fixed patch =\n%s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, &cli.Config{Command: "frobnicate"}, ""); err == nil {
		t.Error("expected error")
	}
}
