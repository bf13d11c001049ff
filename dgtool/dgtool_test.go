package dgtool_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sokinpui/dgtool/dgtool"
)

const manifest = `template: Tpl
instance: Inst
libraries:
  - name: qemu
    group: main
    source: src/qemu
    patch: src/patches/qemu.patch
    files: [configure]
`

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateThenApply(t *testing.T) {
	for _, tool := range []string{"diff", "patch"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
	parent := t.TempDir()
	tpl := filepath.Join(parent, "Tpl")
	inst := filepath.Join(parent, "Inst")
	write(t, filepath.Join(tpl, "src", "qemu", "configure"), "cc=gcc\n")
	write(t, filepath.Join(inst, "dgtool.yaml"), manifest)
	write(t, filepath.Join(inst, "src", "qemu", "configure"), "cc=clang\n")

	ctx := context.Background()
	res, err := dgtool.CreatePatches(ctx, dgtool.Config{Project: inst})
	if err != nil {
		t.Fatal(err)
	}
	if len(res["Done"]) != 1 || !strings.HasPrefix(res["Done"][0], "qemu: 1 hunk(s)") {
		t.Fatalf("Done = %v", res["Done"])
	}

	// The template now carries the patch; applying it there turns the
	// template's copy into the instance's.
	write(t, filepath.Join(tpl, "dgtool.yaml"), manifest)
	if _, err := dgtool.ApplyPatches(ctx, dgtool.Config{Project: tpl}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(tpl, "src", "qemu", "configure"))
	if err != nil || string(data) != "cc=clang\n" {
		t.Errorf("configure = %q, %v", data, err)
	}

	if _, err := dgtool.RevertPatches(ctx, dgtool.Config{Project: tpl}); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(filepath.Join(tpl, "src", "qemu", "configure"))
	if string(data) != "cc=gcc\n" {
		t.Errorf("after revert configure = %q", data)
	}
}
