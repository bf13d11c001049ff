package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultResolves(t *testing.T) {
	m, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load without manifest: %v", err)
	}

	qemu, ok := m.Library("qemu")
	if !ok {
		t.Fatal("qemu library missing")
	}
	if qemu.Source != "src/qemu-2.10.0" {
		t.Errorf("qemu source = %q", qemu.Source)
	}

	// Strip depths used by the stock patch files.
	depths := map[string]int{"gettext": 5, "glib": 5, "qemu": 3}
	for name, want := range depths {
		lib, _ := m.Library(name)
		if got := lib.StripDepth(); got != want {
			t.Errorf("%s strip = %d, want %d", name, got, want)
		}
	}
}

func TestParseOverrides(t *testing.T) {
	const doc = `
template: T
instance: I
versions:
  liba: liba-1.0
libraries:
  - name: liba
    group: external
    source: vendor/${liba}
    patch: patches/liba.patch
    strip: 7
    files: [foo.c, sub/bar.h]
components:
  - name: liba
    group: external
    source: vendor/${liba}
    script: scripts/liba.sh
`
	m, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := []Library{{
		Name:      "liba",
		Group:     "external",
		Source:    "vendor/liba-1.0",
		PatchFile: "patches/liba.patch",
		Strip:     7,
		Files:     []string{"foo.c", "sub/bar.h"},
	}}
	if diff := cmp.Diff(want, m.Libraries); diff != "" {
		t.Errorf("libraries mismatch (-want +got):\n%s", diff)
	}
	if m.Libraries[0].StripDepth() != 7 {
		t.Errorf("explicit strip not honored")
	}
	if m.LibsVerFile != "LIBS_VER" {
		t.Errorf("LibsVerFile default = %q", m.LibsVerFile)
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"same roots":      "template: A\ninstance: A\n",
		"unknown version": "template: A\ninstance: B\nlibraries:\n  - name: x\n    source: src/${nope}\n    patch: p\n    files: [a]\n",
		"duplicate":       "template: A\ninstance: B\nlibraries:\n  - {name: x, source: s, patch: p, files: [a]}\n  - {name: x, source: s, patch: p, files: [a]}\n",
		"no files":        "template: A\ninstance: B\nlibraries:\n  - {name: x, source: s, patch: p}\n",
		"escaping file":   "template: A\ninstance: B\nlibraries:\n  - {name: x, source: s, patch: p, files: [../etc/passwd]}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	doc := "template: tpl\ninstance: inst\nlibraries:\n  - {name: x, source: s, patch: p.patch, files: [a.c]}\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Template != "tpl" || len(m.Libraries) != 1 {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestSelectLibraries(t *testing.T) {
	m := Default()
	if err := m.resolve(); err != nil {
		t.Fatal(err)
	}

	names := func(libs []Library) []string {
		var out []string
		for _, l := range libs {
			out = append(out, l.Name)
		}
		return out
	}

	all, _ := m.SelectLibraries()
	if diff := cmp.Diff([]string{"gettext", "glib", "qemu"}, names(all)); diff != "" {
		t.Errorf("all (-want +got):\n%s", diff)
	}

	ext, err := m.SelectLibraries(GroupExternal)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"gettext", "glib"}, names(ext)); diff != "" {
		t.Errorf("external (-want +got):\n%s", diff)
	}

	// Selection keeps manifest order regardless of argument order.
	some, _ := m.SelectLibraries("qemu", "gettext")
	if diff := cmp.Diff([]string{"gettext", "qemu"}, names(some)); diff != "" {
		t.Errorf("subset (-want +got):\n%s", diff)
	}

	if _, err := m.SelectLibraries("nope"); err == nil {
		t.Error("expected unknown library error")
	}
}

func TestSelectComponents(t *testing.T) {
	m := Default()
	if err := m.resolve(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		target string
		want   int
	}{
		{"all", 8},
		{"", 8},
		{GroupMain, 2},
		{GroupExternal, 6},
		{"glib", 1},
	}
	for _, tt := range tests {
		got, err := m.SelectComponents(tt.target)
		if err != nil {
			t.Fatalf("%q: %v", tt.target, err)
		}
		if len(got) != tt.want {
			t.Errorf("%q: %d components, want %d", tt.target, len(got), tt.want)
		}
	}
	if _, err := m.SelectComponents("gradle"); err == nil {
		t.Error("expected unknown target error")
	}
}
