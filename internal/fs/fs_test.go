package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
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

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	write(t, filepath.Join(src, "tools", "build.sh"), "#!/bin/sh\n", 0o755)
	write(t, filepath.Join(src, "src", "qemu", "configure"), "cfg\n", 0o644)
	write(t, filepath.Join(src, ".dgtool", "state.yaml"), "x", 0o644)
	if err := os.Symlink("configure", filepath.Join(src, "src", "qemu", "link")); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "out")
	if err := CopyTree(src, dst, ".dgtool"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dst, "tools", "build.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
	if link, err := os.Readlink(filepath.Join(dst, "src", "qemu", "link")); err != nil || link != "configure" {
		t.Errorf("symlink = %q, %v", link, err)
	}
	if _, err := os.Stat(filepath.Join(dst, ".dgtool")); !errors.Is(err, os.ErrNotExist) {
		t.Error("skipped directory was copied")
	}

	// A second copy merges over the first, replacing files and links.
	write(t, filepath.Join(dst, "src", "qemu", "configure"), "edited\n", 0o644)
	if err := CopyTree(src, dst, ".dgtool"); err != nil {
		t.Fatalf("copy over existing tree: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "src", "qemu", "configure"))
	if err != nil || string(data) != "cfg\n" {
		t.Errorf("configure = %q, %v", data, err)
	}
	if link, err := os.Readlink(filepath.Join(dst, "src", "qemu", "link")); err != nil || link != "configure" {
		t.Errorf("symlink after recopy = %q, %v", link, err)
	}
}

func TestCopyTreeIntoItself(t *testing.T) {
	src := t.TempDir()
	write(t, filepath.Join(src, "a.txt"), "a", 0o644)
	dst := filepath.Join(src, "out")
	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dst, "out")); !errors.Is(err, os.ErrNotExist) {
		t.Error("destination was copied into itself")
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); err != nil {
		t.Error(err)
	}
}

func TestCleanDir(t *testing.T) {
	dir := t.TempDir()
	got, err := CleanDir(dir + "/")
	if err != nil || got != dir {
		t.Errorf("CleanDir = %q, %v", got, err)
	}
	file := filepath.Join(dir, "f")
	write(t, file, "", 0o644)
	if _, err := CleanDir(file); err == nil {
		t.Error("file accepted as directory")
	}
	if _, err := CleanDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing dir accepted")
	}
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "LIBS_VER"), "", 0o644)
	deep := filepath.Join(root, "src", "qemu")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := FindRoot(deep, "dgtool.yaml", "LIBS_VER")
	if err != nil || got != root {
		t.Errorf("FindRoot = %q, %v", got, err)
	}
}

func TestPrepareDest(t *testing.T) {
	dir := t.TempDir()
	if err := PrepareDest(dir, false, strings.NewReader("n\n")); !errors.Is(err, ErrDeclined) {
		t.Errorf("declined: %v", err)
	}
	if err := PrepareDest(dir, false, strings.NewReader("y\n")); err != nil {
		t.Errorf("accepted: %v", err)
	}
	if err := PrepareDest(dir, true, strings.NewReader("")); err != nil {
		t.Errorf("assume yes: %v", err)
	}
	fresh := filepath.Join(dir, "new")
	if err := PrepareDest(fresh, false, strings.NewReader("")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("destination not created")
	}
}

func TestFileSHA256(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	write(t, p, "abc", 0o644)
	got, err := FileSHA256(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("FileSHA256 = %s", got)
	}
}
