package patcher

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestFindBlockIgnoresWhitespace(t *testing.T) {
	source := []string{"int a;", "", "void  f(void)", "{", "    x();", "}"}
	block := []string{"void f(void)", "{", "\tx();"}
	if got := findBlock(source, block); got != 3 {
		t.Errorf("findBlock = %d, want 3", got)
	}
	if got := findBlock(source, []string{"nope"}); got != -1 {
		t.Errorf("findBlock(missing) = %d, want -1", got)
	}
	if got := findBlock(source, nil); got != -1 {
		t.Errorf("findBlock(empty) = %d, want -1", got)
	}
}

func TestRepairPatchRewritesHeaders(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "foo.c"), fooTemplate)

	// Hand-edited: neither start lines nor counts match any more.
	broken := strings.Join([]string{
		"--- T/libA/foo.c",
		"+++ I/libA/foo.c",
		"@@ -40,1 +40,1 @@",
		" {",
		"+\tputs(\"android\");",
		" \treturn 0;",
		"--- T/libA/new.c",
		"+++ I/libA/new.c",
		"@@ -0,0 +1,5 @@",
		"+int added;",
		"",
	}, "\n")

	got, err := RepairPatch(broken, base, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"--- T/libA/foo.c",
		"+++ I/libA/foo.c",
		"@@ -4,2 +4,3 @@",
		" {",
		"+\tputs(\"android\");",
		" \treturn 0;",
		"--- T/libA/new.c",
		"+++ I/libA/new.c",
		"@@ -0,0 +1,1 @@",
		"+int added;",
		"",
	}, "\n")
	if got != want {
		t.Errorf("RepairPatch mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRepairPatchReportsMissingContext(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "foo.c"), "unrelated\n")
	text := "--- T/libA/foo.c\n+++ I/libA/foo.c\n@@ -1,1 +1,2 @@\n {\n+x\n"
	if _, err := RepairPatch(text, base, 2); err == nil {
		t.Error("expected context-not-found error")
	}
}

func TestRepairPatchStripTooDeep(t *testing.T) {
	text := "--- a.c\n+++ b.c\n@@ -1 +1 @@\n-a\n+b\n"
	if _, err := RepairPatch(text, t.TempDir(), 3); err == nil {
		t.Error("expected strip error")
	}
}

func TestRepairPatchKeepsStrippedBlankContext(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "a.c"), "int a;\n\nint b;\nint c;\n")

	// An editor trimmed the blank context line down to "".
	text := "--- T/a.c\n+++ I/a.c\n@@ -1,3 +1,3 @@\n int a;\n\n-int b;\n+int B;\n int c;\n\n"
	got, err := RepairPatch(text, base, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := "--- T/a.c\n+++ I/a.c\n@@ -1,4 +1,4 @@\n int a;\n \n-int b;\n+int B;\n int c;\n"
	if got != want {
		t.Errorf("RepairPatch mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
}
