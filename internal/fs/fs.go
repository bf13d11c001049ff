package fs

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"github.com/sokinpui/dgtool/internal/ui"
)

// ErrDeclined is returned when the user refuses an overwrite.
var ErrDeclined = errors.New("declined by user")

// FindRoot walks up from start until it finds a directory holding one of
// the marker files. It returns start itself when nothing is found.
func FindRoot(start string, markers ...string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for dir := abs; ; {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// CleanDir trims trailing separators and checks that p is a directory.
func CleanDir(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty path")
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, string(os.PathSeparator))
		if p == "" {
			p = string(os.PathSeparator)
		}
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%s does not exist", p)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", p)
	}
	return p, nil
}

// IsWithin reports whether p is base or lies below it.
func IsWithin(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// CopyTree copies src into dst, creating dst if needed. Existing files are
// overwritten. Symlinks are recreated, not followed. Directory names in skip
// are not descended into, and dst itself is never copied into itself.
func CopyTree(src, dst string, skip ...string) error {
	src, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	dst, err = filepath.Abs(dst)
	if err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("copy %s: source and destination are the same", src)
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	return copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
		Skip: func(info os.FileInfo, path, target string) (bool, error) {
			mode := info.Mode()
			switch {
			case info.IsDir():
				return skipped[info.Name()] || path == dst, nil
			case mode&os.ModeSymlink != 0:
				// Shallow copies fail on an existing link.
				if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
					return false, err
				}
				return false, nil
			default:
				// Sockets, devices and pipes have no place in a source tree.
				return !mode.IsRegular(), nil
			}
		},
	})
}

// FileSHA256 returns the hex SHA-256 of a file's content.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ConfirmOverwrite asks whether an existing path may be overwritten. Only
// an explicit "y" or "yes" is accepted.
func ConfirmOverwrite(in io.Reader, path string) bool {
	ui.Warning("%s already exists.", path)
	fmt.Fprint(os.Stderr, ui.Prompt("Do you want to overwrite it? (y/N): "))
	reader := bufio.NewReader(in)
	response, _ := reader.ReadString('\n')
	switch strings.TrimSpace(strings.ToLower(response)) {
	case "y", "yes":
		return true
	}
	ui.Warning("Overwrite declined. Exiting.")
	return false
}

// PrepareDest makes dst ready to receive a copy. When dst exists, the user
// must confirm unless assumeYes is set.
func PrepareDest(dst string, assumeYes bool, in io.Reader) error {
	_, err := os.Stat(dst)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.MkdirAll(dst, 0o755)
	case err != nil:
		return err
	}
	if !assumeYes && !ConfirmOverwrite(in, dst) {
		return ErrDeclined
	}
	return nil
}
