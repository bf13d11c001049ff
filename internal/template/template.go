// Package template substitutes #{*NAME*}# markers in script files.
package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Marker returns the literal token for name, e.g. "#{*API_VERSION*}#".
func Marker(name string) string {
	return "#{*" + name + "*}#"
}

// Values maps marker names to replacement text.
type Values map[string]string

// Replacer builds a single-pass replacer for the given marker names. Names
// missing from v are an error. Replacement text is never rescanned, so a
// value containing another marker is inserted literally.
func (v Values) Replacer(names ...string) (*strings.Replacer, error) {
	if len(names) == 0 {
		names = make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		val, ok := v[name]
		if !ok {
			return nil, fmt.Errorf("no value for marker %s", Marker(name))
		}
		pairs = append(pairs, Marker(name), val)
	}
	return strings.NewReplacer(pairs...), nil
}

// Render substitutes markers in content.
func Render(content []byte, v Values, names ...string) ([]byte, error) {
	r, err := v.Replacer(names...)
	if err != nil {
		return nil, err
	}
	return []byte(r.Replace(string(content))), nil
}

// RenderFile substitutes markers in path in place. A file that contains
// none of the markers is not rewritten. It reports whether the file changed.
func RenderFile(path string, v Values, names ...string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out, err := Render(data, v, names...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if bytes.Equal(out, data) {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	// Scripts must stay executable.
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, err
	}
	return true, nil
}
