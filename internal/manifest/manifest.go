// Package manifest describes a project: which vendor libraries carry
// hand-modified files, where their patch files live, which build components
// exist and which script files carry substitution markers.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// FileName is the manifest file looked up at the project root.
const FileName = "dgtool.yaml"

const (
	GroupMain     = "main"
	GroupExternal = "external"
)

// Library is the tracked file set of one vendor library.
type Library struct {
	Name  string `yaml:"name"`
	Group string `yaml:"group"`
	// Source is the library's extracted source tree, relative to the project root.
	Source string `yaml:"source"`
	// PatchFile is relative to the project root.
	PatchFile string `yaml:"patch"`
	// Strip is the number of leading path segments removed from diff headers
	// when applying. Zero derives it from Source.
	Strip int `yaml:"strip,omitempty"`
	// Files are relative to Source, in patch order.
	Files []string `yaml:"files"`
}

// StripDepth returns the explicit strip depth or the one implied by how the
// generator roots diff headers: the template directory name plus every
// segment of Source.
func (l Library) StripDepth() int {
	if l.Strip > 0 {
		return l.Strip
	}
	return 1 + len(splitPath(l.Source))
}

// Component is one vendor project built by the build driver.
type Component struct {
	Name   string `yaml:"name"`
	Group  string `yaml:"group"`
	Source string `yaml:"source"`
	// Script is the component's build script, relative to the project root.
	Script string `yaml:"script"`
}

// TemplateFile is a text file carrying substitution markers.
type TemplateFile struct {
	Path     string   `yaml:"path"`
	Markers  []string `yaml:"markers"`
	Optional bool     `yaml:"optional,omitempty"`
}

// Toolchain configures standalone toolchain generation.
type Toolchain struct {
	// Script is relative to the NDK root.
	Script string `yaml:"script"`
	// InstallDir is relative to the project root.
	InstallDir string   `yaml:"installDir"`
	Arch       string   `yaml:"arch"`
	ExtraArgs  []string `yaml:"extraArgs,omitempty"`
}

// Manifest is the decoded dgtool.yaml.
type Manifest struct {
	// Template and Instance are the directory names of the pristine and
	// working checkouts. They root the paths inside generated patch files.
	Template string `yaml:"template"`
	Instance string `yaml:"instance"`

	Versions map[string]string `yaml:"versions"`
	// LibsVerFile holds the text substituted for the LIBS_VER marker.
	LibsVerFile string `yaml:"libsVerFile"`
	// ExternalClean is run before generating template patches, if present.
	ExternalClean string `yaml:"externalClean,omitempty"`
	// CreateClean is run in the instance before patches are created, if its
	// first element exists. Paths are relative to the project root.
	CreateClean []string `yaml:"createClean,omitempty"`

	Libraries  []Library      `yaml:"libraries"`
	Components []Component    `yaml:"components"`
	Templates  []TemplateFile `yaml:"templates"`
	Toolchain  Toolchain      `yaml:"toolchain"`
}

// Load reads dir/dgtool.yaml, falling back to Default when it is absent.
// The result is expanded and validated.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		m := Default()
		return m, m.resolve()
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.resolve(); err != nil {
		return nil, err
	}
	return m, nil
}

// resolve expands ${name} version references and checks invariants.
func (m *Manifest) resolve() error {
	if m.Template == "" || m.Instance == "" {
		return errors.New("manifest: template and instance names are required")
	}
	if m.Template == m.Instance {
		return fmt.Errorf("manifest: template and instance must differ (both %q)", m.Template)
	}
	if m.LibsVerFile == "" {
		m.LibsVerFile = "LIBS_VER"
	}

	expand := func(s string) (string, error) {
		var missing []string
		out := os.Expand(s, func(key string) string {
			v, ok := m.Versions[key]
			if !ok {
				missing = append(missing, key)
			}
			return v
		})
		if len(missing) > 0 {
			return "", fmt.Errorf("unknown version %q in %q", missing[0], s)
		}
		return out, nil
	}

	seen := make(map[string]bool)
	for i := range m.Libraries {
		lib := &m.Libraries[i]
		if lib.Name == "" {
			return fmt.Errorf("manifest: library #%d has no name", i+1)
		}
		if seen[lib.Name] {
			return fmt.Errorf("manifest: duplicate library %q", lib.Name)
		}
		seen[lib.Name] = true
		if lib.Strip < 0 {
			return fmt.Errorf("manifest: library %q: negative strip depth", lib.Name)
		}
		if len(lib.Files) == 0 {
			return fmt.Errorf("manifest: library %q tracks no files", lib.Name)
		}
		var err error
		if lib.Source, err = expand(lib.Source); err != nil {
			return fmt.Errorf("manifest: library %q: %w", lib.Name, err)
		}
		if lib.PatchFile, err = expand(lib.PatchFile); err != nil {
			return fmt.Errorf("manifest: library %q: %w", lib.Name, err)
		}
		if lib.Source == "" || lib.PatchFile == "" {
			return fmt.Errorf("manifest: library %q needs source and patch", lib.Name)
		}
		for _, f := range lib.Files {
			if filepath.IsAbs(f) || strings.HasPrefix(filepath.Clean(f), "..") {
				return fmt.Errorf("manifest: library %q: tracked file %q escapes its source tree", lib.Name, f)
			}
		}
	}

	seen = make(map[string]bool)
	for i := range m.Components {
		c := &m.Components[i]
		if c.Name == "" {
			return fmt.Errorf("manifest: component #%d has no name", i+1)
		}
		if seen[c.Name] {
			return fmt.Errorf("manifest: duplicate component %q", c.Name)
		}
		seen[c.Name] = true
		var err error
		if c.Source, err = expand(c.Source); err != nil {
			return fmt.Errorf("manifest: component %q: %w", c.Name, err)
		}
		if c.Script, err = expand(c.Script); err != nil {
			return fmt.Errorf("manifest: component %q: %w", c.Name, err)
		}
	}
	return nil
}

// Library returns the named library.
func (m *Manifest) Library(name string) (Library, bool) {
	for _, l := range m.Libraries {
		if l.Name == name {
			return l, true
		}
	}
	return Library{}, false
}

// SelectLibraries returns libraries in manifest order. With no names every
// library is returned; a name may also be a group.
func (m *Manifest) SelectLibraries(names ...string) ([]Library, error) {
	if len(names) == 0 {
		return append([]Library(nil), m.Libraries...), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}
	var out []Library
	for _, l := range m.Libraries {
		_, byName := want[l.Name]
		_, byGroup := want[l.Group]
		if byName || byGroup {
			out = append(out, l)
			if byName {
				want[l.Name] = true
			}
			if byGroup {
				want[l.Group] = true
			}
		}
	}
	for _, n := range names {
		if !want[n] {
			return nil, fmt.Errorf("unknown library or group %q", n)
		}
	}
	return out, nil
}

// SelectComponents resolves a build target: "all", a group name, or a
// component name.
func (m *Manifest) SelectComponents(target string) ([]Component, error) {
	if target == "" || target == "all" {
		return append([]Component(nil), m.Components...), nil
	}
	var out []Component
	for _, c := range m.Components {
		if c.Name == target || c.Group == target {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown build target %q", target)
	}
	return out, nil
}

func splitPath(p string) []string {
	p = filepath.ToSlash(filepath.Clean(p))
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}
