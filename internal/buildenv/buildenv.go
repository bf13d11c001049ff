// Package buildenv stores the values setup resolves for the build scripts
// (toolchain dir, API level, gradle and SDK paths, library versions) in a
// KEY=value file so that builds can pass them as environment variables
// instead of relying on rewritten scripts.
package buildenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sokinpui/dgtool/internal/config"
)

// FileName is the env file's path relative to the project root.
const FileName = "build/dgtool.env"

// Prefix starts every variable exported to build scripts.
const Prefix = "DG_"

// Env is the resolved build configuration.
type Env struct {
	ProjectDir   string            `env:"DG_PROJECT_DIR"`
	AndroidBuild string            `env:"DG_ANDROID_BUILD,required"`
	APIVersion   string            `env:"DG_API_VERSION,required"`
	GradleBin    string            `env:"DG_GRADLE_BIN_PATH"`
	SDKPath      string            `env:"DG_ANDROID_SDK_PATH"`
	Arch         string            `env:"DG_ARCH" envDefault:"arm"`
	Versions     map[string]string `env:"DG_VERSIONS" envSeparator:"," envKeyValSeparator:":"`
}

// Vars returns the env file's variables. Each library version is exported
// twice: inside DG_VERSIONS and as DG_<NAME>_VER.
func (e Env) Vars() map[string]string {
	vars := map[string]string{
		"DG_PROJECT_DIR":      e.ProjectDir,
		"DG_ANDROID_BUILD":    e.AndroidBuild,
		"DG_API_VERSION":      e.APIVersion,
		"DG_GRADLE_BIN_PATH":  e.GradleBin,
		"DG_ANDROID_SDK_PATH": e.SDKPath,
		"DG_ARCH":             e.Arch,
	}
	names := sortedKeys(e.Versions)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+":"+e.Versions[name])
		vars[VersionVar(name)] = e.Versions[name]
	}
	vars["DG_VERSIONS"] = strings.Join(pairs, ",")
	return vars
}

// Environ returns Vars as sorted KEY=value strings for exec.
func (e Env) Environ() []string {
	vars := e.Vars()
	out := make([]string, 0, len(vars))
	for _, k := range sortedKeys(vars) {
		out = append(out, k+"="+vars[k])
	}
	return out
}

// VersionVar names the per-library version variable, e.g. DG_LIBICONV_VER.
func VersionVar(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return Prefix + name + "_VER"
}

// Marshal renders the env file. Values are quoted and escaped, so paths
// with spaces or newlines survive a round trip.
func (e Env) Marshal() ([]byte, error) {
	body, err := godotenv.Marshal(e.Vars())
	if err != nil {
		return nil, err
	}
	return []byte("# Generated by dgtool setup.\n" + body + "\n"), nil
}

// Write stores e at projectDir/FileName.
func Write(projectDir string, e Env) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	path := filepath.Join(projectDir, filepath.FromSlash(FileName))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ErrNotFound is returned by Load when the project has no env file.
var ErrNotFound = errors.New("build environment not found; run dgtool setup first")

// Load reads projectDir/FileName.
func Load(projectDir string) (Env, error) {
	path := filepath.Join(projectDir, filepath.FromSlash(FileName))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Env{}, ErrNotFound
	}
	if err != nil {
		return Env{}, err
	}
	e, err := Parse(data)
	if err != nil {
		return Env{}, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

// Parse decodes env file content.
func Parse(data []byte) (Env, error) {
	vars, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return Env{}, err
	}
	var e Env
	if err := config.ParseEnvMap(&e, vars); err != nil {
		return Env{}, err
	}
	return e, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
