package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sokinpui/dgtool/internal/config"
	"github.com/sokinpui/dgtool/internal/fs"
)

// Command names a dgtool subcommand.
type Command string

const (
	CmdSetup        Command = "setup"
	CmdPatchCreate  Command = "patch create"
	CmdPatchApply   Command = "patch apply"
	CmdPatchRevert  Command = "patch revert"
	CmdPatchShow    Command = "patch show"
	CmdPatchFix     Command = "patch fix"
	CmdPatchVerify  Command = "patch verify"
	CmdPatchStatus  Command = "patch status"
	CmdBuild        Command = "build"
	CmdMakeTemplate Command = "make-template"
)

// ErrHelp is returned when help was requested and printed.
var ErrHelp = pflag.ErrHelp

// UsageError is an invalid invocation. Nothing has been done yet when one
// is returned.
type UsageError struct {
	Err   error
	Usage string
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// SetupConfig holds the flags of "dgtool setup".
type SetupConfig struct {
	API    string
	NDK    string
	SDK    string
	Gradle string
	Output string
	From   string
	Name   string
	Arch   string
	Yes    bool
}

// PatchConfig holds the flags shared by the "dgtool patch" subcommands.
type PatchConfig struct {
	Project      string
	Template     string
	Instance     string
	Libraries    []string
	AllowPartial bool
	NoClean      bool
	Copy         bool
	DryRun       bool
	Force        bool
	File         string
	Base         string
	Strip        int
}

// BuildConfig holds the flags of "dgtool build".
type BuildConfig struct {
	Project  string
	Target   string
	Clean    bool
	MakeOnly bool
	Jobs     int
}

// MakeTemplateConfig holds the arguments of "dgtool make-template".
type MakeTemplateConfig struct {
	Project     string
	TemplateDir string
}

// Config holds all the command-line values of one invocation.
type Config struct {
	Command      Command
	NoAnimation  bool
	ToolTimeout  time.Duration
	Setup        SetupConfig
	Patch        PatchConfig
	Build        BuildConfig
	MakeTemplate MakeTemplateConfig
}

// Interactive reports whether the command may run under the spinner view.
// Commands that print to stdout never do.
func (c *Config) Interactive() bool {
	switch c.Command {
	case CmdSetup, CmdBuild, CmdPatchApply, CmdPatchRevert, CmdPatchCreate, CmdMakeTemplate:
		return !c.NoAnimation
	}
	return false
}

const mainUsage = `Usage: dgtool <command> [flags]

Commands:
  setup                 instantiate a configured project from this one
  patch create          regenerate library patches from template and instance trees
  patch apply           apply library patches to the project
  patch revert          reverse previously applied library patches
  patch show [FILE]     summarize a patch (file, stdin or clipboard)
  patch fix [FILE]      rebuild the hunk headers of a hand-edited patch
  patch verify          check that patches reproduce the instance exactly
  patch status          show recorded patch state per library
  build                 build vendor components
  make-template DIR     regenerate external library patches into a template

Run "dgtool <command> -h" for the flags of a command.
`

// ParseFlags parses os.Args with defaults taken from the environment.
func ParseFlags() (*Config, error) {
	env, err := config.Load()
	if err != nil {
		return nil, &UsageError{Err: err, Usage: mainUsage}
	}
	return Parse(os.Args[1:], env, os.Stderr)
}

// Parse parses args (without the program name). Help and usage text go to w.
func Parse(args []string, env config.Env, w io.Writer) (*Config, error) {
	cfg := &Config{NoAnimation: env.NoAnimation, ToolTimeout: env.ToolTimeout}
	if len(args) == 0 {
		fmt.Fprint(w, mainUsage)
		return nil, &UsageError{Err: errors.New("no command given"), Usage: mainUsage}
	}

	name, rest := args[0], args[1:]
	switch name {
	case "-h", "--help", "help":
		fmt.Fprint(w, mainUsage)
		return nil, ErrHelp
	case "setup":
		cfg.Command = CmdSetup
		return cfg, parseSetup(cfg, rest, env, w)
	case "patch":
		if len(rest) == 0 || strings.HasPrefix(rest[0], "-") {
			fmt.Fprint(w, mainUsage)
			return nil, &UsageError{Err: errors.New("patch: missing subcommand"), Usage: mainUsage}
		}
		cfg.Command = Command("patch " + rest[0])
		switch cfg.Command {
		case CmdPatchCreate, CmdPatchApply, CmdPatchRevert, CmdPatchShow, CmdPatchFix, CmdPatchVerify, CmdPatchStatus:
		default:
			return nil, &UsageError{Err: fmt.Errorf("unknown patch subcommand %q", rest[0]), Usage: mainUsage}
		}
		return cfg, parsePatch(cfg, rest[1:], w)
	case "build":
		cfg.Command = CmdBuild
		return cfg, parseBuild(cfg, rest, w)
	case "make-template":
		cfg.Command = CmdMakeTemplate
		return cfg, parseMakeTemplate(cfg, rest, w)
	default:
		return nil, &UsageError{Err: fmt.Errorf("unknown command %q", name), Usage: mainUsage}
	}
}

func newFlagSet(name, usage string, w io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(w)
	flags.Usage = func() {
		fmt.Fprintf(w, "Usage: dgtool %s\n\nFlags:\n", usage)
		flags.PrintDefaults()
	}
	return flags
}

func usageOf(flags *pflag.FlagSet, usage string) string {
	return fmt.Sprintf("Usage: dgtool %s\n\nFlags:\n%s", usage, flags.FlagUsages())
}

// parse runs flags.Parse and converts failures into UsageErrors.
func parse(flags *pflag.FlagSet, usage string, args []string) error {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ErrHelp
		}
		return &UsageError{Err: err, Usage: usageOf(flags, usage)}
	}
	return nil
}

func parseSetup(cfg *Config, args []string, env config.Env, w io.Writer) error {
	const usage = "setup -a API -n NDK_DIR -s SDK_DIR -g GRADLE_DIR -o OUTPUT_DIR [flags]"
	s := &cfg.Setup
	flags := newFlagSet("setup", usage, w)
	flags.StringVarP(&s.API, "api", "a", env.APILevel, "Target Android API level.")
	flags.StringVarP(&s.NDK, "ndk", "n", env.NDK, "Android NDK directory.")
	flags.StringVarP(&s.SDK, "sdk", "s", env.SDK(), "Android SDK directory.")
	flags.StringVarP(&s.Gradle, "gradle", "g", env.Gradle, "Gradle bin directory.")
	flags.StringVarP(&s.Output, "output", "o", "", "Directory to create the project in.")
	flags.StringVar(&s.From, "from", ".", "Project to copy (default: current directory).")
	flags.StringVar(&s.Name, "name", "", "Name of the new project directory (default: manifest instance name).")
	flags.StringVar(&s.Arch, "arch", "", "Toolchain architecture (default: manifest setting).")
	flags.BoolVarP(&s.Yes, "yes", "y", false, "Overwrite an existing project without asking.")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", cfg.NoAnimation, "Disable the progress spinner.")
	if err := parse(flags, usage, args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return &UsageError{Err: fmt.Errorf("unexpected argument %q", flags.Arg(0)), Usage: usageOf(flags, usage)}
	}
	if err := ValidateSetup(s); err != nil {
		return &UsageError{Err: err, Usage: usageOf(flags, usage)}
	}
	return nil
}

// ValidateSetup checks every setup value and normalizes directory paths.
// It has no side effects beyond stat calls.
func ValidateSetup(s *SetupConfig) error {
	required := []struct{ val, what string }{
		{s.API, "api version"},
		{s.NDK, "android NDK directory"},
		{s.SDK, "android SDK directory"},
		{s.Gradle, "gradle bin path"},
		{s.Output, "output directory"},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%s not set", r.what)
		}
	}
	if !isDigits(s.API) {
		return fmt.Errorf("api version %s is not a valid number", s.API)
	}

	dirs := []struct {
		p    *string
		what string
	}{
		{&s.NDK, "ndk directory"},
		{&s.SDK, "sdk directory"},
		{&s.Gradle, "gradle bin path"},
		{&s.Output, "output directory"},
		{&s.From, "project directory"},
	}
	for _, d := range dirs {
		clean, err := cleanDir(*d.p)
		if err != nil {
			return fmt.Errorf("%s %s", d.what, err)
		}
		*d.p = clean
	}
	if s.Name != "" && (strings.ContainsRune(s.Name, filepath.Separator) || s.Name == "." || s.Name == "..") {
		return fmt.Errorf("project name %q must be a single directory name", s.Name)
	}
	return nil
}

func cleanDir(p string) (string, error) {
	clean, err := fs.CleanDir(p)
	if err != nil {
		return "", err
	}
	return filepath.Abs(clean)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parsePatch(cfg *Config, args []string, w io.Writer) error {
	p := &cfg.Patch
	usage := string(cfg.Command) + " [flags]"
	switch cfg.Command {
	case CmdPatchShow, CmdPatchFix:
		usage = string(cfg.Command) + " [FILE] [flags]"
	}
	flags := newFlagSet(string(cfg.Command), usage, w)

	switch cfg.Command {
	case CmdPatchShow:
	case CmdPatchFix:
		flags.StringVar(&p.Base, "base", ".", "Directory the patch paths are resolved against.")
		flags.IntVarP(&p.Strip, "strip", "p", 1, "Leading path segments to strip, as patch -p does.")
	default:
		flags.StringVarP(&p.Project, "project", "p", ".", "Project root (default: current directory).")
		flags.StringSliceVarP(&p.Libraries, "library", "l", nil, "Limit to these libraries or groups (repeatable).")
		flags.BoolVar(&cfg.NoAnimation, "no-animation", cfg.NoAnimation, "Disable the progress spinner.")
	}

	switch cfg.Command {
	case CmdPatchCreate, CmdPatchVerify:
		flags.StringVar(&p.Template, "template", "", "Template tree (default: sibling directory named by the manifest).")
		flags.StringVar(&p.Instance, "instance", "", "Instance tree (default: the project root).")
		flags.BoolVar(&p.AllowPartial, "allow-partial", false, "Skip files that cannot be diffed instead of failing.")
	}
	switch cfg.Command {
	case CmdPatchCreate:
		flags.BoolVar(&p.Copy, "copy", false, "Also copy the generated patch text to the clipboard.")
		flags.BoolVar(&p.NoClean, "no-clean", false, "Do not run the manifest's clean step first.")
	case CmdPatchApply, CmdPatchRevert:
		flags.BoolVar(&p.DryRun, "dry-run", false, "Only check that the patches apply.")
		flags.BoolVarP(&p.Force, "force", "f", false, "Ignore the recorded patch state.")
	}

	if err := parse(flags, usage, args); err != nil {
		return err
	}

	switch cfg.Command {
	case CmdPatchShow, CmdPatchFix:
		if flags.NArg() > 1 {
			return &UsageError{Err: errors.New("at most one patch file may be given"), Usage: usageOf(flags, usage)}
		}
		p.File = flags.Arg(0)
		if p.Strip < 0 {
			return &UsageError{Err: errors.New("strip depth must not be negative"), Usage: usageOf(flags, usage)}
		}
	default:
		if flags.NArg() > 0 {
			return &UsageError{Err: fmt.Errorf("unexpected argument %q", flags.Arg(0)), Usage: usageOf(flags, usage)}
		}
	}
	return nil
}

func parseBuild(cfg *Config, args []string, w io.Writer) error {
	const usage = "build [flags]"
	b := &cfg.Build
	flags := newFlagSet("build", usage, w)
	flags.StringVarP(&b.Project, "project", "p", ".", "Project root (default: current directory).")
	flags.StringVarP(&b.Target, "target", "t", "all", "all, main, external, or a component name.")
	flags.BoolVarP(&b.Clean, "clean", "c", false, "Run make clean before building each component.")
	flags.BoolVarP(&b.MakeOnly, "make-only", "m", false, "Run make directly instead of the build scripts.")
	flags.IntVarP(&b.Jobs, "jobs", "j", 0, "Parallel make jobs (default: number of CPUs).")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", cfg.NoAnimation, "Disable the progress spinner.")
	if err := parse(flags, usage, args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return &UsageError{Err: fmt.Errorf("unexpected argument %q", flags.Arg(0)), Usage: usageOf(flags, usage)}
	}
	if b.Jobs < 0 {
		return &UsageError{Err: errors.New("jobs must not be negative"), Usage: usageOf(flags, usage)}
	}
	return nil
}

func parseMakeTemplate(cfg *Config, args []string, w io.Writer) error {
	const usage = "make-template TEMPLATE_DIR [flags]"
	mt := &cfg.MakeTemplate
	flags := newFlagSet("make-template", usage, w)
	flags.StringVarP(&mt.Project, "project", "p", ".", "Project root (default: current directory).")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", cfg.NoAnimation, "Disable the progress spinner.")
	if err := parse(flags, usage, args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return &UsageError{Err: errors.New("exactly one TEMPLATE_DIR is required"), Usage: usageOf(flags, usage)}
	}
	dir, err := cleanDir(flags.Arg(0))
	if err != nil {
		return &UsageError{Err: fmt.Errorf("template directory %s", err), Usage: usageOf(flags, usage)}
	}
	mt.TemplateDir = dir
	return nil
}
