// Package state records, per project, which library patches are applied.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DirName  = ".dgtool"
	FileName = "state.yaml"
	// maxHistory bounds the transition log kept in the state file.
	maxHistory = 200
)

// Status is a library's patch state.
type Status string

const (
	StatusPristine Status = "pristine"
	StatusPatched  Status = "patched"
	StatusFailed   Status = "failed"
)

// LibraryState is the last recorded state of one library.
type LibraryState struct {
	Name   string `yaml:"name"`
	Status Status `yaml:"status"`
	// PatchSum is the SHA-256 of the patch file that was applied.
	PatchSum string    `yaml:"patchSum,omitempty"`
	Error    string    `yaml:"error,omitempty"`
	Updated  time.Time `yaml:"updated"`
}

// HistoryEntry is one recorded transition.
type HistoryEntry struct {
	Timestamp int64  `yaml:"timestamp"`
	Library   string `yaml:"library"`
	From      Status `yaml:"from"`
	To        Status `yaml:"to"`
}

// State is the whole state file.
type State struct {
	Libraries []LibraryState `yaml:"libraries"`
	History   []HistoryEntry `yaml:"history"`
}

// Manager handles the lifecycle of the state file.
type Manager struct {
	statePath string
	state     *State
	StateDir  string

	now func() time.Time
}

// New loads the state of the project rooted at projectDir. A missing file
// means every library is pristine.
func New(projectDir string) (*Manager, error) {
	stateDir := filepath.Join(projectDir, DirName)
	m := &Manager{
		statePath: filepath.Join(stateDir, FileName),
		StateDir:  stateDir,
		now:       time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		m.state = &State{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	st := &State{}
	if err := yaml.Unmarshal(data, st); err != nil {
		return fmt.Errorf("invalid state file %s: %w", m.statePath, err)
	}
	m.state = st
	return nil
}

func (m *Manager) save() error {
	if err := os.MkdirAll(m.StateDir, 0o755); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}
	data, err := yaml.Marshal(m.state)
	if err != nil {
		return err
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.statePath)
}

// Get returns the recorded state of a library.
func (m *Manager) Get(name string) LibraryState {
	for _, l := range m.state.Libraries {
		if l.Name == name {
			return l
		}
	}
	return LibraryState{Name: name, Status: StatusPristine}
}

// Libraries returns every recorded library, sorted by name.
func (m *Manager) Libraries() []LibraryState {
	out := append([]LibraryState(nil), m.state.Libraries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns the recorded transitions, oldest first.
func (m *Manager) History() []HistoryEntry {
	return append([]HistoryEntry(nil), m.state.History...)
}

// Record stores a new status for a library and saves the file. cause, if
// not nil, is kept as the failure reason.
func (m *Manager) Record(name string, to Status, patchSum string, cause error) error {
	now := m.now().UTC()
	prev := m.Get(name)

	next := LibraryState{Name: name, Status: to, PatchSum: patchSum, Updated: now}
	if cause != nil {
		next.Error = cause.Error()
	}

	replaced := false
	for i := range m.state.Libraries {
		if m.state.Libraries[i].Name == name {
			m.state.Libraries[i] = next
			replaced = true
			break
		}
	}
	if !replaced {
		m.state.Libraries = append(m.state.Libraries, next)
	}

	m.state.History = append(m.state.History, HistoryEntry{
		Timestamp: now.Unix(),
		Library:   name,
		From:      prev.Status,
		To:        to,
	})
	if n := len(m.state.History); n > maxHistory {
		m.state.History = m.state.History[n-maxHistory:]
	}
	return m.save()
}
