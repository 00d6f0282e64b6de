package review

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/metaxaqr/mqrdb/internal/cluster"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusExited     Status = "exited"    // operator exit; unreviewed clusters dropped
	StatusCompleted  Status = "completed" // every flagged cluster decided
)

var validTransitions = map[Status][]Status{
	StatusInProgress: {StatusExited, StatusCompleted},
}

var terminalStatuses = map[Status]bool{
	StatusExited:    true,
	StatusCompleted: true,
}

// Terminal reports whether a review with this status is finished.
func (s Status) Terminal() bool { return terminalStatuses[s] }

// State is everything a review carries from one cluster to the next.
type State struct {
	AcceptedFlags []cluster.Flag `yaml:"accepted_flags,omitempty"`
	SkipReview    bool           `yaml:"skip_review"`
	ExitReview    bool           `yaml:"exit_review"`
	Cursor        int            `yaml:"cursor"` // flagged clusters decided so far
	Status        Status         `yaml:"status"`
	UpdatedAt     time.Time      `yaml:"updated_at"`

	// Pending is the decision awaiting a y/n answer. It never outlives the
	// cluster it was proposed for and is not persisted.
	Pending *Pending `yaml:"-"`
}

// NewState returns the state of a review that has not started.
func NewState() State {
	return State{Status: StatusInProgress}
}

// FlagAccepted reports whether f was blanket-accepted. Comparison ignores case.
func (st State) FlagAccepted(f cluster.Flag) bool {
	fold := cases.Fold()
	key := fold.String(string(f))
	for _, a := range st.AcceptedFlags {
		if fold.String(string(a)) == key {
			return true
		}
	}
	return false
}

// WithFlag returns a copy of st with f added to the accepted flags.
func (st State) WithFlag(f cluster.Flag) State {
	if st.FlagAccepted(f) {
		return st
	}
	st.AcceptedFlags = append(append([]cluster.Flag(nil), st.AcceptedFlags...), f)
	return st
}

// Transition moves st to next, refusing moves out of a finished review.
func (st *State) Transition(next Status) error {
	if st.Status == next {
		return nil
	}
	if st.Status.Terminal() {
		return fmt.Errorf("review is %s and cannot transition", st.Status)
	}
	for _, a := range validTransitions[st.Status] {
		if a == next {
			st.Status = next
			return nil
		}
	}
	return fmt.Errorf("invalid transition: %s → %s", st.Status, next)
}

// LoadState reads a saved review state. A missing file yields NewState.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read review state: %w", err)
	}
	st := NewState()
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse review state: %w", err)
	}
	if st.Status == "" {
		st.Status = StatusInProgress
	}
	return st, nil
}

// SaveState writes st to path, replacing any previous state in one rename.
func SaveState(path string, st State) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal review state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write review state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write review state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write review state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write review state: %w", err)
	}
	return nil
}
