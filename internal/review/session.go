package review

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/flagstore"
	"github.com/metaxaqr/mqrdb/internal/ui"
)

// Input supplies operator lines. It is the only place a review blocks.
// io.EOF pauses the review so it can be resumed later.
type Input interface {
	ReadLine(prompt string) (string, error)
}

// Sink receives committed decisions.
type Sink interface {
	Commit(d Decision) error
	Exclude(r flagstore.Record) error
}

// View presents the review to the operator.
type View interface {
	Cluster(c cluster.Cluster, st State)
	Message(kind EffectKind, msg string)
	Flags(t *flagstore.Tally, st State)
	Help()
}

// Summary counts what a Run did.
type Summary struct {
	Reviewed int // decided at a prompt
	Auto     int // accepted without prompting
	Excluded int
	Skipped  int // decided by an earlier run
	Dropped  int // left unreviewed after exit
}

// Session drives an Interpreter over the flagged clusters of one level.
type Session struct {
	interp *Interpreter
	view   View
	tally  *flagstore.Tally

	// StatePath, when set, receives the state after every decision.
	StatePath string
	// Decided lists labels that already have a decision; they are skipped.
	Decided map[string]bool
	// ExcludeAll excludes every cluster without prompting.
	ExcludeAll bool

	state State
}

// NewSession returns a Session starting from st.
func NewSession(interp *Interpreter, view View, tally *flagstore.Tally, st State) *Session {
	if tally == nil {
		tally = flagstore.NewTally()
	}
	st.Pending = nil
	return &Session{interp: interp, view: view, tally: tally, state: st}
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Run reviews records in order. It returns when every record is decided,
// the operator exits, or in reports io.EOF; the state's Status tells which.
func (s *Session) Run(records []flagstore.Record, in Input, sink Sink) (Summary, error) {
	var sum Summary
	if s.state.Status.Terminal() {
		return sum, fmt.Errorf("review is %s", s.state.Status)
	}

	for i, rec := range records {
		if s.Decided[rec.Label] {
			sum.Skipped++
			continue
		}
		if s.state.ExitReview {
			sum.Dropped = s.undecided(records[i:])
			break
		}

		if s.ExcludeAll {
			if err := s.decide(sink, rec, Decision{Label: rec.Label, Taxonomy: cluster.Excluded, Excluded: true}); err != nil {
				return sum, err
			}
			sum.Excluded++
			continue
		}

		c := rec.Cluster()
		if AutoDecision(s.state, c) {
			if err := s.decide(sink, rec, Decision{Label: c.Label, Taxonomy: c.Representative, Auto: true}); err != nil {
				return sum, err
			}
			sum.Auto++
			continue
		}

		d, err := s.review(c, in)
		if errors.Is(err, io.EOF) {
			return sum, s.save()
		}
		if err != nil {
			return sum, err
		}
		if d == nil {
			sum.Dropped = s.undecided(records[i:])
			break
		}
		if err := s.decide(sink, rec, *d); err != nil {
			return sum, err
		}
		if d.Excluded {
			sum.Excluded++
		} else {
			sum.Reviewed++
		}
	}

	next := StatusCompleted
	if s.state.ExitReview {
		next = StatusExited
	}
	if err := s.state.Transition(next); err != nil {
		return sum, err
	}
	return sum, s.save()
}

// review prompts until c is decided. A nil decision means the operator exited.
func (s *Session) review(c cluster.Cluster, in Input) (*Decision, error) {
	s.view.Cluster(c, s.state)
	prompt := promptFor(c)
	for {
		line, err := in.ReadLine(prompt)
		if err != nil {
			return nil, err
		}
		var eff Effect
		accepted := len(s.state.AcceptedFlags)
		s.state, c, eff = s.interp.Step(s.state, c, line)
		ui.Logger.Debug("review step", "label", c.Label, "input", line, "effect", eff.Kind)

		// A flag accepted without deciding this cluster is saved at once.
		if eff.Kind != EffectCommit && len(s.state.AcceptedFlags) != accepted {
			if err := s.save(); err != nil {
				return nil, err
			}
		}

		prompt = promptFor(c)
		switch eff.Kind {
		case EffectCommit:
			return &eff.Decision, nil
		case EffectExit:
			return nil, nil
		case EffectConfirm:
			prompt = eff.Message + " [y/n] "
		case EffectShowFlags:
			s.view.Flags(s.tally, s.state)
		case EffectShowHelp:
			s.view.Help()
		case EffectShowCluster:
			s.view.Cluster(c, s.state)
		default:
			if eff.Message != "" {
				s.view.Message(eff.Kind, eff.Message)
			}
		}
	}
}

func (s *Session) decide(sink Sink, rec flagstore.Record, d Decision) error {
	if d.Excluded {
		if err := sink.Exclude(rec); err != nil {
			return fmt.Errorf("exclude %s: %w", rec.Label, err)
		}
	}
	if err := sink.Commit(d); err != nil {
		return fmt.Errorf("commit %s: %w", d.Label, err)
	}
	s.state.Cursor++
	ui.Logger.Debug("decision", "label", d.Label, "taxonomy", d.Taxonomy, "auto", d.Auto)
	return s.save()
}

func (s *Session) undecided(records []flagstore.Record) int {
	n := 0
	for _, r := range records {
		if !s.Decided[r.Label] {
			n++
		}
	}
	return n
}

func (s *Session) save() error {
	if s.StatePath == "" {
		return nil
	}
	return SaveState(s.StatePath, s.state)
}

func promptFor(c cluster.Cluster) string {
	return c.Label + "> "
}

// FileSink appends decisions to a correction table and exclusions log.
type FileSink struct {
	CorrectionPath string
	ExclusionPath  string
}

// Commit appends one label<TAB>taxonomy line to the correction table.
func (f FileSink) Commit(d Decision) error {
	file, err := os.OpenFile(f.CorrectionPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open correction table: %w", err)
	}
	if err := flagstore.WriteRow(file, flagstore.Row{Label: d.Label, Taxonomy: d.Taxonomy}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Exclude appends r to the exclusions log.
func (f FileSink) Exclude(r flagstore.Record) error {
	return flagstore.AppendExclusion(f.ExclusionPath, r)
}

// DecidedLabels lists the labels present in a correction table. A missing
// table has none.
func DecidedLabels(path string) (map[string]bool, error) {
	out := make(map[string]bool)
	rows, err := flagstore.ReadAccepted(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Label] = true
	}
	return out, nil
}
