// Package review implements the operator review of flagged clusters as a
// pure command interpreter plus a thin driver that feeds it lines of input.
package review

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/consensus"
)

// EffectKind says what the driver should do after a step.
type EffectKind int

const (
	EffectNone      EffectKind = iota // stay on the cluster, maybe print Message
	EffectInvalid                     // command rejected, nothing changed
	EffectConfirm                     // a y/n answer is awaited
	EffectCommit                      // Decision is final, move to the next cluster
	EffectShowFlags                   // print flag counts
	EffectShowHelp                    // print the command reference
	EffectShowCluster                 // present the cluster again
	EffectExit                        // stop reviewing, drop the remaining clusters
)

var effectNames = map[EffectKind]string{
	EffectNone:        "none",
	EffectInvalid:     "invalid",
	EffectConfirm:     "confirm",
	EffectCommit:      "commit",
	EffectShowFlags:   "show_flags",
	EffectShowHelp:    "show_help",
	EffectShowCluster: "show_cluster",
	EffectExit:        "exit",
}

func (k EffectKind) String() string {
	if s, ok := effectNames[k]; ok {
		return s
	}
	return fmt.Sprintf("effect(%d)", int(k))
}

// Effect is the outcome of one step.
type Effect struct {
	Kind     EffectKind
	Message  string
	Decision Decision // set for EffectCommit
}

// Decision is the committed outcome for one flagged cluster.
type Decision struct {
	Label    string
	Taxonomy string // cluster.Excluded when excluded
	Excluded bool
	Auto     bool // accepted without prompting
}

type action int

const (
	actAccept action = iota
	actAcceptAll
	actAcceptFlag
	actOverride
	actExclude
	actExit
)

// Pending is a proposed decision awaiting confirmation.
type Pending struct {
	Question  string
	action    action
	candidate string
	flag      cluster.Flag
}

// Interpreter turns operator commands into state transitions. It only reads
// its engine, so one Interpreter can serve any number of sessions.
type Interpreter struct {
	engine *consensus.Engine
}

// NewInterpreter returns an Interpreter that recomputes consensus with engine.
func NewInterpreter(engine *consensus.Engine) *Interpreter {
	return &Interpreter{engine: engine}
}

// AutoDecision reports whether c is accepted without prompting: bulk accept
// is on, or every one of its flags has been blanket-accepted.
func AutoDecision(st State, c cluster.Cluster) bool {
	if st.SkipReview {
		return true
	}
	if len(c.Flags) == 0 {
		return false
	}
	for _, f := range c.Flags {
		if !st.FlagAccepted(f) {
			return false
		}
	}
	return true
}

// Step applies one line of operator input to the cluster under review.
// Invalid input never changes st or c.
func (in *Interpreter) Step(st State, c cluster.Cluster, input string) (State, cluster.Cluster, Effect) {
	if st.Pending != nil {
		return in.answer(st, c, input)
	}

	fields := strings.Fields(input)
	if len(fields) == 0 {
		return st, c, Effect{Kind: EffectInvalid, Message: "empty command, type 'help' for the command list"}
	}
	fold := cases.Fold()
	args := fields[1:]

	switch fold.String(fields[0]) {
	case "accept":
		return in.accept(st, c, args)
	case "keep":
		return in.keep(st, c, args)
	case "remove":
		return in.remove(st, c, args)
	case "manual":
		text := strings.TrimSpace(strings.TrimSpace(input)[len(fields[0]):])
		if text == "" {
			return st, c, invalid("usage: manual <taxonomy>")
		}
		if strings.IndexFunc(text, unicode.IsControl) >= 0 {
			return st, c, invalid("manual taxonomy must not contain tabs or other control characters")
		}
		return propose(st, c, &Pending{
			Question:  fmt.Sprintf("Use %q for %s?", text, c.Label),
			action:    actOverride,
			candidate: text,
		})
	case "exclude":
		if len(args) > 0 {
			return st, c, invalid("usage: exclude")
		}
		return propose(st, c, &Pending{
			Question: fmt.Sprintf("Exclude %s from the database?", c.Label),
			action:   actExclude,
		})
	case "flags":
		return st, c, Effect{Kind: EffectShowFlags}
	case "help":
		return st, c, Effect{Kind: EffectShowHelp}
	case "show":
		return st, c, Effect{Kind: EffectShowCluster}
	case "exit":
		return propose(st, c, &Pending{
			Question: "Exit the review? Clusters not yet reviewed will not be written",
			action:   actExit,
		})
	}
	return st, c, invalid(fmt.Sprintf("unknown command %q, type 'help' for the command list", fields[0]))
}

func (in *Interpreter) accept(st State, c cluster.Cluster, args []string) (State, cluster.Cluster, Effect) {
	fold := cases.Fold()
	switch {
	case len(args) == 0:
		return propose(st, c, &Pending{
			Question: fmt.Sprintf("Accept %s for %s?", c.Representative, c.Label),
			action:   actAccept,
		})
	case len(args) == 1 && fold.String(args[0]) == "all":
		return propose(st, c, &Pending{
			Question: "Accept the current suggestion for this and every remaining cluster?",
			action:   actAcceptAll,
		})
	}
	if fold.String(args[0]) == "flag" {
		args = args[1:]
	}
	if len(args) == 0 {
		return st, c, invalid("usage: accept flag <flag>")
	}
	f := canonicalFlag(c, strings.Join(args, " "))
	return propose(st, c, &Pending{
		Question: fmt.Sprintf("Accept every cluster flagged only with accepted flags, adding %s?", f),
		action:   actAcceptFlag,
		flag:     f,
	})
}

func (in *Interpreter) keep(st State, c cluster.Cluster, args []string) (State, cluster.Cluster, Effect) {
	if len(args) < 1 || len(args) > 2 {
		return st, c, invalid("usage: keep <id> [c-<n>|s-<n>]")
	}
	id, err := parseID(args[0], len(c.Members))
	if err != nil {
		return st, c, invalid(err.Error())
	}
	candidate := c.Members[id-1].Taxonomy
	if len(args) == 2 {
		candidate, err = applyTrim(candidate, args[1])
		if err != nil {
			return st, c, invalid(err.Error())
		}
	}
	return propose(st, c, &Pending{
		Question:  fmt.Sprintf("Use %s for %s?", candidate, c.Label),
		action:    actOverride,
		candidate: candidate,
	})
}

func (in *Interpreter) remove(st State, c cluster.Cluster, args []string) (State, cluster.Cluster, Effect) {
	if len(args) == 0 {
		return st, c, invalid("usage: remove <id|a-b>...")
	}
	drop, err := parseSelection(args, len(c.Members))
	if err != nil {
		return st, c, invalid(err.Error())
	}
	var rest []string
	for i, m := range c.Members {
		if !drop[i+1] {
			rest = append(rest, m.Taxonomy)
		}
	}
	if len(rest) == 0 {
		return st, c, invalid("cannot remove every member")
	}

	rep, outlier, ok := in.engine.Consensus(truncateLike(rest, c.Representative))
	if !ok {
		return st, c, Effect{Kind: EffectNone, Message: "no consensus among the remaining members"}
	}
	q := fmt.Sprintf("Remaining members agree on %s. Use it for %s?", rep, c.Label)
	if outlier {
		q = fmt.Sprintf("Remaining members agree on %s by majority. Use it for %s?", rep, c.Label)
	}
	return propose(st, c, &Pending{Question: q, action: actOverride, candidate: rep})
}

func (in *Interpreter) answer(st State, c cluster.Cluster, input string) (State, cluster.Cluster, Effect) {
	p := st.Pending
	switch cases.Fold().String(strings.TrimSpace(input)) {
	case "y", "yes":
	case "n", "no":
		st.Pending = nil
		return st, c, Effect{Kind: EffectNone, Message: "cancelled"}
	default:
		return st, c, Effect{Kind: EffectConfirm, Message: p.Question}
	}

	st.Pending = nil
	switch p.action {
	case actAccept:
		return st, c, commit(c, false)
	case actAcceptAll:
		st.SkipReview = true
		return st, c, commit(c, false)
	case actAcceptFlag:
		st = st.WithFlag(p.flag)
		if AutoDecision(st, c) {
			return st, c, commit(c, false)
		}
		return st, c, Effect{Kind: EffectNone, Message: fmt.Sprintf("flag %s accepted", p.flag)}
	case actOverride:
		c.Representative = p.candidate
		return st, c, commit(c, false)
	case actExclude:
		c.Representative = cluster.Excluded
		return st, c, commit(c, true)
	case actExit:
		st.ExitReview = true
		return st, c, Effect{Kind: EffectExit}
	}
	return st, c, invalid("unknown pending decision")
}

func propose(st State, c cluster.Cluster, p *Pending) (State, cluster.Cluster, Effect) {
	st.Pending = p
	return st, c, Effect{Kind: EffectConfirm, Message: p.Question}
}

func commit(c cluster.Cluster, excluded bool) Effect {
	return Effect{
		Kind:     EffectCommit,
		Decision: Decision{Label: c.Label, Taxonomy: c.Representative, Excluded: excluded},
	}
}

func invalid(msg string) Effect {
	return Effect{Kind: EffectInvalid, Message: msg}
}

// canonicalFlag maps operator text onto a known flag spelling when one
// matches ignoring case, and keeps the text as given otherwise.
func canonicalFlag(c cluster.Cluster, text string) cluster.Flag {
	fold := cases.Fold()
	key := fold.String(text)
	known := append(append([]cluster.Flag(nil), c.Flags...),
		cluster.FlagOutlier, cluster.FlagChlrMito, cluster.FlagNoMatch)
	for _, f := range known {
		if fold.String(string(f)) == key {
			return f
		}
	}
	return cluster.Flag(text)
}
