package flagstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/metaxaqr/mqrdb/internal/cluster"
)

// HeaderPrefix starts the flag-count header line of a flagged store.
const HeaderPrefix = "#"

// Tally counts flag occurrences, remembering the order flags were first seen.
type Tally struct {
	order  []cluster.Flag
	counts map[cluster.Flag]int
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[cluster.Flag]int)}
}

// Add counts one occurrence of each flag.
func (t *Tally) Add(flags ...cluster.Flag) {
	for _, f := range flags {
		t.addN(f, 1)
	}
}

func (t *Tally) addN(f cluster.Flag, n int) {
	if _, ok := t.counts[f]; !ok {
		t.order = append(t.order, f)
	}
	t.counts[f] += n
}

// Count returns the occurrences of f.
func (t *Tally) Count(f cluster.Flag) int { return t.counts[f] }

// Flags returns every counted flag in first-seen order.
func (t *Tally) Flags() []cluster.Flag {
	return append([]cluster.Flag(nil), t.order...)
}

// Header renders the tally as "#<TAB>flag: count<TAB>...".
func (t *Tally) Header() string {
	var b strings.Builder
	b.WriteString(HeaderPrefix)
	for _, f := range t.order {
		fmt.Fprintf(&b, "\t%s: %d", f, t.counts[f])
	}
	return b.String()
}

// ParseHeader reads a header line written by Header. Flag names are taken
// verbatim, so operator-entered flags survive a round trip.
func ParseHeader(line string) (*Tally, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, HeaderPrefix) {
		return nil, fmt.Errorf("flag header must start with %q: %q", HeaderPrefix, line)
	}
	t := NewTally()
	fields := strings.Split(line, "\t")
	for _, field := range fields[1:] {
		if strings.TrimSpace(field) == "" {
			continue
		}
		i := strings.LastIndex(field, ":")
		if i < 0 {
			return nil, fmt.Errorf("flag header entry %q: expected 'flag: count'", field)
		}
		name := strings.TrimSpace(field[:i])
		n, err := strconv.Atoi(strings.TrimSpace(field[i+1:]))
		if err != nil || name == "" || n < 0 {
			return nil, fmt.Errorf("flag header entry %q: expected 'flag: count'", field)
		}
		t.addN(cluster.Flag(name), n)
	}
	return t, nil
}
