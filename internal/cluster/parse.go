package cluster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EndMarker terminates a membership stream and each flag store record.
const EndMarker = "end"

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("malformed cluster membership stream")

// FormatError describes a membership stream that cannot be parsed.
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("membership stream: %s", e.Reason)
	}
	return fmt.Sprintf("membership stream line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Is implements errors.Is support.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// ParseOption configures a Scanner.
type ParseOption func(*parseOptions)

type parseOptions struct {
	prefix   string
	identity int
	loop     bool
}

// WithIdentity keys bare numeric label lines as PREFIX_identity_index.
func WithIdentity(prefix string, identity int) ParseOption {
	return func(o *parseOptions) {
		o.prefix = prefix
		o.identity = identity
	}
}

// WithLoopFormat expects member lines to carry the previous round's cluster
// label before a tab: "MQR_100_4<TAB>>acc Bacteria;...".
func WithLoopFormat() ParseOption {
	return func(o *parseOptions) {
		o.loop = true
	}
}

// Scanner reads clusters one at a time from a membership stream.
type Scanner struct {
	sc      *bufio.Scanner
	opts    parseOptions
	line    int
	pending *Cluster
	cur     Cluster
	err     error
	done    bool
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader, opts ...ParseOption) *Scanner {
	options := parseOptions{prefix: "MQR", identity: -1}
	for _, o := range opts {
		o(&options)
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Scanner{sc: sc, opts: options}
}

// Next advances to the next cluster. It returns false at the end marker or
// on error; check Err afterwards.
func (s *Scanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for s.sc.Scan() {
		s.line++
		text := strings.TrimRight(s.sc.Text(), "\r\n")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}

		if trimmed == EndMarker {
			s.done = true
			if err := s.trailing(); err != nil {
				s.err = err
				return false
			}
			return s.emit()
		}

		if !strings.ContainsAny(trimmed, " \t") && !strings.HasPrefix(trimmed, ">") {
			label, err := s.label(trimmed)
			if err != nil {
				s.err = err
				return false
			}
			prev := s.pending
			s.pending = &Cluster{Label: label}
			if prev != nil {
				if len(prev.Members) == 0 {
					s.err = &FormatError{Line: s.line, Text: prev.Label, Reason: "cluster has no members"}
					return false
				}
				s.cur = *prev
				return true
			}
			continue
		}

		if s.pending == nil {
			s.err = &FormatError{Line: s.line, Text: text, Reason: "member line before first cluster label"}
			return false
		}
		m, err := s.member(text)
		if err != nil {
			s.err = err
			return false
		}
		s.pending.Members = append(s.pending.Members, m)
	}
	if err := s.sc.Err(); err != nil {
		s.err = fmt.Errorf("reading membership stream: %w", err)
		return false
	}
	s.err = &FormatError{Line: s.line, Reason: "missing end marker before end of stream"}
	return false
}

// Cluster returns the cluster read by the last successful Next.
func (s *Scanner) Cluster() Cluster { return s.cur }

// Err returns the first error encountered.
func (s *Scanner) Err() error { return s.err }

func (s *Scanner) emit() bool {
	if s.pending == nil {
		return false
	}
	if len(s.pending.Members) == 0 {
		s.err = &FormatError{Line: s.line, Text: s.pending.Label, Reason: "cluster has no members"}
		return false
	}
	s.cur = *s.pending
	s.pending = nil
	return true
}

// trailing rejects anything but blank lines after the end marker.
func (s *Scanner) trailing() error {
	for s.sc.Scan() {
		s.line++
		if t := strings.TrimSpace(s.sc.Text()); t != "" {
			return &FormatError{Line: s.line, Text: t, Reason: "content after end marker"}
		}
	}
	return s.sc.Err()
}

func (s *Scanner) label(text string) (string, error) {
	if idx, err := strconv.Atoi(text); err == nil {
		if s.opts.identity < 0 || idx < 0 {
			return "", &FormatError{Line: s.line, Text: text, Reason: "bare cluster index without a run identity"}
		}
		return FormatLabel(s.opts.prefix, s.opts.identity, idx), nil
	}
	if _, _, _, err := ParseLabel(text); err != nil {
		return "", &FormatError{Line: s.line, Text: text, Reason: "unparseable cluster label"}
	}
	return text, nil
}

func (s *Scanner) member(text string) (Member, error) {
	if s.opts.loop {
		lineage, _, ok := strings.Cut(text, "\t")
		if !ok {
			return Member{Raw: text}, &FormatError{Line: s.line, Text: text, Reason: "loop member line without lineage label"}
		}
		if _, _, _, err := ParseLabel(strings.TrimPrefix(strings.TrimSpace(lineage), ">")); err != nil {
			return Member{Raw: text}, &FormatError{Line: s.line, Text: text, Reason: "unparseable lineage label"}
		}
	}
	m, err := ParseMember(text)
	if err != nil {
		return m, &FormatError{Line: s.line, Text: text, Reason: "member line needs an accession and a taxonomy"}
	}
	return m, nil
}

// Parse reads every cluster of a membership stream.
func Parse(r io.Reader, opts ...ParseOption) ([]Cluster, error) {
	var out []Cluster
	sc := NewScanner(r, opts...)
	for sc.Next() {
		out = append(out, sc.Cluster())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteMembership writes clusters in the stream format Parse reads,
// including the end marker.
func WriteMembership(w io.Writer, clusters []Cluster) error {
	bw := bufio.NewWriter(w)
	for _, c := range clusters {
		fmt.Fprintln(bw, c.Label)
		for _, m := range c.Members {
			fmt.Fprintln(bw, m.Raw)
		}
	}
	fmt.Fprintln(bw, EndMarker)
	return bw.Flush()
}

// LineageMap maps each previous-round label to the label of the cluster it
// was merged into this round.
func LineageMap(clusters []Cluster) map[string]string {
	out := make(map[string]string)
	for _, c := range clusters {
		for _, l := range c.Lineages() {
			out[l] = c.Label
		}
	}
	return out
}

// ParseMember parses a raw member line outside a stream, accepting both the
// direct and the loop format.
func ParseMember(text string) (Member, error) {
	if lineage, rest, ok := strings.Cut(text, "\t"); ok {
		l := strings.TrimPrefix(strings.TrimSpace(lineage), ">")
		if _, _, _, err := ParseLabel(l); err == nil {
			m, err := ParseMember(rest)
			m.Raw = text
			m.Lineage = l
			return m, err
		}
	}
	m := Member{Raw: text}
	body := strings.TrimPrefix(strings.TrimSpace(text), ">")
	i := strings.IndexAny(body, " \t")
	if i <= 0 || strings.TrimSpace(body[i:]) == "" {
		return m, &FormatError{Text: text, Reason: "member line needs an accession and a taxonomy"}
	}
	acc, tax := body[:i], strings.TrimSpace(body[i:])
	m.Accession = acc
	m.Taxonomy = tax
	return m, nil
}
