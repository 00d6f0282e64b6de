package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/flagstore"
	"github.com/metaxaqr/mqrdb/internal/review"
	"github.com/metaxaqr/mqrdb/internal/ui"
)

// terminalInput reads operator lines from a terminal or a piped script.
type terminalInput struct {
	r *bufio.Reader
}

func newTerminalInput(r io.Reader) *terminalInput {
	return &terminalInput{r: bufio.NewReader(r)}
}

func (t *terminalInput) ReadLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, ui.Prompt(prompt))
	line, err := t.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr)
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type terminalView struct{}

func (terminalView) Cluster(c cluster.Cluster, st review.State) {
	var flags []string
	for _, f := range c.Flags {
		name := ui.Flag(string(f))
		if st.FlagAccepted(f) {
			name += ui.Dim(" (accepted)")
		}
		flags = append(flags, name)
	}
	lines := []string{
		ui.Dim("suggested: ") + c.Representative,
		ui.Dim("flags:     ") + strings.Join(flags, ", "),
		"",
	}
	width := len(strconv.Itoa(len(c.Members)))
	for i, m := range c.Members {
		lines = append(lines, fmt.Sprintf("%*d  %s  %s", width, i+1, ui.Dim(m.Accession), m.Taxonomy))
	}
	ui.Panel(c.Label, lines)
}

func (terminalView) Message(kind review.EffectKind, msg string) {
	if msg == "" {
		return
	}
	if kind == review.EffectInvalid {
		ui.Warning(msg)
		return
	}
	ui.Info(msg)
}

func (terminalView) Flags(t *flagstore.Tally, st review.State) {
	var rows [][]string
	for _, f := range t.Flags() {
		accepted := ""
		if st.FlagAccepted(f) {
			accepted = ui.Green("yes")
		}
		rows = append(rows, []string{string(f), strconv.Itoa(t.Count(f)), accepted})
	}
	if len(rows) == 0 {
		ui.EmptyState("No flags at this level.")
		return
	}
	ui.Table([]string{"FLAG", "CLUSTERS", "ACCEPTED"}, rows)
}

func (terminalView) Help() {
	ui.RenderMarkdown(review.HelpText)
}

// writeMembership replaces path with the membership stream of clusters.
func writeMembership(path string, clusters []cluster.Cluster) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := cluster.WriteMembership(tmp, clusters); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
