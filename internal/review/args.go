package review

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/consensus"
)

// parseID reads a 1-based member id.
func parseID(s string, n int) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("member id %q is not a number", s)
	}
	if id < 1 || id > n {
		return 0, fmt.Errorf("member id %d out of range 1-%d", id, n)
	}
	return id, nil
}

// parseSelection reads space-separated ids and inclusive a-b ranges.
func parseSelection(args []string, n int) (map[int]bool, error) {
	sel := make(map[int]bool)
	for _, a := range args {
		lo, hi, isRange := strings.Cut(a, "-")
		if !isRange {
			id, err := parseID(a, n)
			if err != nil {
				return nil, err
			}
			sel[id] = true
			continue
		}
		from, err := parseID(lo, n)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", a, err)
		}
		to, err := parseID(hi, n)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", a, err)
		}
		if from > to {
			return nil, fmt.Errorf("range %q is inverted", a)
		}
		for id := from; id <= to; id++ {
			sel[id] = true
		}
	}
	return sel, nil
}

// applyTrim applies a keep suffix: c-<n> drops the last n ranks, s-<n> the
// last n words of the species token. At least one rank or word must remain.
func applyTrim(taxonomy, spec string) (string, error) {
	kind, num, ok := strings.Cut(cases.Fold().String(spec), "-")
	n, err := strconv.Atoi(num)
	if !ok || err != nil || n < 0 {
		return "", fmt.Errorf("trim %q: expected c-<n> or s-<n>", spec)
	}
	ranks := cluster.SplitPath(taxonomy)
	switch kind {
	case "c":
		if n >= len(ranks) {
			return "", fmt.Errorf("trim %q: path has only %d ranks", spec, len(ranks))
		}
		return cluster.JoinPath(ranks[:len(ranks)-n]), nil
	case "s":
		words := len(strings.Fields(ranks[len(ranks)-1]))
		if n >= words {
			return "", fmt.Errorf("trim %q: species has only %d words", spec, words)
		}
		return consensus.TrimSpecies(ranks, words-n), nil
	}
	return "", fmt.Errorf("trim %q: expected c-<n> or s-<n>", spec)
}

// truncateLike cuts paths to the depth of the current suggestion. When the
// suggestion reaches the species rank its word count is applied too. A
// sentinel suggestion leaves the paths whole.
func truncateLike(paths []string, suggestion string) []string {
	if suggestion == "" || suggestion == cluster.NoMatch || suggestion == cluster.Excluded {
		return paths
	}
	ref := cluster.SplitPath(suggestion)
	depth := len(ref)
	words := len(strings.Fields(ref[depth-1]))

	out := make([]string, len(paths))
	for i, p := range paths {
		ranks := cluster.SplitPath(p)
		switch {
		case len(ranks) > depth:
			out[i] = cluster.JoinPath(ranks[:depth])
		case len(ranks) == depth && words > 0:
			out[i] = consensus.TrimSpecies(ranks, words)
		default:
			out[i] = p
		}
	}
	return out
}
