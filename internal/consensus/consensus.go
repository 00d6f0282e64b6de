// Package consensus derives a single representative taxonomy for a cluster
// of taxonomy paths, falling back from species-level agreement to the
// deepest rank at which the members still agree.
package consensus

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/metaxaqr/mqrdb/internal/cluster"
)

// Options holds the engine thresholds. Zero fields take the defaults.
type Options struct {
	MaxSpeciesWords   int     // longest species-token truncation tried first
	RankWindow        int     // number of leaf-most ranks searched by the rank pass
	OutlierMinMembers int     // majority acceptance needs more members than this
	OutlierFraction   float64 // minimum share of the most frequent path
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MaxSpeciesWords:   6,
		RankWindow:        5,
		OutlierMinMembers: 10,
		OutlierFraction:   0.9,
	}
}

// Result is the outcome of resolving one cluster.
type Result struct {
	Representative string
	Flags          []cluster.Flag
}

// Engine resolves representative taxonomies. It holds no state besides its
// options and is safe to reuse.
type Engine struct {
	opts Options
}

// New returns an Engine using opts, filling unset fields from DefaultOptions.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxSpeciesWords <= 0 {
		opts.MaxSpeciesWords = def.MaxSpeciesWords
	}
	if opts.RankWindow <= 0 {
		opts.RankWindow = def.RankWindow
	}
	if opts.OutlierMinMembers <= 0 {
		opts.OutlierMinMembers = def.OutlierMinMembers
	}
	if opts.OutlierFraction <= 0 {
		opts.OutlierFraction = def.OutlierFraction
	}
	return &Engine{opts: opts}
}

// Options returns the effective thresholds.
func (e *Engine) Options() Options { return e.opts }

// Apply resolves c and returns a copy carrying its representative and flags.
func (e *Engine) Apply(c cluster.Cluster) cluster.Cluster {
	r := e.Resolve(c.Taxonomies())
	out := c.Clone()
	out.Representative = r.Representative
	out.Flags = r.Flags
	return out
}

// Resolve computes the representative taxonomy and flags for a cluster's
// taxonomy paths.
func (e *Engine) Resolve(paths []string) Result {
	var res Result

	rep, outlier, ok := e.speciesLevel(paths)
	if !ok {
		rep, outlier, ok = e.rankLevel(paths)
	}
	switch {
	case !ok:
		res.Representative = cluster.NoMatch
		res.Flags = append(res.Flags, cluster.FlagNoMatch)
	case outlier:
		res.Representative = rep
		res.Flags = append(res.Flags, cluster.FlagOutlier)
	default:
		res.Representative = rep
	}

	if chloroplastAndMitochondria(paths) {
		res.Flags = append(res.Flags, cluster.FlagChlrMito)
	}
	return res
}

// Consensus runs the agreement test on one candidate set of paths. Identical
// paths agree outright. Otherwise a large enough set agrees on its most
// frequent path when that path's share reaches the outlier fraction, and
// outlier is reported.
func (e *Engine) Consensus(paths []string) (rep string, outlier bool, ok bool) {
	if len(paths) == 0 {
		return "", false, false
	}
	identical := true
	for _, p := range paths[1:] {
		if p != paths[0] {
			identical = false
			break
		}
	}
	if identical {
		return paths[0], false, true
	}
	if len(paths) <= e.opts.OutlierMinMembers {
		return "", false, false
	}

	top, n := mostFrequent(paths)
	if float64(n)/float64(len(paths)) >= e.opts.OutlierFraction {
		return top, true, true
	}
	return "", false, false
}

func (e *Engine) speciesLevel(paths []string) (string, bool, bool) {
	var named [][]string
	for _, p := range paths {
		ranks := cluster.SplitPath(p)
		if unidentified(ranks[len(ranks)-1]) {
			continue
		}
		named = append(named, ranks)
	}
	if len(named) == 0 {
		return "", false, false
	}

	for words := e.opts.MaxSpeciesWords; words >= 1; words-- {
		cand := make([]string, len(named))
		for i, ranks := range named {
			cand[i] = TrimSpecies(ranks, words)
		}
		rep, outlier, ok := e.Consensus(cand)
		if ok && !Rejected(rep) {
			return rep, outlier, true
		}
	}
	return "", false, false
}

func (e *Engine) rankLevel(paths []string) (string, bool, bool) {
	split := make([][]string, len(paths))
	total := 0
	for i, p := range paths {
		split[i] = cluster.SplitPath(p)
		if len(split[i]) > total {
			total = len(split[i])
		}
	}

	var (
		best        string
		bestOutlier bool
		found       bool
	)
	start := max(0, total-e.opts.RankWindow)
	for depth := start + 1; depth <= total; depth++ {
		var cand []string
		for _, ranks := range split {
			if len(ranks) > depth {
				ranks = ranks[:depth]
			}
			if unidentified(ranks[len(ranks)-1]) {
				continue
			}
			cand = append(cand, cluster.JoinPath(ranks))
		}
		rep, outlier, ok := e.Consensus(cand)
		if !ok || Rejected(rep) {
			break
		}
		best, bestOutlier, found = rep, outlier, true
	}
	return best, bestOutlier, found
}

// TrimSpecies joins ranks with the species (last) token cut to at most
// words words.
func TrimSpecies(ranks []string, words int) string {
	last := len(ranks) - 1
	w := strings.Fields(ranks[last])
	if len(w) > words {
		w = w[:words]
	}
	out := make([]string, 0, len(ranks))
	out = append(out, ranks[:last]...)
	out = append(out, strings.Join(w, " "))
	return cluster.JoinPath(out)
}

// Rejected reports whether a candidate is too vague to represent a cluster:
// it ends in "sp." or "#", or its terminal rank is an environmental sample.
func Rejected(rep string) bool {
	if strings.HasSuffix(rep, "sp.") || strings.HasSuffix(rep, "#") {
		return true
	}
	ranks := cluster.SplitPath(rep)
	return strings.Contains(ranks[len(ranks)-1], "environmental")
}

// unidentified reports whether a rank token is an informal annotation, which
// by convention starts with a lowercase letter.
func unidentified(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(token)
	return unicode.IsLower(r)
}

// mostFrequent returns the most common path and its count; ties go to the
// path seen first.
func mostFrequent(paths []string) (string, int) {
	counts := make(map[string]int, len(paths))
	var (
		top string
		n   int
	)
	for _, p := range paths {
		counts[p]++
	}
	for _, p := range paths {
		if counts[p] > n {
			top, n = p, counts[p]
		}
	}
	return top, n
}

var chloroplastTokens = map[string]bool{
	"Chloroplast":    true,
	"Chloroplastida": true,
}

func chloroplastAndMitochondria(paths []string) bool {
	var chlr, mito bool
	for _, p := range paths {
		for _, tok := range cluster.SplitPath(p) {
			tok = strings.TrimSpace(tok)
			if chloroplastTokens[tok] {
				chlr = true
			}
			if tok == "Mitochondria" {
				mito = true
			}
		}
		if chlr && mito {
			return true
		}
	}
	return false
}
