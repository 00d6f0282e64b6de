// Package dbstats reports how consistently genus names map onto higher-rank
// taxonomy in a finished database.
package dbstats

import (
	"bufio"
	"io"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/metaxaqr/mqrdb/internal/cluster"
)

// Stats summarises genus consistency.
type Stats struct {
	Total      int // entries read
	NoGenus    int // terminal token starts lowercase
	WithGenus  int
	Duplicates int // entries whose genus disagrees with that genus's most common lineage
	Conflicts  []Conflict
}

// Conflict is a genus seen under more than one higher-rank lineage.
type Conflict struct {
	Genus    string
	Lineages []Lineage // most frequent first
}

// Lineage is one higher-rank path and how often it occurred.
type Lineage struct {
	Path  string
	Count int
}

// Duplicates reads taxonomies from r and counts genus conflicts. FASTA
// header lines (">accession taxonomy") and label<TAB>taxonomy rows are both
// accepted; anything else, such as sequence lines, is ignored.
func Duplicates(r io.Reader) (Stats, error) {
	var st Stats
	byGenus := make(map[string]map[string]int)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		tax, ok := taxonomyOf(strings.TrimRight(sc.Text(), "\r"))
		if !ok {
			continue
		}
		st.Total++
		ranks := cluster.SplitPath(tax)
		words := strings.Fields(ranks[len(ranks)-1])
		if len(words) == 0 || startsLower(words[0]) {
			st.NoGenus++
			continue
		}
		st.WithGenus++
		genus := words[0]
		higher := cluster.JoinPath(ranks[:len(ranks)-1])
		if byGenus[genus] == nil {
			byGenus[genus] = make(map[string]int)
		}
		byGenus[genus][higher]++
	}
	if err := sc.Err(); err != nil {
		return Stats{}, err
	}

	genera := make([]string, 0, len(byGenus))
	for g := range byGenus {
		genera = append(genera, g)
	}
	sort.Strings(genera)

	for _, g := range genera {
		paths := byGenus[g]
		if len(paths) == 1 {
			continue
		}
		c := Conflict{Genus: g}
		total := 0
		for p, n := range paths {
			c.Lineages = append(c.Lineages, Lineage{Path: p, Count: n})
			total += n
		}
		sort.Slice(c.Lineages, func(i, j int) bool {
			if c.Lineages[i].Count != c.Lineages[j].Count {
				return c.Lineages[i].Count > c.Lineages[j].Count
			}
			return c.Lineages[i].Path < c.Lineages[j].Path
		})
		st.Duplicates += total - c.Lineages[0].Count
		st.Conflicts = append(st.Conflicts, c)
	}
	return st, nil
}

func taxonomyOf(line string) (string, bool) {
	if strings.HasPrefix(line, ">") {
		_, tax, ok := strings.Cut(line, " ")
		tax = strings.TrimSpace(tax)
		return tax, ok && tax != ""
	}
	if _, tax, ok := strings.Cut(line, "\t"); ok {
		tax = strings.TrimSpace(tax)
		return tax, tax != ""
	}
	return "", false
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}
