// Package cluster models groups of sequence records produced by one
// clustering round and reads them from the membership stream format.
package cluster

import (
	"fmt"
	"strconv"
	"strings"
)

// Flag tags a cluster whose membership needs human attention.
type Flag string

const (
	FlagChlrMito Flag = "ChlrMito"
	FlagOutlier  Flag = "Outlier"
	FlagNoMatch  Flag = "NoMatch"
	FlagExcluded Flag = "Excluded"
)

// Sentinel representative taxonomies.
const (
	NoMatch  = "NoMatch"
	Excluded = "Excluded"
)

// RankSep separates rank tokens in a taxonomy path.
const RankSep = ";"

// Member is one sequence record of a cluster.
type Member struct {
	Raw       string // line exactly as read
	Accession string
	Taxonomy  string
	Lineage   string // previous-round cluster label, loop format only
}

// Cluster is a group of members sharing similarity at one identity level.
// Member order is the order read and is never changed.
type Cluster struct {
	Label          string
	Members        []Member
	Representative string
	Flags          []Flag
}

// Taxonomies returns every member's taxonomy path in member order.
func (c Cluster) Taxonomies() []string {
	out := make([]string, len(c.Members))
	for i, m := range c.Members {
		out[i] = m.Taxonomy
	}
	return out
}

// RawLines returns every member's raw line in member order.
func (c Cluster) RawLines() []string {
	out := make([]string, len(c.Members))
	for i, m := range c.Members {
		out[i] = m.Raw
	}
	return out
}

// Lineages returns the distinct previous-round labels carried by the
// members, in first-seen order.
func (c Cluster) Lineages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range c.Members {
		if m.Lineage == "" || seen[m.Lineage] {
			continue
		}
		seen[m.Lineage] = true
		out = append(out, m.Lineage)
	}
	return out
}

// Flagged reports whether the cluster carries any flag.
func (c Cluster) Flagged() bool { return len(c.Flags) > 0 }

// HasFlag reports whether f is among the cluster's flags.
func (c Cluster) HasFlag(f Flag) bool {
	for _, x := range c.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so a review step can own the record exclusively.
func (c Cluster) Clone() Cluster {
	out := c
	out.Members = append([]Member(nil), c.Members...)
	out.Flags = append([]Flag(nil), c.Flags...)
	return out
}

// SplitPath splits a taxonomy path into rank tokens.
func SplitPath(taxonomy string) []string {
	return strings.Split(taxonomy, RankSep)
}

// JoinPath joins rank tokens into a taxonomy path.
func JoinPath(ranks []string) string {
	return strings.Join(ranks, RankSep)
}

// JoinFlags renders flags as the comma-joined field of the flag store.
func JoinFlags(flags []Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

// SplitFlags parses a comma-joined flag field.
func SplitFlags(field string) []Flag {
	var out []Flag
	for _, p := range strings.Split(field, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Flag(p))
		}
	}
	return out
}

// FormatLabel builds a cluster label such as MQR_100_7.
func FormatLabel(prefix string, identity, index int) string {
	return fmt.Sprintf("%s_%d_%d", prefix, identity, index)
}

// ParseLabel splits a label into run prefix, identity and index. The prefix
// itself may contain underscores.
func ParseLabel(label string) (prefix string, identity, index int, err error) {
	parts := strings.Split(label, "_")
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("label %q: expected PREFIX_IDENTITY_INDEX", label)
	}
	prefix = strings.Join(parts[:len(parts)-2], "_")
	if prefix == "" {
		return "", 0, 0, fmt.Errorf("label %q: empty prefix", label)
	}
	identity, err = strconv.Atoi(parts[len(parts)-2])
	if err != nil || identity < 0 {
		return "", 0, 0, fmt.Errorf("label %q: invalid identity %q", label, parts[len(parts)-2])
	}
	index, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil || index < 0 {
		return "", 0, 0, fmt.Errorf("label %q: invalid index %q", label, parts[len(parts)-1])
	}
	return prefix, identity, index, nil
}
