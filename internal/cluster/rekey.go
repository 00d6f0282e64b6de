package cluster

// Rekey turns loop-format clusters into direct-format ones for the next
// consensus pass. Every member takes the representative taxonomy of the
// previous-round cluster named by its lineage label. Members whose lineage has
// no representative in reprs (excluded earlier) are dropped, and so are
// clusters left without members. The second result lists the dropped
// lineage labels in the order they were met.
func Rekey(clusters []Cluster, reprs map[string]string) ([]Cluster, []string) {
	var (
		out     []Cluster
		dropped []string
		seen    = make(map[string]bool)
	)
	for _, c := range clusters {
		next := Cluster{Label: c.Label}
		for _, m := range c.Members {
			tax, ok := reprs[m.Lineage]
			if !ok {
				if !seen[m.Lineage] {
					seen[m.Lineage] = true
					dropped = append(dropped, m.Lineage)
				}
				continue
			}
			next.Members = append(next.Members, Member{
				Raw:       ">" + m.Accession + " " + tax,
				Accession: m.Accession,
				Taxonomy:  tax,
				Lineage:   m.Lineage,
			})
		}
		if len(next.Members) > 0 {
			out = append(out, next)
		}
	}
	return out, dropped
}
