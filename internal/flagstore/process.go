package flagstore

import (
	"fmt"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/consensus"
)

// Source yields clusters one at a time. *cluster.Scanner satisfies it.
type Source interface {
	Next() bool
	Cluster() cluster.Cluster
	Err() error
}

// Summary reports the result of a consensus pass.
type Summary struct {
	Clusters int
	Accepted int
	Flagged  int
	Tally    *Tally
}

// Process resolves every cluster from src and writes it through w. On any
// error w is aborted so no partial output reaches the targets.
func Process(src Source, engine *consensus.Engine, w *Writer) (Summary, error) {
	var n int
	for src.Next() {
		n++
		c := engine.Apply(src.Cluster())
		if err := w.Write(c); err != nil {
			w.Abort()
			return Summary{}, fmt.Errorf("write cluster %s: %w", c.Label, err)
		}
	}
	if err := src.Err(); err != nil {
		w.Abort()
		return Summary{}, err
	}
	accepted, flagged := w.Counts()
	if err := w.Close(); err != nil {
		return Summary{}, err
	}
	return Summary{Clusters: n, Accepted: accepted, Flagged: flagged, Tally: w.Tally()}, nil
}
