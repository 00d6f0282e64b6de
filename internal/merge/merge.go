// Package merge folds review decisions back into the accepted
// representative table, producing the final table for one identity level.
package merge

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metaxaqr/mqrdb/internal/cluster"
	"github.com/metaxaqr/mqrdb/internal/flagstore"
	"github.com/metaxaqr/mqrdb/internal/ui"
)

// Inputs names the files a merge reads. All three must exist.
type Inputs struct {
	Accepted    string
	Flagged     string
	Corrections string
}

// Summary counts what a merge wrote.
type Summary struct {
	Written   int // lines in the final table
	Accepted  int // accepted rows passed through
	Corrected int // rows taken from a correction
	Excluded  int // clusters left out as excluded
	Unreached int // flagged clusters without a decision
	Unknown   int // corrections naming no known cluster, ignored
}

// Merge writes the final table to w. Accepted rows come first in their
// original order, replaced by a correction for the same label when there is
// one and left out when that correction is Excluded. Decisions for flagged
// clusters follow in decision order. The latest decision for a label wins.
func Merge(in Inputs, w io.Writer) (Summary, error) {
	var sum Summary

	accepted, err := flagstore.ReadAccepted(in.Accepted)
	if err != nil {
		return sum, err
	}
	_, flagged, err := flagstore.ReadFlagged(in.Flagged)
	if err != nil {
		return sum, err
	}
	corrections, err := flagstore.ReadAccepted(in.Corrections)
	if err != nil {
		return sum, fmt.Errorf("corrections: %w", err)
	}

	latest := make(map[string]string, len(corrections))
	var order []string
	for _, r := range corrections {
		if _, seen := latest[r.Label]; !seen {
			order = append(order, r.Label)
		}
		latest[r.Label] = r.Taxonomy
	}

	bw := bufio.NewWriter(w)
	inAccepted := make(map[string]bool, len(accepted))
	for _, r := range accepted {
		inAccepted[r.Label] = true
		tax, corrected := latest[r.Label]
		switch {
		case !corrected:
			sum.Accepted++
		case tax == cluster.Excluded:
			sum.Excluded++
			continue
		default:
			sum.Corrected++
			r.Taxonomy = tax
		}
		if err := flagstore.WriteRow(bw, r); err != nil {
			return sum, err
		}
		sum.Written++
	}

	isFlagged := make(map[string]bool, len(flagged))
	for _, r := range flagged {
		isFlagged[r.Label] = true
		if _, ok := latest[r.Label]; !ok {
			sum.Unreached++
		}
	}

	for _, label := range order {
		if inAccepted[label] {
			continue
		}
		if !isFlagged[label] {
			sum.Unknown++
			ui.Logger.Warn("ignoring correction for unknown cluster", "label", label)
			continue
		}
		tax := latest[label]
		if tax == cluster.Excluded {
			sum.Excluded++
			continue
		}
		if err := flagstore.WriteRow(bw, flagstore.Row{Label: label, Taxonomy: tax}); err != nil {
			return sum, err
		}
		sum.Corrected++
		sum.Written++
	}
	return sum, bw.Flush()
}

// MergeFiles runs Merge into outPath. The output appears only once it is
// complete, and the inputs are never modified.
func MergeFiles(in Inputs, outPath string) (Summary, error) {
	var buf bytes.Buffer
	sum, err := Merge(in, &buf)
	if err != nil {
		return sum, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return sum, fmt.Errorf("create final table: %w", err)
	}
	defer func() { _ = tmp.Close() }()
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, &buf); err != nil {
		_ = os.Remove(tmpPath)
		return sum, fmt.Errorf("write final table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = os.Remove(tmpPath)
		return sum, fmt.Errorf("write final table: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return sum, fmt.Errorf("move final table into place: %w", err)
	}
	return sum, nil
}
