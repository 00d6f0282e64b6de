package flagstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metaxaqr/mqrdb/internal/cluster"
)

// Record is one flagged cluster as persisted: label, taxonomy, flags and the
// raw member lines.
type Record struct {
	Label          string
	Representative string
	Flags          []cluster.Flag
	Members        []string
}

// Row is one line of a representative table.
type Row struct {
	Label    string
	Taxonomy string
}

// RecordOf captures a cluster for persistence.
func RecordOf(c cluster.Cluster) Record {
	return Record{
		Label:          c.Label,
		Representative: c.Representative,
		Flags:          append([]cluster.Flag(nil), c.Flags...),
		Members:        c.RawLines(),
	}
}

// Cluster rebuilds a cluster from the record. Members that no longer parse
// keep their raw line with empty fields.
func (r Record) Cluster() cluster.Cluster {
	c := cluster.Cluster{
		Label:          r.Label,
		Representative: r.Representative,
		Flags:          append([]cluster.Flag(nil), r.Flags...),
	}
	for _, raw := range r.Members {
		m, _ := cluster.ParseMember(raw)
		c.Members = append(c.Members, m)
	}
	return c
}

// WriteRecord writes the record line, member lines and end marker.
func WriteRecord(w io.Writer, r Record) error {
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.Label, r.Representative, cluster.JoinFlags(r.Flags)); err != nil {
		return err
	}
	for _, m := range r.Members {
		if _, err := fmt.Fprintln(w, m); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, cluster.EndMarker)
	return err
}

// ReadRecords reads records until EOF. If a header line is present it is
// parsed and returned; otherwise the returned Tally is nil.
func ReadRecords(r io.Reader) (*Tally, []Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		tally   *Tally
		records []Record
		cur     *Record
		line    int
	)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if line == 1 && strings.HasPrefix(text, HeaderPrefix) {
			t, err := ParseHeader(text)
			if err != nil {
				return nil, nil, err
			}
			tally = t
			continue
		}
		if cur == nil {
			if strings.TrimSpace(text) == "" {
				continue
			}
			fields := strings.Split(text, "\t")
			if len(fields) != 3 {
				return nil, nil, fmt.Errorf("line %d: expected label<TAB>taxonomy<TAB>flags, got %q", line, text)
			}
			cur = &Record{Label: fields[0], Representative: fields[1], Flags: cluster.SplitFlags(fields[2])}
			continue
		}
		if text == cluster.EndMarker {
			records = append(records, *cur)
			cur = nil
			continue
		}
		cur.Members = append(cur.Members, text)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if cur != nil {
		return nil, nil, fmt.Errorf("record %s: missing %q terminator", cur.Label, cluster.EndMarker)
	}
	return tally, records, nil
}

// ReadFlagged reads a flagged store written by Writer. The header is required.
func ReadFlagged(path string) (*Tally, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open flagged store: %w", err)
	}
	defer f.Close()
	tally, records, err := ReadRecords(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if tally == nil {
		return nil, nil, fmt.Errorf("read %s: missing flag header", path)
	}
	return tally, records, nil
}

// ReadExclusions reads an exclusions log. A missing log holds no records.
func ReadExclusions(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open exclusions log: %w", err)
	}
	defer f.Close()
	_, records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// AppendExclusion appends r to the exclusions log, tagging it Excluded.
// A label the log already holds is not appended again.
func AppendExclusion(path string, r Record) error {
	logged, err := ReadExclusions(path)
	if err != nil {
		return err
	}
	for _, e := range logged {
		if e.Label == r.Label {
			return nil
		}
	}
	r.Flags = append(append([]cluster.Flag(nil), r.Flags...), cluster.FlagExcluded)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open exclusions log: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WriteRecord(bw, r); err != nil {
		f.Close()
		return fmt.Errorf("append exclusion %s: %w", r.Label, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("append exclusion %s: %w", r.Label, err)
	}
	return f.Close()
}

// ReadTable reads label<TAB>taxonomy rows.
func ReadTable(r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var rows []Row
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		label, tax, ok := strings.Cut(text, "\t")
		if !ok || label == "" {
			return nil, fmt.Errorf("line %d: expected label<TAB>taxonomy, got %q", line, text)
		}
		rows = append(rows, Row{Label: label, Taxonomy: tax})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadAccepted reads a representative table file.
func ReadAccepted(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open representative table: %w", err)
	}
	defer f.Close()
	rows, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// WriteRow writes one label<TAB>taxonomy line.
func WriteRow(w io.Writer, r Row) error {
	_, err := fmt.Fprintf(w, "%s\t%s\n", r.Label, r.Taxonomy)
	return err
}
