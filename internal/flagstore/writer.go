// Package flagstore persists the outcome of a consensus pass: an accepted
// representative table, a flagged store prefixed with a flag-count header,
// and the append-only exclusions log written during review.
package flagstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metaxaqr/mqrdb/internal/cluster"
)

// ErrClosed is returned when writing to a Writer after Close or Abort.
var ErrClosed = errors.New("flagstore: writer closed")

// Writer splits clusters into the accepted table and the flagged store.
// Neither target path is touched until Close succeeds.
type Writer struct {
	acceptedPath string
	flaggedPath  string

	accepted  *os.File
	acceptedW *bufio.Writer
	scratch   *os.File
	scratchW  *bufio.Writer
	tally     *Tally
	nAccepted int
	nFlagged  int
	closed    bool
}

// Create opens a Writer. Output is staged in temporary files next to the
// targets.
func Create(acceptedPath, flaggedPath string) (*Writer, error) {
	accepted, err := os.CreateTemp(filepath.Dir(acceptedPath), filepath.Base(acceptedPath)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create accepted table: %w", err)
	}
	scratch, err := os.CreateTemp(filepath.Dir(flaggedPath), filepath.Base(flaggedPath)+".body.tmp-*")
	if err != nil {
		accepted.Close()
		os.Remove(accepted.Name())
		return nil, fmt.Errorf("create flagged scratch file: %w", err)
	}
	return &Writer{
		acceptedPath: acceptedPath,
		flaggedPath:  flaggedPath,
		accepted:     accepted,
		acceptedW:    bufio.NewWriter(accepted),
		scratch:      scratch,
		scratchW:     bufio.NewWriter(scratch),
		tally:        NewTally(),
	}, nil
}

// Write routes c by its flags. Unflagged clusters become a table row;
// flagged ones are staged as a record and their flags counted.
func (w *Writer) Write(c cluster.Cluster) error {
	if w.closed {
		return ErrClosed
	}
	if !c.Flagged() {
		w.nAccepted++
		return WriteRow(w.acceptedW, Row{Label: c.Label, Taxonomy: c.Representative})
	}
	w.nFlagged++
	w.tally.Add(c.Flags...)
	return WriteRecord(w.scratchW, RecordOf(c))
}

// Tally returns the flag counts so far.
func (w *Writer) Tally() *Tally { return w.tally }

// Counts returns how many clusters were accepted and flagged.
func (w *Writer) Counts() (accepted, flagged int) { return w.nAccepted, w.nFlagged }

// Close writes the header and staged records to the flagged store, then
// moves both outputs into place. Both are fully staged before either rename.
// If the flagged store cannot be moved into place, the accepted table just
// moved is removed again so the level never pairs a new table with an old
// flagged store.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	defer os.Remove(w.scratch.Name())
	defer os.Remove(w.accepted.Name())

	if err := finish(w.accepted, w.acceptedW); err != nil {
		w.scratch.Close()
		return fmt.Errorf("write accepted table: %w", err)
	}
	if err := w.scratchW.Flush(); err != nil {
		w.scratch.Close()
		return fmt.Errorf("write flagged records: %w", err)
	}
	flagged, err := w.stageFlagged()
	if err != nil {
		w.scratch.Close()
		return err
	}
	defer os.Remove(flagged)
	if err := w.scratch.Close(); err != nil {
		return fmt.Errorf("close flagged scratch file: %w", err)
	}

	if err := os.Rename(w.accepted.Name(), w.acceptedPath); err != nil {
		return fmt.Errorf("move accepted table into place: %w", err)
	}
	if err := os.Rename(flagged, w.flaggedPath); err != nil {
		os.Remove(w.acceptedPath)
		return fmt.Errorf("move flagged store into place: %w", err)
	}
	return nil
}

// stageFlagged writes the header followed by the staged body to a temp file
// next to the flagged path and returns its name.
func (w *Writer) stageFlagged() (string, error) {
	if _, err := w.scratch.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind flagged scratch file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(w.flaggedPath), filepath.Base(w.flaggedPath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create flagged store: %w", err)
	}
	bw := bufio.NewWriter(tmp)

	if _, err := fmt.Fprintln(bw, w.tally.Header()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write flag header: %w", err)
	}
	if _, err := io.Copy(bw, w.scratch); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy flagged records: %w", err)
	}
	if err := finish(tmp, bw); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write flagged store: %w", err)
	}
	return tmp.Name(), nil
}

// Abort discards everything written so far. The targets are left untouched.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.accepted.Close()
	w.scratch.Close()
	os.Remove(w.accepted.Name())
	os.Remove(w.scratch.Name())
}

// finish flushes, syncs and closes f. f is closed on every path.
func finish(f *os.File, bw *bufio.Writer) error {
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
