// Package sdf writes accepted structures as an MDL V2000 SD file, one record
// per structure, flushed as each record is written.
package sdf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/pkg/errors"
)

// RecordTerminator ends every SD record.
const RecordTerminator = "$$$$"

const programName = "hmd"

// Field is one SD data item written after the connection table.
type Field struct {
	Name  string
	Value string
}

// EncodeMolBlock writes the V2000 connection table of m.  All coordinates
// are zero; bond orders are written as stored.  The valence field is set on
// atoms whose implicit hydrogen count a reader would otherwise infer wrongly.
func EncodeMolBlock(w io.Writer, m *molecule.Molecule, title string, stamp time.Time) error {
	atoms := m.Atoms()
	bonds := m.Bonds()
	if len(atoms) > 999 || len(bonds) > 999 {
		return errors.Newf(errors.CodeInvalidParam, "V2000 supports at most 999 atoms and bonds, got %d/%d",
			len(atoms), len(bonds))
	}

	bw := &errWriter{w: w}
	bw.printf("%s\n", title)
	bw.printf("  %-8s%s2D\n", programName, stamp.Format("0102061504"))
	bw.printf("\n")
	bw.printf("%3d%3d  0  0  0  0  0  0  0  0999 V2000\n", len(atoms), len(bonds))
	for i, a := range atoms {
		bw.printf("%10.4f%10.4f%10.4f %-3s 0  0  0  0  0%3d  0  0  0  0  0  0\n",
			0.0, 0.0, 0.0, a.Symbol, valenceField(a, m.OrderSum(i)))
	}
	for _, b := range bonds {
		bw.printf("%3d%3d%3d  0  0  0  0\n", b.A+1, b.B+1, b.Order)
	}
	bw.printf("M  END\n")
	return bw.err
}

// defaultValences is the neutral-atom valence model V2000 readers apply when
// the valence field is 0.
var defaultValences = map[string][]int{
	"C":  {4},
	"N":  {3},
	"O":  {2},
	"S":  {2, 4, 6},
	"P":  {3, 5},
	"F":  {1},
	"Cl": {1, 3, 5, 7},
	"Br": {1, 3, 5, 7},
	"I":  {1, 3, 5, 7},
	"H":  {1},
}

// valenceField returns the vvv column for a: 0 when the reader's default
// model yields a.ImplicitH from the explicit bond order sum, otherwise the
// total valence, with 15 standing for zero.
func valenceField(a molecule.Atom, explicit int) int {
	implied := 0
	for _, v := range defaultValences[a.Symbol] {
		if v >= explicit {
			implied = v - explicit
			break
		}
	}
	if implied == a.ImplicitH {
		return 0
	}
	if total := explicit + a.ImplicitH; total > 0 {
		return total
	}
	return 15
}

// EncodeRecord writes a full SD record: connection table, data items and the
// terminator.
func EncodeRecord(w io.Writer, m *molecule.Molecule, title string, stamp time.Time, fields ...Field) error {
	if err := EncodeMolBlock(w, m, title, stamp); err != nil {
		return err
	}
	bw := &errWriter{w: w}
	for _, f := range fields {
		bw.printf("> <%s>\n%s\n\n", f.Name, f.Value)
	}
	bw.printf("%s\n", RecordTerminator)
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writer: generation.Sink backed by a file
// ─────────────────────────────────────────────────────────────────────────────

// Writer appends structures to an SD stream.  It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	out    *bufio.Writer
	closer io.Closer
	path   string
	count  int64
	now    func() time.Time
}

var _ generation.Sink = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the header time stamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// NewWriter wraps an io.Writer.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	sw := &Writer{out: bufio.NewWriter(w), now: time.Now}
	if c, ok := w.(io.Closer); ok {
		sw.closer = c
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Create creates (or truncates) dir/fileName, creating dir when missing.
func Create(dir, fileName string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeSinkWrite, "failed to create output directory").WithDetail(dir)
	}
	path := filepath.Join(dir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSinkWrite, "failed to create output file").WithDetail(path)
	}
	w := NewWriter(f, opts...)
	w.path = path
	return w, nil
}

// Path returns the output file path, empty for stream writers.
func (w *Writer) Path() string { return w.path }

// Count returns the number of records written.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Write implements generation.Sink.  The record is flushed before returning
// so that every emitted structure survives an interrupted run.
func (w *Writer) Write(_ context.Context, s generation.Structure) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	title := s.Molecule.Formula()
	fields := []Field{
		{Name: "HMD_SEQ", Value: strconv.FormatInt(s.Seq, 10)},
		{Name: "HMD_IDENTITY", Value: s.Identity},
	}
	if s.RunID != "" {
		fields = append(fields, Field{Name: "HMD_RUN_ID", Value: s.RunID})
	}
	if err := EncodeRecord(w.out, s.Molecule, title, w.now(), fields...); err != nil {
		return errors.Wrap(err, errors.CodeSinkWrite, "failed to encode SD record")
	}
	if err := w.out.Flush(); err != nil {
		return errors.Wrap(err, errors.CodeSinkWrite, "failed to flush SD record")
	}
	w.count++
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.out.Flush(); err != nil {
		return errors.Wrap(err, errors.CodeSinkWrite, "failed to flush SD file")
	}
	if w.closer != nil {
		c := w.closer
		w.closer = nil
		return c.Close()
	}
	return nil
}
