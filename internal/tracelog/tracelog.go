// Package tracelog records raw Serial API frames to a CBOR file and reads
// them back for link diagnostics.
package tracelog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"zwave-go-home/internal/serialapi"
)

// Record is one traced frame.
type Record struct {
	Timestamp time.Time           `cbor:"1,keyasint"`
	Direction serialapi.Direction `cbor:"2,keyasint"`
	Raw       []byte              `cbor:"3,keyasint"`
	Error     string              `cbor:"4,keyasint,omitempty"`
}

// Frame decodes the recorded bytes.
func (r Record) Frame() (*serialapi.Frame, error) {
	return serialapi.Decode(r.Raw)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("tracelog: cbor encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("tracelog: cbor decoder mode: %v", err))
	}
}

// FileTracer appends records to a file. It is safe for concurrent use.
type FileTracer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	now     func() time.Time
}

// Open creates or appends to the trace file at path.
func Open(path string) (*FileTracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tracelog: open %s: %w", path, err)
	}
	return &FileTracer{file: f, encoder: encMode.NewEncoder(f), now: time.Now}, nil
}

// Trace writes one record. Encoding errors are dropped; tracing never
// disturbs the link.
func (t *FileTracer) Trace(dir serialapi.Direction, raw []byte, err error) {
	rec := Record{Timestamp: t.now(), Direction: dir, Raw: append([]byte(nil), raw...)}
	if err != nil {
		rec.Error = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	_ = t.encoder.Encode(rec)
}

// Close closes the file. Later Trace calls are ignored.
func (t *FileTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.file.Close()
}

var _ serialapi.Tracer = (*FileTracer)(nil)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Direction serialapi.Direction
	// Function matches the decoded function id; records that do not decode
	// never match a non-nil Function.
	Function  *serialapi.Function
	TimeStart time.Time
	TimeEnd   time.Time
	// ErrorsOnly keeps only records traced with an error.
	ErrorsOnly bool
}

func (f *Filter) matches(r Record) bool {
	if f.Direction != "" && r.Direction != f.Direction {
		return false
	}
	if !f.TimeStart.IsZero() && r.Timestamp.Before(f.TimeStart) {
		return false
	}
	if !f.TimeEnd.IsZero() && !r.Timestamp.Before(f.TimeEnd) {
		return false
	}
	if f.ErrorsOnly && r.Error == "" {
		return false
	}
	if f.Function != nil {
		fr, err := r.Frame()
		if err != nil || fr.Function != *f.Function {
			return false
		}
	}
	return true
}

// Reader iterates over a trace file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path and returns records matching filter.
func NewReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracelog: open %s: %w", path, err)
	}
	return &Reader{file: f, decoder: decMode.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching record, or io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("tracelog: decode: %w", err)
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
