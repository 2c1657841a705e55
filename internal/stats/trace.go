package stats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// A poll trace records the timing of every poll outcome (never pixels), for
// offline tuning of the arrival predictor.
const traceMagic = "FBMTRACE"

// Record kinds.
const (
	KindDuplicate byte = 0
	KindNewFrame  byte = 1
)

const traceRecordSize = 13 // t_ns uint64 + kind uint8 + elapsed_ns uint32

type TraceRecord struct {
	Time    time.Time
	Kind    byte
	Elapsed time.Duration
}

type TraceWriter struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 64*1024)
	if _, err := w.WriteString(traceMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &TraceWriter{f: f, w: w}, nil
}

func (t *TraceWriter) Record(kind byte, at time.Time, elapsed time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return fmt.Errorf("trace writer is closed")
	}
	var rec [traceRecordSize]byte
	binary.LittleEndian.PutUint64(rec[:8], uint64(at.UnixNano()))
	rec[8] = kind
	binary.LittleEndian.PutUint32(rec[9:13], uint32(elapsed))
	if _, err := t.w.Write(rec[:]); err != nil {
		return err
	}
	return nil
}

func (t *TraceWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	return t.w.Flush()
}

func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	if err := t.w.Flush(); err != nil {
		_ = t.f.Close()
		t.w = nil
		return err
	}
	err := t.f.Close()
	t.w = nil
	return err
}

type TraceReader struct {
	r *bufio.Reader
}

func NewTraceReader(r io.Reader) (*TraceReader, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(traceMagic))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("read trace magic: %w", err)
	}
	if string(header) != traceMagic {
		return nil, fmt.Errorf("unexpected trace magic %q", string(header))
	}
	return &TraceReader{r: br}, nil
}

// Next returns the following record, or io.EOF at a clean end of file.
func (t *TraceReader) Next() (TraceRecord, error) {
	var rec [traceRecordSize]byte
	if _, err := io.ReadFull(t.r, rec[:]); err != nil {
		if err == io.EOF {
			return TraceRecord{}, io.EOF
		}
		return TraceRecord{}, fmt.Errorf("read trace record: %w", err)
	}
	return TraceRecord{
		Time:    time.Unix(0, int64(binary.LittleEndian.Uint64(rec[:8]))),
		Kind:    rec[8],
		Elapsed: time.Duration(binary.LittleEndian.Uint32(rec[9:13])),
	}, nil
}
