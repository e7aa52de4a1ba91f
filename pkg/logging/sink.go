package logging

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
)

// fileSink fans file-sink records out to the run log and the latest pointer
// and keeps the most recent lines for per-test excerpts. After close it keeps
// the excerpt ring but drops file writes.
type fileSink struct {
	mu     sync.Mutex
	files  []*os.File
	closed bool

	lines   []string
	next    int
	written uint64
	partial []byte
}

func newFileSink(capacity int) *fileSink {
	return &fileSink{lines: make([]string, capacity)}
}

func (s *fileSink) attach(files ...*os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, files...)
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if !s.closed {
		for _, f := range s.files {
			if _, werr := f.Write(p); werr != nil && err == nil {
				err = werr
			}
		}
	}
	s.record(p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *fileSink) record(p []byte) {
	data := append(s.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		s.lines[s.next] = string(data[:i])
		s.next = (s.next + 1) % len(s.lines)
		s.written++
		data = data[i+1:]
	}
	s.partial = append([]byte(nil), data...)
}

func (s *fileSink) mark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *fileSink) excerpt(mark uint64, n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || mark >= s.written {
		return nil
	}
	available := s.written - mark
	if capacity := uint64(len(s.lines)); available > capacity {
		available = capacity
	}
	if uint64(n) < available {
		available = uint64(n)
	}

	out := make([]string, 0, available)
	start := (s.next - int(available) + len(s.lines)) % len(s.lines)
	for i := 0; i < int(available); i++ {
		out = append(out, s.lines[(start+i)%len(s.lines)])
	}
	return out
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, f := range s.files {
		if err := f.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}

var _ io.Writer = (*fileSink)(nil)
