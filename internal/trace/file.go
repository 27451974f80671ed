package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FileSink appends events to <dir>/<YYYY-MM-DD>.log, one JSON object per
// line. The file rolls over when an event falls on a new UTC day.
type FileSink struct {
	dir string

	mu   sync.Mutex
	day  string
	file *os.File
	zl   zerolog.Logger
}

// NewFileSink creates the directory if needed. Files are opened lazily.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the directory the sink writes to.
func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) Record(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ts := ev.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotate(ts.Format("2006-01-02")); err != nil {
		return err
	}
	s.zl.Log().
		Str("timestamp", ts.Format(timestampLayout)).
		Str("traceId", ev.TraceID).
		Str("event", string(ev.Kind)).
		Interface("data", ev.Data).
		Send()
	return nil
}

func (s *FileSink) rotate(day string) error {
	if s.file != nil && s.day == day {
		return nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	path := filepath.Join(s.dir, day+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening trace file: %w", err)
	}
	s.file = f
	s.day = day
	s.zl = zerolog.New(f)
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
