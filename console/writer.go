package console

import (
	"context"
	"io"
	"sync"
)

// WriterSink prints entry bodies, one per line. Warn and above go to the
// error writer.
type WriterSink struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewWriterSink creates a WriterSink. A nil errOut sends everything to out.
func NewWriterSink(out, errOut io.Writer) *WriterSink {
	if errOut == nil {
		errOut = out
	}
	return &WriterSink{out: out, err: errOut}
}

// Emit writes e.Body followed by a newline.
func (s *WriterSink) Emit(_ context.Context, e Entry) error {
	w := s.out
	if e.Level >= LevelWarn {
		w = s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(w, e.Body+"\n")
	return err
}
