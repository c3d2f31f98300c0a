package logging

import (
	"bytes"
	"sync"
)

// Writer adapts a Logger to io.Writer, emitting one log message per line. This is how
// net/http's ErrorLog output ends up in the leveled loggers.
type Writer struct {
	logger Logger
	buf    []byte
	lock   sync.Mutex
}

func NewWriter(logger Logger) *Writer {
	return &Writer{logger: logger}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := w.buf[:i]; len(line) > 0 {
			w.logger.Printf("%s", line)
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
