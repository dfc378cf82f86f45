package supervisor

import (
	"bytes"
	"sync"
	"time"

	"github.com/hekabrain/watchdog/internal/logbuffer"
)

// linePump buffers raw writes from a child's stdout/stderr pipe and pushes
// complete lines into the log buffer as soon as a newline is seen, so a
// write that splits mid-line across two syscalls never produces a
// truncated log entry.
type linePump struct {
	buf    *logbuffer.Buffer
	source logbuffer.Source

	mu      sync.Mutex
	pending []byte
}

func newLinePump(buf *logbuffer.Buffer, source logbuffer.Source) *linePump {
	return &linePump{buf: buf, source: source}
}

func (lp *linePump) Write(p []byte) (int, error) {
	lp.mu.Lock()
	lp.pending = append(lp.pending, p...)
	var complete []string
	for {
		idx := bytes.IndexByte(lp.pending, '\n')
		if idx < 0 {
			break
		}
		complete = append(complete, string(lp.pending[:idx]))
		lp.pending = lp.pending[idx+1:]
	}
	lp.mu.Unlock()

	now := time.Now()
	for _, line := range complete {
		if line == "" {
			continue
		}
		lp.buf.PushDirect(line, lp.source, now)
	}
	return len(p), nil
}

// Flush pushes any trailing partial line as its own entry. Call once the
// child has exited and no more writes will arrive.
func (lp *linePump) Flush() {
	lp.mu.Lock()
	rem := lp.pending
	lp.pending = nil
	lp.mu.Unlock()
	if len(rem) > 0 {
		lp.buf.PushDirect(string(rem), lp.source, time.Now())
	}
}
