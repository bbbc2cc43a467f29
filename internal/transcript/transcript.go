package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Transcript is the ordered, timestamped account of one operation.
type Transcript struct {
	mu      sync.Mutex
	now     func() time.Time
	lines   []string
	observe func(line string)
}

func New() *Transcript {
	return &Transcript{now: time.Now}
}

// NewWithClock is New with an injectable time source.
func NewWithClock(now func() time.Time) *Transcript {
	return &Transcript{now: now}
}

// Observe registers fn to be called with every line added from now on.
func (t *Transcript) Observe(fn func(line string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observe = fn
}

// Add appends one formatted line.
func (t *Transcript) Add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.push(fmt.Sprintf(format, args...))
}

// AddOutput appends captured tool output, one transcript line per non-blank line.
func (t *Transcript) AddOutput(output []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, line := range output {
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.push(line)
	}
}

// Append copies the lines of other onto t, keeping their timestamps.
func (t *Transcript) Append(other *Transcript) {
	lines := other.Lines()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, lines...)
}

// Lines returns a copy of the lines recorded so far.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// String returns the transcript as newline-separated text.
func (t *Transcript) String() string {
	return strings.Join(t.Lines(), "\n")
}

func (t *Transcript) push(msg string) {
	t.lines = append(t.lines, "["+t.now().Format(timeLayout)+"] "+msg)
	if t.observe != nil {
		t.observe(msg)
	}
}
