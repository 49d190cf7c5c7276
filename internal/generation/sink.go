package generation

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muhammadolammi/coverletter/internal/domain"
)

// Sink receives one task's output. Append is called for every fragment in
// arrival order, then exactly one of Fail (zero or one time) followed by
// Close. A sink is written by a single task goroutine; implementations that
// are also read elsewhere must synchronize themselves.
type Sink interface {
	Append(fragment string)
	Fail(err error)
	Close()
}

// BufferSink accumulates fragments in memory.
type BufferSink struct {
	mu        sync.Mutex
	fragments []string
	err       error
	closed    bool
}

func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (b *BufferSink) Append(fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, fragment)
}

func (b *BufferSink) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *BufferSink) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Fragments returns a copy of the fragments received so far.
func (b *BufferSink) Fragments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.fragments))
	copy(out, b.fragments)
	return out
}

// Text returns the concatenated output.
func (b *BufferSink) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.fragments, "")
}

// Err returns the failure reported to the sink, if any.
func (b *BufferSink) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Closed reports whether the task finished with this sink.
func (b *BufferSink) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// WriterSink writes each fragment straight to W and renders failures as an
// inline error marker. Closing does not close W.
type WriterSink struct {
	W io.Writer

	mu  sync.Mutex
	err error
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{W: w}
}

func (s *WriterSink) Append(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if _, err := io.WriteString(s.W, fragment); err != nil {
		s.err = err
	}
}

func (s *WriterSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.W, "\n\n%s\n", ErrorMarker(err))
}

func (s *WriterSink) Close() {}

// WriteErr returns the first write error, if any.
func (s *WriterSink) WriteErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ErrorMarker is the inline text shown in place of (or after) a failed
// task's output.
func ErrorMarker(err error) string {
	return fmt.Sprintf("[error %s] %s", domain.Code(err), domain.UserMessage(err))
}
