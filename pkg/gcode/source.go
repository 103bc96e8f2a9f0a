package gcode

import (
	"bufio"
	"io"
	"os"

	"github.com/matthewSorensen/printipi/pkg/log"
)

// Source is a FIFO stream of command lines with a reply path back to
// the originator. Sources are compared by handle identity when the
// interpreter pops its stack.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// ReadLine returns the next pending line without blocking. ok is
	// false when no line is ready.
	ReadLine() (line string, ok bool)

	// Exhausted reports that the stream has ended and every buffered
	// line has been consumed.
	Exhausted() bool

	// Reply writes a response to the originator.
	Reply(resp Response)

	// Close releases the underlying stream.
	Close() error
}

// LineSource adapts a Reader (plus optional reply Writer) into a
// Source. A reader goroutine feeds a buffered channel so ReadLine never
// blocks the interpreter.
type LineSource struct {
	name   string
	lines  chan string
	out    io.Writer
	closer io.Closer
	logger *log.Logger

	// Interpreter-side view of the stream; only the consuming
	// goroutine touches these.
	pending *string
	ended   bool
}

// NewLineSource starts the reader goroutine over r. out may be nil for
// reply-less sources such as G-code files.
func NewLineSource(name string, r io.Reader, out io.Writer, closer io.Closer) *LineSource {
	s := &LineSource{
		name:   name,
		lines:  make(chan string, 16),
		out:    out,
		closer: closer,
		logger: log.GetLogger("gcode"),
	}
	go s.readLoop(r)
	return s
}

func (s *LineSource) readLoop(r io.Reader) {
	defer close(s.lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("%s: read error: %v", s.name, err)
	}
}

// Name identifies the source.
func (s *LineSource) Name() string {
	return s.name
}

// poll moves at most one line from the reader channel into the pending
// slot and notes end-of-stream.
func (s *LineSource) poll() {
	if s.pending != nil || s.ended {
		return
	}
	select {
	case line, open := <-s.lines:
		if !open {
			s.ended = true
			return
		}
		s.pending = &line
	default:
	}
}

// ReadLine returns a pending line without blocking.
func (s *LineSource) ReadLine() (string, bool) {
	s.poll()
	if s.pending == nil {
		return "", false
	}
	line := *s.pending
	s.pending = nil
	return line, true
}

// Exhausted reports whether the stream ended and drained.
func (s *LineSource) Exhausted() bool {
	s.poll()
	return s.ended && s.pending == nil
}

// Reply writes the rendered response followed by a newline.
func (s *LineSource) Reply(resp Response) {
	if resp.IsNull() {
		return
	}
	if s.out == nil {
		s.logger.Debug("%s: %s", s.name, resp.String())
		return
	}
	if _, err := io.WriteString(s.out, resp.String()+"\n"); err != nil {
		s.logger.Warn("%s: reply failed: %v", s.name, err)
	}
}

// Close releases the underlying stream; the reader goroutine ends on
// its next read.
func (s *LineSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// OpenFile opens a G-code file source for M32.
func OpenFile(path string) (*LineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewLineSource(path, f, nil, f), nil
}

// Stdio returns a source reading commands from stdin and replying on
// stdout.
func Stdio() *LineSource {
	return NewLineSource("stdio", os.Stdin, os.Stdout, nil)
}
