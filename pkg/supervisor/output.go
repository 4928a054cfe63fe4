// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/cactus/tai64"
	"github.com/emirpasic/gods/queues/circularbuffer"
	"go.uber.org/zap"
)

// Stream tags used in the output tail and the captured output file.
const (
	StreamOut = "out"
	StreamErr = "err"
)

// maxPartialLine caps a line that never ends, so a binary blob on stdout cannot grow unbounded.
const maxPartialLine = 64 * 1024

// outputCapture keeps the most recent lines of both streams and appends every line to a
// TAI64N-stamped file, the format s6 log files use.
type outputCapture struct {
	mu     sync.Mutex
	tail   *circularbuffer.Queue
	file   *os.File
	writer *bufio.Writer
}

func newOutputCapture(tailLines int, path string) (*outputCapture, error) {
	if tailLines <= 0 {
		tailLines = 1
	}

	c := &outputCapture{tail: circularbuffer.New(tailLines)}

	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}

		c.file = file
		c.writer = bufio.NewWriter(file)
	}

	return c, nil
}

func (c *outputCapture) record(stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tail.Enqueue("[" + stream + "] " + line)

	if c.writer != nil {
		// a failing output file must not stall the process, the line is still logged
		_, _ = c.writer.WriteString(tai64.FormatNano(time.Now()) + " [" + stream + "] " + line + "\n")
	}
}

// Tail returns up to n of the most recent lines, oldest first. n <= 0 returns all kept lines.
func (c *outputCapture) Tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.tail.Values()
	if n > 0 && len(values) > n {
		values = values[len(values)-n:]
	}

	lines := make([]string, 0, len(values))
	for _, v := range values {
		lines = append(lines, v.(string))
	}

	return lines
}

func (c *outputCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}

	flushErr := c.writer.Flush()
	closeErr := c.file.Close()
	c.file = nil
	c.writer = nil

	if flushErr != nil {
		return flushErr
	}

	return closeErr
}

// outputPipe carries one stream of the child. The child holds the write end directly, so
// reaping the child never waits for a descendant that inherited the stream to close it.
type outputPipe struct {
	r, w   *os.File
	writer *lineWriter
}

func newOutputPipe(writer *lineWriter) (*outputPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	return &outputPipe{r: r, w: w, writer: writer}, nil
}

// drain copies the stream until every holder of the write end closed it or abort was called.
func (p *outputPipe) drain() error {
	defer p.r.Close()

	_, err := io.Copy(p.writer, p.r)
	p.writer.Flush()

	if errors.Is(err, os.ErrClosed) {
		return nil
	}

	return err
}

// closeChildEnd releases the parent's copy of the write end once the child has its own.
func (p *outputPipe) closeChildEnd() {
	_ = p.w.Close()
}

// abort unblocks drain while a descendant still holds the write end.
func (p *outputPipe) abort() {
	_ = p.r.Close()
}

// lineWriter turns the raw byte stream of one pipe into log lines.
// Write is only called from the drain goroutine of its pipe.
type lineWriter struct {
	stream  string
	capture *outputCapture
	logger  *zap.SugaredLogger
	partial []byte
}

func newLineWriter(stream string, capture *outputCapture, logger *zap.SugaredLogger) *lineWriter {
	return &lineWriter{stream: stream, capture: capture, logger: logger}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)

	for {
		idx := bytes.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}

		w.emit(w.partial[:idx])
		w.partial = w.partial[idx+1:]
	}

	if len(w.partial) > maxPartialLine {
		w.emit(w.partial)
		w.partial = nil
	}

	return len(p), nil
}

// Flush emits a trailing line without newline. Called once the stream is closed.
func (w *lineWriter) Flush() {
	if len(w.partial) > 0 {
		w.emit(w.partial)
		w.partial = nil
	}
}

func (w *lineWriter) emit(raw []byte) {
	line := strings.TrimRight(stripansi.Strip(string(raw)), "\r")
	if strings.TrimSpace(line) == "" {
		return
	}

	if w.stream == StreamErr {
		w.logger.Warn(line)
	} else {
		w.logger.Info(line)
	}

	w.capture.record(w.stream, line)
}
