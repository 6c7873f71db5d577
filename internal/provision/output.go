// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"
	"sync"

	"github.com/rmgprov/rmgprov/internal/pipeline"
)

// outputTailSize bounds how much build output a failed step keeps.
const outputTailSize = 16 << 10

type (
	// tailBuffer keeps the last max bytes written to it.
	tailBuffer struct {
		mu  sync.Mutex
		max int
		buf []byte
	}

	// BuildOutputError is returned when a step's image build fails. It carries
	// the tail of the build output so failures can be classified by what the
	// tools printed.
	BuildOutputError struct {
		Step   pipeline.StepID
		Output string
		Err    error
	}
)

var _ pipeline.ToolOutputError = (*BuildOutputError)(nil)

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func (e *BuildOutputError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Step, e.Err)
}

func (e *BuildOutputError) Unwrap() error { return e.Err }

// ToolOutput returns the tail of the build output.
func (e *BuildOutputError) ToolOutput() string { return e.Output }
