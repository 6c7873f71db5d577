// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package runenv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// RunWithTTY runs cmd attached to a new pseudo terminal and relays the
// caller's terminal through it. When in is a terminal it is put in raw mode
// and window size changes are propagated.
func RunWithTTY(cmd *exec.Cmd, in *os.File, out io.Writer) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start pseudo terminal: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	if term.IsTerminal(int(in.Fd())) {
		resize := make(chan os.Signal, 1)
		signal.Notify(resize, syscall.SIGWINCH)
		defer func() { signal.Stop(resize); close(resize) }()
		go func() {
			for range resize {
				_ = pty.InheritSize(in, ptmx)
			}
		}()
		resize <- syscall.SIGWINCH

		state, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			return fmt.Errorf("set raw terminal mode: %w", err)
		}
		defer func() { _ = term.Restore(int(in.Fd()), state) }()
	}

	go func() { _, _ = io.Copy(ptmx, in) }()
	_, copyErr := io.Copy(out, ptmx)

	waitErr := cmd.Wait()
	// Reading the pty master fails with EIO once the child side closes.
	if copyErr != nil && !errors.Is(copyErr, syscall.EIO) && waitErr == nil {
		return copyErr
	}
	return waitErr
}
