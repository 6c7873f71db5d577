// SPDX-License-Identifier: MPL-2.0

//go:build windows

package runenv

import (
	"errors"
	"io"
	"os"
	"os/exec"
)

// ErrTTYUnsupported is returned by RunWithTTY on platforms without pseudo terminals.
var ErrTTYUnsupported = errors.New("pseudo terminals are not supported on this platform")

// RunWithTTY is not supported on Windows.
func RunWithTTY(_ *exec.Cmd, _ *os.File, _ io.Writer) error {
	return ErrTTYUnsupported
}
