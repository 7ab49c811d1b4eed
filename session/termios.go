//go:build linux || darwin || freebsd || netbsd || openbsd

package session

import (
	"os"

	"golang.org/x/sys/unix"
)

// disableCanon turns off canonical input on the PTY. Canonical mode keeps at
// most 4095 bytes of a line and drops the rest, which would cut apply lines.
func disableCanon(f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	err = rc.Control(func(fd uintptr) {
		t, err := unix.IoctlGetTermios(int(fd), ioctlGetTermios)
		if err != nil {
			opErr = err
			return
		}
		t.Lflag &^= unix.ICANON
		t.Cc[unix.VMIN] = 1
		t.Cc[unix.VTIME] = 0
		opErr = unix.IoctlSetTermios(int(fd), ioctlSetTermios, t)
	})
	if err != nil {
		return err
	}
	return opErr
}
