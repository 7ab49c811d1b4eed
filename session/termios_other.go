//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package session

import "os"

func disableCanon(*os.File) error { return nil }
