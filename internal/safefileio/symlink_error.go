//go:build !netbsd

package safefileio

import (
	"errors"
	"syscall"
)

// isSymlinkOpenError reports whether err is what open(2) with O_NOFOLLOW
// returns for a symbolic link: ELOOP on Linux, EMLINK on FreeBSD.
func isSymlinkOpenError(err error) bool {
	return errors.Is(err, syscall.ELOOP) || errors.Is(err, syscall.EMLINK)
}
