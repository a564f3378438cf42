//go:build linux

package daemon

import "golang.org/x/sys/unix"

// releaseFDMax bounds the close sweep when the descriptor limit is set
// absurdly high.
const releaseFDMax = 65536

// ReleaseFDs closes every descriptor in [3, limit). Init systems can hand
// the supervisor descriptors it must not keep; this runs before any pipes
// or files of our own are opened.
func ReleaseFDs() {
	var rl unix.Rlimit
	limit := uint64(1024)
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err == nil {
		limit = rl.Cur
	}
	if limit > releaseFDMax {
		limit = releaseFDMax
	}
	for fd := 3; fd < int(limit); fd++ {
		_ = unix.Close(fd)
	}
}
