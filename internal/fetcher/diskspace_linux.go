//go:build linux

package fetcher

import "golang.org/x/sys/unix"

// availableBytes returns the free space on the filesystem holding dir, or -1
// when it cannot be determined.
func availableBytes(dir string) int64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return -1
	}
	return int64(stat.Bavail) * stat.Bsize
}
