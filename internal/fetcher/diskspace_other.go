//go:build !linux

package fetcher

// availableBytes returns -1: free space is only checked on Linux.
func availableBytes(dir string) int64 {
	return -1
}
