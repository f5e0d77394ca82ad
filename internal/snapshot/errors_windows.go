//go:build windows

package snapshot

func isNotDirErr(err error) bool {
	return false
}
