package ldm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// statfsDF reports free/used bytes of the filesystem mounted at path, shared
// by the tape and dir family FS adapters.
func statfsDF(path string) (free, used int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("ldm: statfs %q: %w", path, err)
	}
	blockSize := int64(st.Bsize)
	free = int64(st.Bavail) * blockSize
	used = (int64(st.Blocks) - int64(st.Bfree)) * blockSize
	return free, used, nil
}

// statfsWritable reports whether the filesystem mounted at path is
// currently mounted read-write.
func statfsWritable(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, fmt.Errorf("ldm: statfs %q: %w", path, err)
	}
	return st.Flags&unix.ST_RDONLY == 0, nil
}
