package ldm

import (
	"context"
	"fmt"
	"os"
)

// FSFlush is the IOAdapter shared by both families: flush pending writes
// to the medium by fsyncing the mount root. LTFS and ordinary
// filesystems both honor fsync on the mount root to push dirty pages down.
type FSFlush struct{}

// NewFSFlush builds the shared IOAdapter.
func NewFSFlush() *FSFlush { return &FSFlush{} }

func (FSFlush) Flush(ctx context.Context, mountPoint string) error {
	fh, err := os.Open(mountPoint)
	if err != nil {
		return fmt.Errorf("ldm: open %q for flush: %w", mountPoint, err)
	}
	defer fh.Close()
	if err := fh.Sync(); err != nil {
		return fmt.Errorf("ldm: fsync %q: %w", mountPoint, err)
	}
	return nil
}
