package scheduler

import "path/filepath"

// mountPathFor builds the configured mount point for a device path:
// <configured-prefix><basename(device-path)>.
func mountPathFor(prefix, devicePath string) string {
	return prefix + filepath.Base(devicePath)
}
