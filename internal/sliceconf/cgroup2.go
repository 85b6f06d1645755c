package sliceconf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// cgroup2SuperMagic is CGROUP2_SUPER_MAGIC from linux/magic.h.
const cgroup2SuperMagic = 0x63677270

// IsCgroup2Mounted reports whether root is the root of a cgroup2
// (unified) hierarchy, the precondition every other operation in this
// package assumes.
func IsCgroup2Mounted(root string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return false, fmt.Errorf("sliceconf: statfs %s: %w", root, err)
	}
	return int64(st.Type) == cgroup2SuperMagic, nil
}
