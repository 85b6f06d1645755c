package sliceconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindSubtreeControlFiles returns every cgroup.subtree_control file at or
// below root, ordered longest-path-first so a controller is disabled on
// the deepest descendants before its ancestors (matching the order the
// kernel requires for a clean -cpu write).
func FindSubtreeControlFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == "cgroup.subtree_control" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sliceconf: walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.Count(files[i], string(filepath.Separator)) > strings.Count(files[j], string(filepath.Separator))
	})
	return files, nil
}

// ApplyCPUSubtreeControl toggles the "cpu" controller across every nested
// cgroup.subtree_control file under root: disabled
// (write "-cpu") when disableSeqCPU >= currentInstanceSeq, else enabled
// ("+cpu"). Memory and IO are always left enabled and are never toggled
// here. Write order is longest path first so children release the
// controller before parents, which the kernel requires to disable
// cleanly.
func ApplyCPUSubtreeControl(root string, disableSeqCPU, currentInstanceSeq uint64) error {
	files, err := FindSubtreeControlFiles(root)
	if err != nil {
		return err
	}
	want := "+cpu"
	if disableSeqCPU >= currentInstanceSeq {
		want = "-cpu"
	}
	var firstErr error
	for _, f := range files {
		if err := os.WriteFile(f, []byte(want), 0o644); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sliceconf: write %s to %s: %w", want, f, err)
		}
	}
	return firstErr
}
