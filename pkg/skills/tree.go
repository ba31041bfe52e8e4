package skills

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// skippedDirs are never descended into when searching for skills
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
}

// FindSkillDirs returns every directory under root, root included, that holds
// a skill file. Results are ordered by depth, then lexically.
func FindSkillDirs(root string) ([]string, error) {
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if _, ok := FindSkillFile(path); ok {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	sortByDepth(dirs)
	return dirs, nil
}

// MinimalDirs drops every directory that has an ancestor in the same set, so
// nested skills inside a skill bundle are not linked twice.
func MinimalDirs(dirs []string) []string {
	sorted := append([]string(nil), dirs...)
	sortByDepth(sorted)

	var kept []string
	for _, dir := range sorted {
		clean := filepath.Clean(dir)
		nested := false
		for _, parent := range kept {
			if isWithin(clean, parent) {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, clean)
		}
	}
	return kept
}

func isWithin(path, parent string) bool {
	if path == parent {
		return true
	}
	return strings.HasPrefix(path, parent+string(os.PathSeparator))
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(os.PathSeparator))
}

func sortByDepth(dirs []string) {
	sort.SliceStable(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i]), depth(dirs[j])
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
}
