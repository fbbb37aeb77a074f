package buildfile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const fileExtension = ".hcl"

// findFiles expands every path into the .hcl files it names. A directory
// is searched recursively. Every path must exist, and a file given directly
// must carry the .hcl extension. The result is sorted and free of
// duplicates.
func findFiles(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path does not exist: %s", path)
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) != fileExtension {
				return nil, fmt.Errorf("file %s is not a %s file", path, fileExtension)
			}
			add(path)
			continue
		}

		found, err := findFilesByExtension(path, fileExtension)
		if err != nil {
			return nil, fmt.Errorf("error walking directory %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}

	slices.Sort(files)
	return files, nil
}

// findFilesByExtension recursively searches root for regular files ending
// with extension.
func findFilesByExtension(root, extension string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
