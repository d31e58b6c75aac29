package pipeline

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// LocalSource is a discovered image file under the source root.
type LocalSource struct {
	// Ref is the root-relative path, in the form Process accepts.
	Ref string
	// Size is the file size in bytes.
	Size int64
}

// sourceExtensions lists the input formats the pipeline accepts.
var sourceExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ScanSources walks the source root and returns every processable image,
// skipping hidden directories. Files of other types are simply ignored;
// an explicit reference to one still fails loudly in Process.
func ScanSources(root string) ([]LocalSource, error) {
	var sources []LocalSource

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sources = append(sources, LocalSource{Ref: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})

	return sources, err
}
