package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// archiveEpoch is the fixed timestamp for every archive entry, keeping
// repeated assemblies of the same content byte-identical.
var archiveEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// writeArchive zips the staged directory. The mimetype entry is written
// first and uncompressed as the container format requires; everything else
// follows deflated in sorted path order.
func writeArchive(w io.Writer, stagingDir string) error {
	var names []string
	err := filepath.WalkDir(stagingDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(names)

	found := false
	for i, name := range names {
		if name == mimetypeName {
			names[0], names[i] = names[i], names[0]
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("staged tree has no %s entry", mimetypeName)
	}
	// re-sort the tail so the swap above cannot disturb entry order
	sort.Strings(names[1:])

	zw := zip.NewWriter(w)
	for i, name := range names {
		method := zip.Deflate
		if i == 0 {
			method = zip.Store
		}
		hdr := &zip.FileHeader{Name: name, Method: method, Modified: archiveEpoch}
		hdr.SetMode(0o644)

		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(stagingDir, filepath.FromSlash(name)))
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		f.Close() //nolint:errcheck
		if err != nil {
			return err
		}
	}
	return zw.Close()
}
