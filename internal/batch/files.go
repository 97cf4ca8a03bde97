package batch

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bulkdl/internal/consts"
	"bulkdl/internal/downloader"
)

// Enumerate lists the deliverable files under dir depth-first in post-order:
// the files of every subdirectory come before the files of its parent.
// Partial downloads and the audio extraction scratch directory are skipped.
func Enumerate(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var files, nested []string

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			if entry.Name() == consts.ExtractDirName {
				continue
			}

			sub, err := Enumerate(path)
			if err != nil {
				return nil, err
			}

			nested = append(nested, sub...)
		case entry.Type().IsRegular() && !downloader.IsPartial(entry.Name()):
			files = append(files, path)
		}
	}

	return append(nested, files...), nil
}

// Zip writes every deliverable file under srcDir into a zip archive at dst,
// keyed by its path relative to srcDir. It returns the number of files archived.
func Zip(srcDir, dst string) (n int, err error) {
	files, err := Enumerate(srcDir)
	if err != nil {
		return 0, err
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", closeErr)
		}
	}()

	zw := zip.NewWriter(out)

	for _, path := range files {
		if err := addFile(zw, srcDir, path); err != nil {
			return 0, errors.Join(err, zw.Close())
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}

	return len(files), nil
}

func addFile(zw *zip.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("relative path: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header %s: %w", rel, err)
	}

	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", rel, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}

	return nil
}
