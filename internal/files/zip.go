package files

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
)

// ZipFiles bundles the given files, flattened to their base names, into a
// new archive at target.
func ZipFiles(target string, paths []string) error {
	zipFile, err := os.Create(target)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	archive := zip.NewWriter(zipFile)

	for _, path := range paths {
		if err := addToZip(archive, path); err != nil {
			archive.Close()
			return err
		}
	}
	return archive.Close()
}

func addToZip(archive *zip.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	writer, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}
