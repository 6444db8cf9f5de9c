package file

import (
	"archive/tar"
	"compress/gzip"
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hjbyt/adb/common"
)

// PathExists checks if a path exists. A "not exist" result is not an error;
// any other stat failure is returned.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CreateDir creates a directory and all its parents with common.FileMode0755.
func CreateDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("path %s exists but is not a directory", path)
	}
	if os.IsNotExist(err) {
		return os.MkdirAll(path, common.FileMode0755)
	}
	return fmt.Errorf("failed to check directory %s: %w", path, err)
}

// CreateFileDir ensures the parent directory of filePath exists.
func CreateFileDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == "" {
		return nil
	}
	return CreateDir(dir)
}

// LocalMd5Sum returns the hex MD5 of a local file.
func LocalMd5Sum(src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", src, err)
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("get file md5 for %s failed: %w", src, err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// Tar packs the contents of srcDir into a gzipped tarball at dstTarball.
func Tar(srcDir, dstTarball string) (err error) {
	fw, err := os.Create(dstTarball)
	if err != nil {
		return fmt.Errorf("failed to create destination tarball %s: %w", dstTarball, err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close tarball %s: %w", dstTarball, cerr)
		}
	}()
	return TarTo(srcDir, fw)
}

// TarTo writes the contents of srcDir to w as a gzipped tar stream.
// Entry names are relative to srcDir, so extracting with `tar -xzf <archive>
// -C <dir>` recreates the tree under dir. Symlinks are stored as links.
func TarTo(srcDir string, w io.Writer) error {
	srcDir = filepath.Clean(srcDir)
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", srcDir)
	}

	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	walkErr := filepath.WalkDir(srcDir, func(currentPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s during tar: %w", currentPath, err)
		}
		if currentPath == srcDir {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get FileInfo for %s: %w", currentPath, err)
		}
		link := ""
		if d.Type()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(currentPath); err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", currentPath, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("failed to create tar header for %s: %w", currentPath, err)
		}
		rel, err := filepath.Rel(srcDir, currentPath)
		if err != nil {
			return fmt.Errorf("failed to calculate relative path for %s: %w", currentPath, err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", currentPath, err)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		f, err := os.Open(currentPath)
		if err != nil {
			return fmt.Errorf("failed to open file %s for tarring: %w", currentPath, err)
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("failed to copy content of %s to tar archive: %w", currentPath, err)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	return nil
}
