package file

import (
	"archive/tar"
	"compress/gzip"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/hjbyt/adb/common"
)

func createTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	if err := os.WriteFile(filePath, content, common.FileMode0644); err != nil {
		t.Fatalf("Failed to write test file %s: %v", filePath, err)
	}
	return filePath
}

func TestPathExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := createTestFile(t, tmpDir, "exists.txt", []byte("hello"))

	tests := []struct {
		name      string
		path      string
		wantExist bool
		wantErr   bool
	}{
		{"existing file", existingFile, true, false},
		{"non-existing path", filepath.Join(tmpDir, "notexists.txt"), false, false},
		{"existing dir", tmpDir, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotExist, err := PathExists(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("PathExists() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotExist != tt.wantExist {
				t.Errorf("PathExists() = %v, want %v", gotExist, tt.wantExist)
			}
		})
	}
}

func TestCreateDir(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := createTestFile(t, tmpDir, "file.txt", []byte("content"))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"new nested dir", filepath.Join(tmpDir, "a", "b"), false},
		{"existing dir", tmpDir, false},
		{"path is a file", existingFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CreateDir(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateDir() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				info, statErr := os.Stat(tt.path)
				if statErr != nil || !info.IsDir() {
					t.Errorf("CreateDir() did not create directory %s", tt.path)
				}
			}
		})
	}
}

func TestCreateFileDir(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "x", "y", "pulled.txt")
	if err := CreateFileDir(target); err != nil {
		t.Fatalf("CreateFileDir() error = %v", err)
	}
	if ok, _ := PathExists(filepath.Dir(target)); !ok {
		t.Errorf("parent of %s was not created", target)
	}
	if err := CreateFileDir("relative.txt"); err != nil {
		t.Errorf("CreateFileDir() on bare name error = %v", err)
	}
}

func TestLocalMd5Sum(t *testing.T) {
	content := []byte("adb push payload")
	path := createTestFile(t, t.TempDir(), "payload.bin", content)

	got, err := LocalMd5Sum(path)
	if err != nil {
		t.Fatalf("LocalMd5Sum() error = %v", err)
	}
	if want := fmt.Sprintf("%x", md5.Sum(content)); got != want {
		t.Errorf("LocalMd5Sum() = %s, want %s", got, want)
	}

	if _, err := LocalMd5Sum(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("LocalMd5Sum() on missing file should fail")
	}
}

func readTarball(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open tarball: %v", err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	tr := tar.NewReader(gr)

	entries := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatalf("read entry %s: %v", hdr.Name, err)
			}
			entries[hdr.Name] = string(data)
		case tar.TypeSymlink:
			entries[hdr.Name] = "-> " + hdr.Linkname
		default:
			entries[hdr.Name] = ""
		}
	}
	return entries
}

func TestTar(t *testing.T) {
	src := t.TempDir()
	createTestFile(t, src, "root.txt", []byte("root content"))
	if err := CreateDir(filepath.Join(src, "data", "sub")); err != nil {
		t.Fatal(err)
	}
	createTestFile(t, filepath.Join(src, "data"), "file1.txt", []byte("data file 1"))
	createTestFile(t, filepath.Join(src, "data", "sub"), "nested.txt", []byte("deeply nested"))
	if err := CreateDir(filepath.Join(src, "empty")); err != nil {
		t.Fatal(err)
	}
	haveLink := os.Symlink("root.txt", filepath.Join(src, "link.txt")) == nil

	tarball := filepath.Join(t.TempDir(), "tree.tar.gz")
	if err := Tar(src, tarball); err != nil {
		t.Fatalf("Tar() error = %v", err)
	}

	got := readTarball(t, tarball)
	want := map[string]string{
		"root.txt":            "root content",
		"data/":               "",
		"data/file1.txt":      "data file 1",
		"data/sub/":           "",
		"data/sub/nested.txt": "deeply nested",
		"empty/":              "",
	}
	if haveLink {
		want["link.txt"] = "-> root.txt"
	}

	if len(got) != len(want) {
		names := make([]string, 0, len(got))
		for k := range got {
			names = append(names, k)
		}
		sort.Strings(names)
		t.Fatalf("Tar() entries = %v, want %d entries", names, len(want))
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("entry %s = %q, want %q", name, got[name], content)
		}
	}
}

func TestTar_Errors(t *testing.T) {
	tmp := t.TempDir()
	regular := createTestFile(t, tmp, "plain.txt", []byte("x"))

	if err := Tar(filepath.Join(tmp, "missing"), filepath.Join(tmp, "a.tar.gz")); err == nil {
		t.Error("Tar() of missing source should fail")
	}
	if err := Tar(regular, filepath.Join(tmp, "b.tar.gz")); err == nil {
		t.Error("Tar() of a regular file should fail")
	}
}
