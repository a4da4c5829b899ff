package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestSafeMove(t *testing.T) {
	ops := NewOSFileOps()

	t.Run("creates parent directories", func(t *testing.T) {
		dir := t.TempDir()
		src := writeFile(t, filepath.Join(dir, "src.bin"), "data")
		dst := filepath.Join(dir, "a", "b", "dst.bin")

		final, err := ops.SafeMove(src, dst)
		if err != nil {
			t.Fatalf("SafeMove() error = %v", err)
		}
		if final != dst {
			t.Errorf("final = %q, want %q", final, dst)
		}
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Error("source still exists after move")
		}
		data, err := os.ReadFile(final)
		if err != nil || string(data) != "data" {
			t.Errorf("moved content = %q, %v", data, err)
		}
	})

	t.Run("never overwrites, appends numeric suffix", func(t *testing.T) {
		dir := t.TempDir()
		dst := writeFile(t, filepath.Join(dir, "photo.jpg"), "original")

		src1 := writeFile(t, filepath.Join(dir, "incoming1.jpg"), "first")
		final1, err := ops.SafeMove(src1, dst)
		if err != nil {
			t.Fatalf("SafeMove() error = %v", err)
		}
		if want := filepath.Join(dir, "photo (1).jpg"); final1 != want {
			t.Errorf("final = %q, want %q", final1, want)
		}

		src2 := writeFile(t, filepath.Join(dir, "incoming2.jpg"), "second")
		final2, err := ops.SafeMove(src2, dst)
		if err != nil {
			t.Fatalf("SafeMove() error = %v", err)
		}
		if want := filepath.Join(dir, "photo (2).jpg"); final2 != want {
			t.Errorf("final = %q, want %q", final2, want)
		}

		// The original is untouched.
		data, _ := os.ReadFile(dst)
		if string(data) != "original" {
			t.Errorf("original content = %q, want unchanged", data)
		}
	})

	t.Run("empty destination rejected", func(t *testing.T) {
		if _, err := ops.SafeMove("/tmp/whatever", "  "); err == nil {
			t.Error("SafeMove(empty dst) error = nil, want error")
		}
	})

	t.Run("concurrent movers never clobber each other", func(t *testing.T) {
		srcDir := t.TempDir()
		destDir := t.TempDir()
		dst := filepath.Join(destDir, "download.bin")

		const movers = 8
		finals := make([]string, movers)
		errs := make([]error, movers)

		var wg sync.WaitGroup
		for i := 0; i < movers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				src := writeFile(t, filepath.Join(srcDir, fmt.Sprintf("src%d.bin", i)), fmt.Sprintf("payload-%d", i))
				finals[i], errs[i] = ops.SafeMove(src, dst)
			}(i)
		}
		wg.Wait()

		// Every mover gets a distinct name and its content survives.
		seen := make(map[string]bool)
		for i := 0; i < movers; i++ {
			if errs[i] != nil {
				t.Fatalf("mover %d error = %v", i, errs[i])
			}
			if seen[finals[i]] {
				t.Fatalf("final name %q handed to two movers", finals[i])
			}
			seen[finals[i]] = true

			data, err := os.ReadFile(finals[i])
			if err != nil || string(data) != fmt.Sprintf("payload-%d", i) {
				t.Errorf("mover %d content = %q, %v, want payload-%d", i, data, err, i)
			}
		}
		entries, err := os.ReadDir(destDir)
		if err != nil || len(entries) != movers {
			t.Errorf("dest dir entries = %d, err = %v, want %d", len(entries), err, movers)
		}
	})
}

func TestWalkFiles(t *testing.T) {
	ops := NewOSFileOps()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.txt"), "1")
	writeFile(t, filepath.Join(dir, "sub", "nested.txt"), "22")
	writeFile(t, filepath.Join(dir, "skipped", "inner.txt"), "333")

	var visited []string
	var totalSize int64
	err := ops.WalkFiles(dir,
		func(d string) bool { return filepath.Base(d) == "skipped" },
		func(path string, size int64) error {
			visited = append(visited, filepath.Base(path))
			totalSize += size
			return nil
		})
	if err != nil {
		t.Fatalf("WalkFiles() error = %v", err)
	}

	if len(visited) != 2 {
		t.Errorf("visited = %v, want 2 files with pruned subtree skipped", visited)
	}
	if totalSize != 3 {
		t.Errorf("total size = %d, want 3", totalSize)
	}
}

func TestRemoveEmptyDirs(t *testing.T) {
	ops := NewOSFileOps()
	dir := t.TempDir()

	// a/b/c is an empty chain; d holds a file and must survive.
	if err := os.MkdirAll(filepath.Join(dir, "a", "b", "c"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "d", "keep.txt"), "x")

	removed, err := ops.RemoveEmptyDirs(dir)
	if err != nil {
		t.Fatalf("RemoveEmptyDirs() error = %v", err)
	}

	if removed != 3 {
		t.Errorf("removed = %d, want 3 (whole empty chain)", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "a")); !os.IsNotExist(err) {
		t.Error("empty chain root still present")
	}
	if _, err := os.Stat(filepath.Join(dir, "d", "keep.txt")); err != nil {
		t.Errorf("populated directory removed: %v", err)
	}
	// The walk root itself is preserved.
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("root removed: %v", err)
	}
}

func TestIsHidden(t *testing.T) {
	ops := NewOSFileOps()
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b/.hidden", true},
		{"/a/.dir/visible.txt", false},
		{"/a/b/visible.txt", false},
		{".", false},
		{"..", false},
	}
	for _, tt := range tests {
		if got := ops.IsHidden(tt.path); got != tt.want {
			t.Errorf("IsHidden(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Run("writes and replaces", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "doc.json")

		if err := WriteFileAtomic(path, []byte("v1")); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}
		if err := WriteFileAtomic(path, []byte("v2")); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil || string(data) != "v2" {
			t.Errorf("content = %q, %v, want v2", data, err)
		}
	})

	t.Run("leaves no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "doc.json")
		if err := WriteFileAtomic(path, []byte("x")); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Errorf("temp file still present (err = %v)", err)
		}
	})
}
