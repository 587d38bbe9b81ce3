package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"image-compressor-go/internal/logger"
)

func newTestScanner() *Scanner {
	return New(nil, logger.Discard())
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func paths(images []ImageInfo) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.FilePath)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestClassify_SupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	s := newTestScanner()

	for i, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.Svg", "e.WEBP"} {
		path := filepath.Join(dir, name)
		writeFile(t, path, 10+i)

		info, ok := s.Classify(path)
		if !ok {
			t.Fatalf("Classify(%s) = false", name)
		}
		if info.FileName != name || info.FilePath != path {
			t.Errorf("unexpected name/path: %+v", info)
		}
		if want := filepath.Ext(name)[1:]; info.FileExtension != want {
			t.Errorf("extension = %q, want %q", info.FileExtension, want)
		}
		if info.FileSize != int64(10+i) {
			t.Errorf("size = %d, want %d", info.FileSize, 10+i)
		}
	}
}

func TestClassify_Rejects(t *testing.T) {
	dir := t.TempDir()
	s := newTestScanner()

	for _, name := range []string{"notes.txt", "README", "archive.png.zip", "photo.gif", "trailing."} {
		path := filepath.Join(dir, name)
		writeFile(t, path, 4)
		if _, ok := s.Classify(path); ok {
			t.Errorf("Classify(%s) = true, want false", name)
		}
	}

	if _, ok := s.Classify(filepath.Join(dir, "missing.png")); ok {
		t.Error("Classify on missing file returned true")
	}
}

func TestNew_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	s := New([]string{".GIF"}, logger.Discard())

	gif := filepath.Join(dir, "x.gif")
	png := filepath.Join(dir, "x.png")
	writeFile(t, gif, 1)
	writeFile(t, png, 1)

	if _, ok := s.Classify(gif); !ok {
		t.Error("gif should be supported")
	}
	if s.Supports(png) {
		t.Error("png should not be supported")
	}
}

func TestScan_NestedMix(t *testing.T) {
	root := t.TempDir()
	want := []string{
		filepath.Join(root, "top.png"),
		filepath.Join(root, "a", "one.jpg"),
		filepath.Join(root, "a", "b", "two.webp"),
		filepath.Join(root, "a", "b", "c", "three.SVG"),
		filepath.Join(root, "z", "four.jpeg"),
	}
	for _, p := range want {
		writeFile(t, p, 3)
	}
	writeFile(t, filepath.Join(root, "a", "notes.txt"), 3)
	writeFile(t, filepath.Join(root, "a", "b", "noext"), 3)
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	report := newTestScanner().Scan(root)

	sort.Strings(want)
	if got := paths(report.Images); !equalStrings(got, want) {
		t.Fatalf("Scan images =\n%v\nwant\n%v", got, want)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
	if report.DirectoriesScanned != 6 {
		t.Errorf("directories scanned = %d, want 6", report.DirectoriesScanned)
	}
}

func TestScan_SymlinkCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "pic.png"), 8)
	if err := os.Symlink(root, filepath.Join(root, "sub", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	report := newTestScanner().Scan(root)

	if len(report.Images) != 1 {
		t.Fatalf("images = %v, want exactly one", paths(report.Images))
	}
}

func TestScan_BrokenSymlinkSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.png"), 1)
	if err := os.Symlink(filepath.Join(root, "gone.png"), filepath.Join(root, "dangling.png")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	report := newTestScanner().Scan(root)

	if len(report.Images) != 1 || report.Skipped != 1 {
		t.Fatalf("images=%v skipped=%d", paths(report.Images), report.Skipped)
	}
}

func TestScan_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.png"), 1)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden.png"), 1)
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	report := newTestScanner().Scan(root)

	if got := paths(report.Images); !equalStrings(got, []string{filepath.Join(root, "ok.png")}) {
		t.Fatalf("images = %v", got)
	}
	if report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", report.Skipped)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	report := newTestScanner().Scan(filepath.Join(t.TempDir(), "nope"))
	if len(report.Images) != 0 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestResolve_MixedInputs(t *testing.T) {
	root := t.TempDir()
	single := filepath.Join(root, "single.png")
	writeFile(t, single, 5)
	dir := filepath.Join(root, "dir")
	inDir := filepath.Join(dir, "inner.jpg")
	writeFile(t, inDir, 6)
	writeFile(t, filepath.Join(dir, "skip.txt"), 6)
	other := filepath.Join(root, "other.txt")
	writeFile(t, other, 1)

	report := newTestScanner().Resolve([]string{
		single,
		filepath.Join(root, "missing.png"),
		dir,
		other,
		single,
	})

	var got []string
	for _, img := range report.Images {
		got = append(got, img.FilePath)
	}
	want := []string{single, inDir, single}
	if !equalStrings(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
	if report.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", report.Skipped)
	}
}

func TestResolve_DirectAndParentNotDeduplicated(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "pic.webp")
	writeFile(t, file, 2)

	report := newTestScanner().Resolve([]string{file, root})
	if len(report.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(report.Images))
	}
}

func TestResolve_EmptyInputReturnsEmptySlice(t *testing.T) {
	report := newTestScanner().Resolve(nil)
	if report.Images == nil || len(report.Images) != 0 {
		t.Fatalf("images = %#v, want empty non-nil slice", report.Images)
	}
}
