package compressor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const compressSuffix = "-compress"

// OutputPath returns where src re-encoded with extension ext is written.
// The directory is outputDir, or the source directory when empty. With
// overwrite the name is <stem>.<ext>; otherwise <stem>-compress.<ext>,
// numbered -compress-N.<ext> until taken reports the candidate free.
func OutputPath(src, ext, outputDir string, overwrite bool, taken func(string) bool) string {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if overwrite {
		return filepath.Join(dir, stem+"."+ext)
	}

	candidate := filepath.Join(dir, stem+compressSuffix+"."+ext)
	for counter := 1; taken(candidate); counter++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s%s-%d.%s", stem, compressSuffix, counter, ext))
	}
	return candidate
}

// writeAtomic writes data to a temporary file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tmp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close tmp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename error: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func lowerExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
