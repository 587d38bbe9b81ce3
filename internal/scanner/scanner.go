package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"image-compressor-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// DefaultExtensions are the image types recognised when no list is configured.
var DefaultExtensions = []string{"png", "jpg", "jpeg", "svg", "webp"}

// ImageInfo describes one discovered image file.
type ImageInfo struct {
	FileName      string `json:"fileName"`
	FilePath      string `json:"filePath"`
	FileExtension string `json:"fileExtension"`
	FileSize      int64  `json:"fileSize"`
}

// Report is the outcome of a scan or batch resolution.
// Skipped counts entries that were ignored: unreadable directories and
// entries, non-image files and inputs that do not exist.
type Report struct {
	Images             []ImageInfo
	Skipped            int
	DirectoriesScanned int
}

func (r *Report) merge(other *Report) {
	r.Images = append(r.Images, other.Images...)
	r.Skipped += other.Skipped
	r.DirectoriesScanned += other.DirectoriesScanned
}

// Scanner finds supported images among files and directory trees.
// It holds no per-call state and is safe for concurrent use.
type Scanner struct {
	extensions map[string]struct{}
	logger     *logrus.Logger
}

// New returns a Scanner accepting the given extensions (case-insensitive,
// with or without a leading dot). An empty list selects DefaultExtensions.
func New(extensions []string, logger *logrus.Logger) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.TrimPrefix(strings.ToLower(ext), ".")] = struct{}{}
	}
	return &Scanner{extensions: set, logger: logger}
}

// Supports reports whether the path has a supported image extension.
func (s *Scanner) Supports(path string) bool {
	_, ok := s.extension(path)
	return ok
}

// extension returns the extension of path without the dot, in its original
// casing, and whether it belongs to the supported set.
func (s *Scanner) extension(path string) (string, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", false
	}
	_, ok := s.extensions[strings.ToLower(ext)]
	return ext, ok
}

// Classify returns the ImageInfo for path when it names a supported image.
// Metadata read failures are not errors: the path is simply not an image.
func (s *Scanner) Classify(path string) (ImageInfo, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return ImageInfo{}, false
	}
	ext, ok := s.extension(path)
	if !ok {
		return ImageInfo{}, false
	}
	return ImageInfo{
		FileName:      filepath.Base(path),
		FilePath:      path,
		FileExtension: ext,
		FileSize:      info.Size(),
	}, true
}

// Scan walks the tree rooted at root and returns every supported image in it.
// Directories are processed from an explicit work-list; each directory is
// entered once per scan, keyed by its canonical path, so symlink cycles end.
func (s *Scanner) Scan(root string) *Report {
	report := &Report{}
	visited := make(map[string]struct{})
	pending := []string{root}

	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		key, err := canonical(dir)
		if err != nil {
			s.skip(report, dir, "canonicalize", err)
			continue
		}
		if _, seen := visited[key]; seen {
			s.logger.WithField("directory", dir).Debug("Directory already visited, skipping")
			continue
		}
		visited[key] = struct{}{}

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.skip(report, dir, "read_dir", err)
			continue
		}
		report.DirectoriesScanned++

		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			// os.Stat follows symlinks so linked files and directories count as their targets.
			info, err := os.Stat(path)
			if err != nil {
				s.skip(report, path, "stat", err)
				continue
			}
			switch {
			case info.Mode().IsRegular():
				if img, ok := s.Classify(path); ok {
					report.Images = append(report.Images, img)
				} else {
					report.Skipped++
				}
			case info.IsDir():
				subdirs = append(subdirs, path)
			default:
				report.Skipped++
			}
		}

		// Pushed in reverse so subdirectories are descended in listing order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			pending = append(pending, subdirs[i])
		}
	}

	return report
}

// Resolve classifies files and scans directories from a mixed input list,
// concatenating the results in input order. Inputs that are neither a
// regular file nor a directory are skipped. Nothing is deduplicated.
func (s *Scanner) Resolve(paths []string) *Report {
	report := &Report{Images: make([]ImageInfo, 0)}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			s.skip(report, path, "stat", err)
			continue
		}
		switch {
		case info.Mode().IsRegular():
			if img, ok := s.Classify(path); ok {
				report.Images = append(report.Images, img)
			} else {
				report.Skipped++
			}
		case info.IsDir():
			report.merge(s.Scan(path))
		default:
			report.Skipped++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"inputs":  len(paths),
		"images":  len(report.Images),
		"skipped": report.Skipped,
	}).Debug("Resolved image list")
	return report
}

func (s *Scanner) skip(report *Report, path, operation string, err error) {
	report.Skipped++
	logger.WithFileOperation(s.logger, path, operation).Debugf("Skipping unreadable entry: %v", err)
}

func canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}
