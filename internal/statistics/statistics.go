package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains the counters of a listing or compression run.
type Statistics struct {
	ImagesFound        int64
	EntriesSkipped     int64
	DirectoriesScanned int64

	FilesProcessed     int64
	FilesCompressed    int64
	FilesKeptOriginal  int64
	FilesSkipped       int64
	FilesWithErrors    int64
	FormatsUnsupported int64

	BytesIn  int64
	BytesOut int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	FormatStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// Snapshot is a JSON-friendly copy of the counters.
type Snapshot struct {
	ImagesFound        int64            `json:"images_found"`
	EntriesSkipped     int64            `json:"entries_skipped"`
	DirectoriesScanned int64            `json:"directories_scanned"`
	FilesProcessed     int64            `json:"files_processed"`
	FilesCompressed    int64            `json:"files_compressed"`
	FilesKeptOriginal  int64            `json:"files_kept_original"`
	FilesSkipped       int64            `json:"files_skipped"`
	FilesWithErrors    int64            `json:"files_with_errors"`
	FormatsUnsupported int64            `json:"formats_unsupported"`
	BytesIn            int64            `json:"bytes_in"`
	BytesOut           int64            `json:"bytes_out"`
	Formats            map[string]int64 `json:"formats"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// AddScan records the outcome of a listing.
func (s *Statistics) AddScan(images, skipped, directories int) {
	atomic.AddInt64(&s.ImagesFound, int64(images))
	atomic.AddInt64(&s.EntriesSkipped, int64(skipped))
	atomic.AddInt64(&s.DirectoriesScanned, int64(directories))
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementFilesCompressed increases the count of files with at least one written output by 1.
func (s *Statistics) IncrementFilesCompressed() {
	atomic.AddInt64(&s.FilesCompressed, 1)
}

// IncrementFilesKeptOriginal increases the count of files whose original was kept by 1.
func (s *Statistics) IncrementFilesKeptOriginal() {
	atomic.AddInt64(&s.FilesKeptOriginal, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesWithErrors increases the count of files with errors by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// IncrementFormatsUnsupported increases the count of requested formats without an encoder by 1.
func (s *Statistics) IncrementFormatsUnsupported() {
	atomic.AddInt64(&s.FormatsUnsupported, 1)
}

// AddBytes adds source and output byte counts.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// IncrementFormat increases the count of outputs written in format by 1.
func (s *Statistics) IncrementFormat(format string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FormatStats[format]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.FilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// SavedPercentage returns how much smaller the outputs are than their sources.
func (s *Statistics) SavedPercentage() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)
	if in == 0 {
		return 0
	}
	return float64(in-out) * 100 / float64(in)
}

// Snapshot returns a consistent copy of the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	formats := make(map[string]int64, len(s.FormatStats))
	for k, v := range s.FormatStats {
		formats[k] = v
	}
	s.mutex.RUnlock()

	return Snapshot{
		ImagesFound:        atomic.LoadInt64(&s.ImagesFound),
		EntriesSkipped:     atomic.LoadInt64(&s.EntriesSkipped),
		DirectoriesScanned: atomic.LoadInt64(&s.DirectoriesScanned),
		FilesProcessed:     atomic.LoadInt64(&s.FilesProcessed),
		FilesCompressed:    atomic.LoadInt64(&s.FilesCompressed),
		FilesKeptOriginal:  atomic.LoadInt64(&s.FilesKeptOriginal),
		FilesSkipped:       atomic.LoadInt64(&s.FilesSkipped),
		FilesWithErrors:    atomic.LoadInt64(&s.FilesWithErrors),
		FormatsUnsupported: atomic.LoadInt64(&s.FormatsUnsupported),
		BytesIn:            atomic.LoadInt64(&s.BytesIn),
		BytesOut:           atomic.LoadInt64(&s.BytesOut),
		Formats:            formats,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	perSecond := s.FilesPerSecond
	s.mutex.RUnlock()

	return fmt.Sprintf(`Image Compressor Statistics Summary:

Scan:
		Images Found: %d
		Entries Skipped: %d
		Directories Scanned: %d

Compression:
		Files Processed: %d
		Compressed: %d
		Kept Original: %d
		Skipped: %d
		Errors: %d
		Unsupported Formats: %d

Size:
		Input: %s
		Output: %s
		Saved: %.1f%%

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.ImagesFound),
		atomic.LoadInt64(&s.EntriesSkipped),
		atomic.LoadInt64(&s.DirectoriesScanned),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesKeptOriginal),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.FormatsUnsupported),
		FormatBytes(atomic.LoadInt64(&s.BytesIn)),
		FormatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.SavedPercentage(),
		duration,
		perSecond)
}

// GetFormatBreakdown returns a formatted breakdown of outputs per format.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	var b strings.Builder
	b.WriteString("Format Breakdown:\n")
	for _, f := range formats {
		fmt.Fprintf(&b, "  %s: %d\n", f, s.FormatStats[f])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
