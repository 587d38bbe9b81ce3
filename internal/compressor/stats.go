package compressor

import (
	"image-compressor-go/internal/statistics"
)

// Record adds the outcome of one compression to stats.
func Record(stats *statistics.Statistics, r CompressionResult) {
	stats.IncrementFilesProcessed()
	if r.Error != nil {
		stats.IncrementFilesWithErrors()
		stats.AddError(r.InputPath, "compress", r.Error.Error())
		return
	}

	var written, kept, skipped bool
	for _, f := range r.Formats {
		switch f.Action {
		case ActionCompressed:
			written = true
			stats.IncrementFormat(f.Format)
		case ActionOriginal:
			kept = true
		case ActionSkipped:
			skipped = true
		case ActionUnsupported:
			stats.IncrementFormatsUnsupported()
		case ActionError:
			stats.AddError(r.InputPath, "encode "+f.Format, f.Message)
		}
	}

	// The source counts once however many formats were written.
	if written {
		stats.AddBytes(r.OriginalSize, r.BytesWritten())
	}

	switch {
	case !r.Success:
		stats.IncrementFilesWithErrors()
	case written:
		stats.IncrementFilesCompressed()
	case kept:
		stats.IncrementFilesKeptOriginal()
	case skipped:
		stats.IncrementFilesSkipped()
	}
}
