package statistics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for one compression or fetch run.
type Statistics struct {
	FilesFound     int64
	FilesProcessed int64
	FilesFailed    int64
	FilesIgnored   int64
	TilesWritten   int64
	BytesWritten   int64
	Expected       int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64
	AverageTile    int64

	Errors []StatError

	mutex sync.RWMutex

	FileTypeStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of accepted source files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.FilesFound, 1)
}

// IncrementFilesProcessed increases the count of attempted files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementFilesFailed increases the count of failed files by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// IncrementFilesIgnored increases the count of directory entries filtered out by 1.
func (s *Statistics) IncrementFilesIgnored() {
	atomic.AddInt64(&s.FilesIgnored, 1)
}

// AddTile records one written tile of the given size in bytes.
func (s *Statistics) AddTile(bytes int64) {
	atomic.AddInt64(&s.TilesWritten, 1)
	atomic.AddInt64(&s.BytesWritten, bytes)
}

// SetExpected records the expected tile count used for the shortfall check.
func (s *Statistics) SetExpected(expected int) {
	atomic.StoreInt64(&s.Expected, int64(expected))
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[fileType]++
}

// Finalize calculates duration, throughput and average tile size.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.FilesProcessed)
	tiles := atomic.LoadInt64(&s.TilesWritten)
	bytes := atomic.LoadInt64(&s.BytesWritten)

	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
	if tiles > 0 {
		s.AverageTile = bytes / tiles
	}
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

// Missing returns how many tiles short of the expected count the run is.
func (s *Statistics) Missing() int64 {
	diff := atomic.LoadInt64(&s.Expected) - atomic.LoadInt64(&s.TilesWritten)
	if diff < 0 {
		return 0
	}
	return diff
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	fps := s.FilesPerSecond
	avg := s.AverageTile
	s.mutex.RUnlock()

	return fmt.Sprintf(`Tile Compressor Statistics Summary:

Files:
		Found: %d
		Processed: %d
		Failed: %d
		Ignored: %d

Tiles:
		Written: %d
		Expected: %d
		Missing: %d

Performance:
		Duration: %v
		Files/Second: %.2f
		Bytes Written: %s
		Average Tile Size: %s`,
		atomic.LoadInt64(&s.FilesFound),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesIgnored),
		atomic.LoadInt64(&s.TilesWritten),
		atomic.LoadInt64(&s.Expected),
		s.Missing(),
		duration,
		fps,
		formatBytes(atomic.LoadInt64(&s.BytesWritten)),
		formatBytes(avg))
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for t := range s.FileTypeStats {
		types = append(types, t)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, fileType := range types {
		result += fmt.Sprintf("  %s: %d\n", fileType, s.FileTypeStats[fileType])
	}
	return result
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

// Snapshot returns the counters in a JSON-friendly form.
func (s *Statistics) Snapshot() map[string]interface{} {
	s.mutex.RLock()
	errCount := len(s.Errors)
	s.mutex.RUnlock()

	return map[string]interface{}{
		"files": map[string]interface{}{
			"found":     atomic.LoadInt64(&s.FilesFound),
			"processed": atomic.LoadInt64(&s.FilesProcessed),
			"failed":    atomic.LoadInt64(&s.FilesFailed),
			"ignored":   atomic.LoadInt64(&s.FilesIgnored),
		},
		"tiles": map[string]interface{}{
			"written":  atomic.LoadInt64(&s.TilesWritten),
			"expected": atomic.LoadInt64(&s.Expected),
			"missing":  s.Missing(),
			"bytes":    atomic.LoadInt64(&s.BytesWritten),
		},
		"errors":      errCount,
		"duration_ms": s.GetDuration().Milliseconds(),
	}
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
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

// GetTilesWritten returns the number of tiles written.
func (s *Statistics) GetTilesWritten() int64 {
	return atomic.LoadInt64(&s.TilesWritten)
}

// GetFilesFailed returns the number of files that failed.
func (s *Statistics) GetFilesFailed() int64 {
	return atomic.LoadInt64(&s.FilesFailed)
}

// GetDuration returns the total duration of the run.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
