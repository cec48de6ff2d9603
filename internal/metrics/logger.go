// Package metrics provides JSONL event logging for analytics.
package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger writes metrics events to JSONL file.
type Logger struct {
	file *os.File
	mu   sync.Mutex
}

// NewLogger creates a new metrics logger.
func NewLogger(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &Logger{file: file}, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

func (l *Logger) log(event string, data map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"event": event,
	}
	for k, v := range data {
		e[k] = v
	}

	line, _ := json.Marshal(e)
	l.file.Write(line)
	l.file.Write([]byte("\n"))
}

// LogAnalyze logs a file or repository analysis event.
func (l *Logger) LogAnalyze(target, language string, files int, latencyMs int64) {
	l.log("analyze", map[string]interface{}{
		"target":     target,
		"language":   language,
		"files":      files,
		"latency_ms": latencyMs,
	})
}

// LogSearch logs a search query event.
func (l *Logger) LogSearch(query, queryType string, results int, latencyMs int64) {
	l.log("search", map[string]interface{}{
		"query":      query,
		"query_type": queryType,
		"results":    results,
		"latency_ms": latencyMs,
	})
}

// LogIndexSave logs a persisted index snapshot.
func (l *Logger) LogIndexSave(path string, vectors int, generation uint64) {
	l.log("index_save", map[string]interface{}{
		"path":       path,
		"vectors":    vectors,
		"generation": generation,
	})
}

// LogAlert logs an ingested alert.
func (l *Logger) LogAlert(alertType, severity string, related int) {
	l.log("alert", map[string]interface{}{
		"alert_type": alertType,
		"severity":   severity,
		"related":    related,
	})
}

// LogError logs an error event.
func (l *Logger) LogError(operation, message string) {
	l.log("error", map[string]interface{}{
		"operation": operation,
		"message":   message,
	})
}
