package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogSecurity emits a structured security log line, used when the audit sink
// itself is unreachable and the event would otherwise be lost.
func LogSecurity(event string, severity string, fields map[string]any) {
	entry := map[string]any{
		"type":     "security",
		"event":    event,
		"severity": severity,
	}
	for k, v := range fields {
		entry[k] = v
	}
	LogRequest(entry)
}
