package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

const serviceName = "worklane-api"

var (
	loggerMu sync.Mutex
	logger   *log.Logger
)

// Logger returns the shared line writer. Everything the service emits,
// request logs and audit entries included, goes through this one logger so
// output stays interleaved correctly.
func Logger() *log.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	return logger
}

// SetOutput redirects the shared logger, used by tests to capture lines.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = log.New(w, "", 0)
}

// LogRequest emits the access-log line for a completed request, stamped
// with the service name and time alongside the handler-provided fields.
func LogRequest(fields map[string]any) {
	entry := map[string]any{
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"service": serviceName,
		"type":    "request",
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"service":%q,"type":"request","error":"log marshal failed"}`, serviceName)
		return
	}
	Logger().Println(string(data))
}
