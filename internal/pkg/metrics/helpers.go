package metrics

import (
	"strings"
)

// RecordStorageOperation records a persistence medium operation
// backend: medium name (e.g., "file", "sqlite", "memory", "session")
// operation: "get", "set", "delete"
func RecordStorageOperation(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperations.WithLabelValues(backend, operation, status).Inc()
}

// ClassifyTransportError categorizes network failures for metrics
func ClassifyTransportError(err error) string {
	if err == nil {
		return "none"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect"):
		return "connection"
	case strings.Contains(errStr, "tls") || strings.Contains(errStr, "certificate"):
		return "tls"
	case strings.Contains(errStr, "no such host"):
		return "dns"
	default:
		return "network"
	}
}
