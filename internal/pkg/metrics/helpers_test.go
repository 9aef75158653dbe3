package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "none"},
		{"client timeout", errors.New("net/http: request canceled (Client.Timeout exceeded)"), "timeout"},
		{"deadline", errors.New("context deadline exceeded"), "timeout"},
		{"refused", errors.New("dial tcp: connection refused"), "connection"},
		{"tls", errors.New("tls: handshake failure"), "tls"},
		{"dns", errors.New("lookup api.invalid: no such host"), "dns"},
		{"other", errors.New("EOF"), "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTransportError(tt.err); got != tt.expected {
				t.Errorf("ClassifyTransportError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRecordStorageOperation(t *testing.T) {
	before := testutil.ToFloat64(StorageOperations.WithLabelValues("memory", "set", "error"))
	RecordStorageOperation("memory", "set", errors.New("boom"))
	after := testutil.ToFloat64(StorageOperations.WithLabelValues("memory", "set", "error"))

	if after-before != 1 {
		t.Errorf("expected error counter to grow by 1, grew by %v", after-before)
	}
}
