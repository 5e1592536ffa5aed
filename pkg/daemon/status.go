package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StatusFile represents the daemon startup status.
type StatusFile struct {
	Status      string    `json:"status"`                 // "ready" or "error"
	PID         int       `json:"pid,omitempty"`          // Process ID (only for ready status)
	Socket      string    `json:"socket,omitempty"`       // gRPC health socket (only for ready status)
	MetricsAddr string    `json:"metrics_addr,omitempty"` // HTTP address, if enabled
	StartedAt   time.Time `json:"started_at,omitzero"`
	Error       string    `json:"error,omitempty"` // Error message (only for error status)
}

// Ready reports whether the daemon finished starting.
func (s *StatusFile) Ready() bool {
	return s.Status == "ready"
}

// WriteStatusReady writes a ready status file. metricsAddr may be empty.
func WriteStatusReady(path, socket, metricsAddr string) error {
	status := StatusFile{
		Status:      "ready",
		PID:         os.Getpid(),
		Socket:      socket,
		MetricsAddr: metricsAddr,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
	return writeStatus(path, &status)
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	status := StatusFile{
		Status: "error",
		Error:  err.Error(),
	}
	return writeStatus(path, &status)
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating status directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}
