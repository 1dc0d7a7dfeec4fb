package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPIDPath is used when no PID file location is configured
const DefaultPIDPath = "/var/run/sessionkv.pid"

// GetPIDPath resolves a configured PID file name. Relative names resolve
// against the working directory when their parent directory exists.
func GetPIDPath(filename string) string {
	if filename == "" {
		return DefaultPIDPath
	}
	if filepath.IsAbs(filename) {
		return filename
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return DefaultPIDPath
	}
	if _, err := os.Stat(filepath.Dir(abs)); err != nil {
		return DefaultPIDPath
	}
	return abs
}

// PIDFile owns the PID file of the running server
type PIDFile struct {
	path string
}

// NewPIDFile creates a PIDFile for the resolved path of filename
func NewPIDFile(filename string) *PIDFile {
	return &PIDFile{path: GetPIDPath(filename)}
}

// Path returns the PID file location
func (p *PIDFile) Path() string {
	return p.path
}

// Write records the current process id
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// Read returns the process id stored in the file
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", p.path, err)
	}
	return pid, nil
}

// Remove deletes the PID file, ignoring a file that is already gone
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
