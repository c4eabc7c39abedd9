package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport records a recovered panic.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Component    string            `json:"component,omitempty"`
	Operation    string            `json:"operation,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// CrashHandler recovers panics in key and bus handlers, writes a report
// and lets the process keep serving.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	logger    *slog.Logger
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash reports; empty disables files.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Logger receives a summary line per crash.
	Logger *slog.Logger

	// OnCrash is called after a crash is recorded.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns the crash directory next to the default log file.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler creates a new CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{CrashDir: DefaultCrashDir()}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = Default().WithComponent("crash").Logger
	}
	return &CrashHandler{
		crashDir:  cfg.CrashDir,
		version:   cfg.Version,
		component: cfg.Component,
		logger:    logger,
		onCrash:   cfg.OnCrash,
	}
}

// Recover runs fn and converts a panic into a crash report. It reports
// whether fn returned normally.
func (h *CrashHandler) Recover(operation string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(operation, r, nil)
			ok = false
		}
	}()
	fn()
	return true
}

// HandlePanic records a recovered panic value.
func (h *CrashHandler) HandlePanic(operation string, panicValue any, contextInfo map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Operation:    operation,
		Context:      contextInfo,
	}

	path, err := h.writeCrashReport(report)
	if err != nil {
		h.logger.Error("failed to write crash report", "error", err)
	}
	h.logger.Error("recovered panic",
		"operation", operation,
		"panic", report.PanicValue,
		"report", path,
	)

	if h.onCrash != nil {
		h.onCrash(report)
	}
}

func (h *CrashHandler) writeCrashReport(report CrashReport) (string, error) {
	if h.crashDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.crashDir, 0o750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json",
		report.Component,
		report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports reads every report in the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes reports older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
