// Package notify provides cross-platform desktop notifications for megadl.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/nshenoy/megadl/internal/logging"
)

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	mu      sync.RWMutex
}

// Config holds notification configuration. NewNotifier keeps only
// Enabled; the Show* flags are checked by the caller (the get command)
// before it calls NotifyBatchComplete or NotifyFileFailed.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowBatchComplete shows a notification when a download session finishes.
	ShowBatchComplete bool

	// ShowFileFailed shows a notification for each file that fails.
	ShowFileFailed bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		ShowBatchComplete: true,
		ShowFileFailed:    false, // one file failing mid-batch is common; avoid spam
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Notifier{
		logger:  logger,
		enabled: cfg.Enabled,
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// NotifyBatchComplete sends a notification summarizing a finished download
// session: how many files succeeded, how many failed, and where they landed.
func (n *Notifier) NotifyBatchComplete(succeeded, failed int, destDir string) {
	if !n.IsEnabled() {
		return
	}

	title := "megadl: download complete"
	var message string
	switch {
	case failed == 0:
		message = fmt.Sprintf("%d file(s) downloaded to:\n%s", succeeded, shortenPath(destDir))
	case succeeded == 0:
		message = fmt.Sprintf("All %d file(s) failed.", failed)
	default:
		message = fmt.Sprintf("%d file(s) downloaded, %d failed.\n%s", succeeded, failed, shortenPath(destDir))
	}

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Int("succeeded", succeeded).Int("failed", failed).Msg("failed to send batch complete notification")
	}
}

// NotifyFileFailed sends a notification for a single file failure.
func (n *Notifier) NotifyFileFailed(name string, errMsg string) {
	if !n.IsEnabled() {
		return
	}

	title := "megadl: file failed"
	message := fmt.Sprintf("%s\n%s", truncate(name, 40), truncate(errMsg, 100))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("file", name).Msg("failed to send file failed notification")
	}
}

// send is the internal method that actually sends the notification.
func (n *Notifier) send(title, message string) error {
	// beeep.Notify is cross-platform:
	// - Windows: Uses toast notifications
	// - macOS: Uses NSUserNotificationCenter
	// - Linux: Uses D-Bus notifications
	return beeep.Notify(title, message, "")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))

	short := filepath.Join("...", parentDir, file)

	vol := filepath.VolumeName(path)
	if vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}

	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}

	return short
}

// ParseNotifyConfig parses notification settings loaded from TOML.
// Expected keys: enabled, show_batch_complete, show_file_failed
func ParseNotifyConfig(settings map[string]string) *Config {
	cfg := DefaultConfig()

	if v, ok := settings["enabled"]; ok {
		cfg.Enabled = strings.ToLower(v) == "true"
	}
	if v, ok := settings["show_batch_complete"]; ok {
		cfg.ShowBatchComplete = strings.ToLower(v) == "true"
	}
	if v, ok := settings["show_file_failed"]; ok {
		cfg.ShowFileFailed = strings.ToLower(v) == "true"
	}

	return cfg
}
