package session

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

const defaultDisplay = ":99"

var (
	displayOnce sync.Once
	displayErr  error
)

// EnsureDisplay starts one Xvfb server for the whole process on Linux hosts
// and points DISPLAY at it. Later calls return the first call's result.
func EnsureDisplay(display string, logger *zap.Logger) error {
	displayOnce.Do(func() {
		displayErr = startXvfb(displayName(display), logger)
	})
	return displayErr
}

func startXvfb(display string, logger *zap.Logger) error {
	if runtime.GOOS != "linux" {
		logger.Debug("virtual display skipped", zap.String("os", runtime.GOOS))
		return nil
	}
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1280x1024x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	if err := os.Setenv("DISPLAY", display); err != nil {
		return fmt.Errorf("set DISPLAY: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("xvfb exited", zap.Error(err))
		}
	}()
	logger.Info("virtual display started", zap.String("display", display), zap.Int("pid", cmd.Process.Pid))
	return nil
}

func displayName(display string) string {
	if display == "" {
		return defaultDisplay
	}
	return display
}
