package browser

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// display is an Xvfb server for headful Chrome.
type display struct {
	name   string
	cmd    *exec.Cmd
	logger *slog.Logger
}

func startDisplay(name string, logger *slog.Logger) (*display, error) {
	cmd := exec.Command("Xvfb", name, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start xvfb: %w", err)
	}
	// Xvfb has no readiness signal.
	time.Sleep(500 * time.Millisecond)
	logger.Info("browser: xvfb started", "display", name, "pid", cmd.Process.Pid)
	return &display{name: name, cmd: cmd, logger: logger}, nil
}

func (d *display) stop() {
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}
	d.logger.Info("browser: xvfb stopped", "display", d.name)
}
