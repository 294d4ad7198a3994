package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"camlapse/internal/lapse"
)

// CommandDevice captures a frame by running an external program such as
// fswebcam or libcamera-still. Arguments may contain {device} and {output}.
type CommandDevice struct {
	device string
	argv   []string
}

var _ lapse.CaptureDevice = (*CommandDevice)(nil)

func NewCommandDevice(device string, argv []string) (*CommandDevice, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("capture command must not be empty")
	}
	hasOutput := false
	for _, a := range argv {
		if strings.Contains(a, "{output}") {
			hasOutput = true
		}
	}
	if !hasOutput {
		return nil, fmt.Errorf("capture command must reference {output}")
	}
	return &CommandDevice{device: device, argv: argv}, nil
}

func (d *CommandDevice) args(destPath string) []string {
	r := strings.NewReplacer("{device}", d.device, "{output}", destPath)
	out := make([]string, len(d.argv))
	for i, a := range d.argv {
		out[i] = r.Replace(a)
	}
	return out
}

func (d *CommandDevice) Capture(ctx context.Context, destPath string) error {
	args := d.args(destPath)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children of the tool may hold stderr open after it is killed.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}

	// Some tools exit 0 without writing when the device is busy.
	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("%s produced no frame: %w", args[0], err)
	}
	if info.Size() == 0 {
		os.Remove(destPath)
		return fmt.Errorf("%s produced an empty frame", args[0])
	}
	return nil
}
