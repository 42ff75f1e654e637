//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ErrInstrumentBusy is returned when another readout process already owns
// the instrument. Only one run may drive the receiver at a time.
var ErrInstrumentBusy = fmt.Errorf("another readout process is already running")

// EnsureExclusiveRun scans the process table for another instance of this
// executable. The serial line to the meter tolerates exactly one owner, so a
// second invocation refuses to start instead of corrupting a run in flight.
func EnsureExclusiveRun() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	processes, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	name := filepath.Base(self)
	pid := os.Getpid()

	for _, process := range processes {
		if process.Pid() == pid {
			continue
		}

		if strings.EqualFold(process.Executable(), name) {
			return fmt.Errorf("%w (pid %d)", ErrInstrumentBusy, process.Pid())
		}
	}

	return nil
}
