//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/aperez/cmb-readout/internal/domain/run"
)

// DetectOperator gathers host and user information for the record header.
func DetectOperator() (*run.Operator, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &run.Operator{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
