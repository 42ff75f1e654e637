package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Prompter solicits values from the operator.
type Prompter interface {
	// PromptCalibration blocks until the operator enters a calibration value.
	PromptCalibration(ctx context.Context) (float64, error)
}

// Stdio prompts on an io pair, by default the process stdin/stdout.
type Stdio struct {
	// in is where operator input is read from.
	in *bufio.Reader
	// out is where the prompt text is written.
	out io.Writer
}

// NewStdio builds a prompter on the process stdin/stdout.
func NewStdio() *Stdio {
	return NewStdioWith(os.Stdin, os.Stdout)
}

// NewStdioWith builds a prompter on the provided reader and writer.
// Tests pass scripted input here.
func NewStdioWith(in io.Reader, out io.Writer) *Stdio {
	return &Stdio{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// PromptCalibration asks for a calibration value and re-asks until the
// operator enters a parseable number. The read itself has no timeout; a
// canceled context is only noticed between attempts.
func (s *Stdio) PromptCalibration(ctx context.Context) (float64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if _, err := fmt.Fprint(s.out, "Calibration value: "); err != nil {
			return 0, fmt.Errorf("write prompt: %w", err)
		}

		line, err := s.in.ReadString('\n')
		if err != nil && line == "" {
			return 0, fmt.Errorf("read operator input: %w", err)
		}

		value, parseErr := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if parseErr != nil {
			if _, err := fmt.Fprintln(s.out, "Please enter a number."); err != nil {
				return 0, fmt.Errorf("write prompt: %w", err)
			}

			continue
		}

		return value, nil
	}
}
