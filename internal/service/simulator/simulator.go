package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/echocode/echo/backend/internal/logging"
)

const (
	// SuccessMessage is reported for non-blank source without any print call.
	SuccessMessage = "Code executed successfully"
	// EmptyMessage is reported for blank source.
	EmptyMessage = "No code to run"

	// DefaultDelay is the artificial run latency.
	DefaultDelay = time.Second
)

// Result is the console-style output of one simulated run.
type Result struct {
	Output string `json:"output"`
}

// Simulator approximates running Python source without executing it.
type Simulator struct {
	delay   time.Duration
	logger  *slog.Logger
	running atomic.Int32
}

// New creates a Simulator. A zero delay makes Run synchronous.
func New(logger *slog.Logger, delay time.Duration) *Simulator {
	if delay < 0 {
		delay = 0
	}
	return &Simulator{
		delay:  delay,
		logger: logging.OrDiscard(logger),
	}
}

// Running reports whether any run is inside its artificial delay.
func (s *Simulator) Running() bool {
	return s.running.Load() > 0
}

// Run produces the simulated output for source after the configured delay.
func (s *Simulator) Run(ctx context.Context, source string) (Result, error) {
	s.running.Add(1)
	defer s.running.Add(-1)

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	result := Simulate(source)
	s.logger.Debug("simulated run", "source_bytes", len(source), "output_bytes", len(result.Output))
	return result, nil
}

// Simulate is the synchronous core of Run.
func Simulate(source string) Result {
	if strings.TrimSpace(source) == "" {
		return Result{Output: EmptyMessage}
	}
	if line, ok := missingColon(source); ok {
		return Result{Output: fmt.Sprintf("SyntaxError: expected ':' after if statement (line %d)", line)}
	}

	calls := scanPrints(source)
	if len(calls) == 0 {
		return Result{Output: SuccessMessage}
	}
	out := make([]string, 0, len(calls))
	for _, call := range calls {
		out = append(out, unquote(call.Arg))
	}
	return Result{Output: strings.Join(out, "\n")}
}

func missingColon(source string) (int, bool) {
	for _, ll := range logicalLines(source) {
		switch leadingIdent(ll.Text) {
		case "if", "elif":
			if !hasBlockColon(ll.Text) {
				return ll.Line, true
			}
		}
	}
	return 0, false
}
