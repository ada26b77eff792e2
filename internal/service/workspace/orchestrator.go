package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/model/generation"
	"github.com/echocode/echo/backend/internal/model/session"
)

const (
	// WelcomeCode is shown before anything has been generated.
	WelcomeCode = "Welcome to Echo!, Your generated Python code will appear here!"
	// ErrorPlaceholder replaces the generated code after a failed generation.
	ErrorPlaceholder = "Error generating code. Please try again."

	// ExportName is the file name of exported code.
	ExportName = "generated_code.py"
	// ExportContentType is the media type of exported code.
	ExportContentType = "text/plain; charset=utf-8"
)

var (
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrBusy             = errors.New("a generation is already in progress")
	ErrGenerationFailed = errors.New("generation failed")
	ErrNoGenerator      = errors.New("no generation service configured")
	ErrInvalidFile      = errors.New("file is not valid UTF-8 text")
)

// Generator produces code for a request.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req generation.Request) (generation.Result, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req generation.Request) (generation.Result, error) {
	return f(ctx, req)
}

// State is a read-only view of the editor.
type State struct {
	GeneratedCode string `json:"generatedCode"`
	Explanation   string `json:"explanation"`
	ExistingCode  string `json:"existingCode"`
	FileName      string `json:"fileName,omitempty"`
	Busy          bool   `json:"busy"`
	HistoryLength int    `json:"historyLength"`
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock used for conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the generated-code state and the conversation log.
type Orchestrator struct {
	generator Generator
	logger    *slog.Logger
	now       func() time.Time

	mu            sync.RWMutex
	generatedCode string
	explanation   string
	existingCode  string
	fileName      string
	busy          bool
	history       []generation.ConversationEntry
}

// New creates an Orchestrator. A nil generator makes every generation fail with ErrNoGenerator.
func New(generator Generator, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator:     generator,
		logger:        logging.OrDiscard(logger),
		now:           time.Now,
		generatedCode: WelcomeCode,
		history:       make([]generation.ConversationEntry, 0, 16),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HasGenerator reports whether a code generator is configured.
func (o *Orchestrator) HasGenerator() bool {
	return o.generator != nil
}

// Generate asks the generator for code using the current existing code as context.
func (o *Orchestrator) Generate(ctx context.Context, transcript string) (generation.Result, error) {
	o.mu.RLock()
	existing := o.existingCode
	o.mu.RUnlock()
	return o.GenerateWith(ctx, transcript, existing)
}

// GenerateWith asks the generator for code with an explicit existing-code context.
// Only one generation may be outstanding; a second call returns ErrBusy.
func (o *Orchestrator) GenerateWith(ctx context.Context, transcript, existingCode string) (generation.Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return generation.Result{}, ErrEmptyPrompt
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return generation.Result{}, ErrBusy
	}
	o.busy = true
	o.mu.Unlock()

	req := generation.Request{Prompt: transcript, ExistingCode: existingCode}
	result, err := o.callGenerator(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false

	if err != nil {
		o.generatedCode = ErrorPlaceholder
		o.logger.Error("generation failed", "error", err, "prompt_bytes", len(req.Prompt))
		return generation.Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	o.generatedCode = result.Code
	o.explanation = result.Explanation
	o.history = append(o.history, generation.ConversationEntry{
		ID:          uuid.NewString(),
		Prompt:      req.Prompt,
		Code:        result.Code,
		Explanation: result.Explanation,
		Timestamp:   o.now().UTC(),
	})
	o.logger.Info("generation completed", "code_bytes", len(result.Code), "history", len(o.history))
	return result, nil
}

func (o *Orchestrator) callGenerator(ctx context.Context, req generation.Request) (generation.Result, error) {
	if o.generator == nil {
		return generation.Result{}, ErrNoGenerator
	}
	result, err := o.generator.Generate(ctx, req)
	if err != nil {
		return generation.Result{}, err
	}
	if strings.TrimSpace(result.Code) == "" {
		return generation.Result{}, errors.New("generation result missing code")
	}
	return result, nil
}

// ImportFile makes an uploaded text file both the existing-code context and the displayed code.
func (o *Orchestrator) ImportFile(name, content string) (State, error) {
	if !utf8.ValidString(content) {
		return State{}, ErrInvalidFile
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.fileName = name
	o.existingCode = content
	o.generatedCode = content
	o.logger.Info("file imported", "name", name, "bytes", len(content))
	return o.snapshotLocked(), nil
}

// Export returns the current generated code as a downloadable artifact.
func (o *Orchestrator) Export() generation.Artifact {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return generation.Artifact{
		Name:        ExportName,
		ContentType: ExportContentType,
		Content:     o.generatedCode,
	}
}

// SetGeneratedCode replaces the displayed code, e.g. after an editor change.
func (o *Orchestrator) SetGeneratedCode(code string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generatedCode = code
	return o.snapshotLocked()
}

// SetExistingCode replaces the context sent with the next generation.
func (o *Orchestrator) SetExistingCode(code string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.existingCode = code
	return o.snapshotLocked()
}

// Restore puts a saved session's code back into the editor.
func (o *Orchestrator) Restore(saved session.SavedSession) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generatedCode = saved.Code
	o.logger.Info("session restored", "id", saved.ID)
	return o.snapshotLocked()
}

// History returns a copy of the conversation log, oldest first.
func (o *Orchestrator) History() []generation.ConversationEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	copied := make([]generation.ConversationEntry, len(o.history))
	copy(copied, o.history)
	return copied
}

// Busy reports whether a generation is outstanding.
func (o *Orchestrator) Busy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.busy
}

// Snapshot returns the current editor state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	return State{
		GeneratedCode: o.generatedCode,
		Explanation:   o.explanation,
		ExistingCode:  o.existingCode,
		FileName:      o.fileName,
		Busy:          o.busy,
		HistoryLength: len(o.history),
	}
}
