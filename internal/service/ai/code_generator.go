package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/echocode/echo/backend/internal/config"
	"github.com/echocode/echo/backend/internal/logging"
	generation "github.com/echocode/echo/backend/internal/model/generation"
)

// ErrUnparseableReply is returned when the model answer holds neither a JSON result nor a code block.
var ErrUnparseableReply = errors.New("model reply contains no code")

// CodeGenerator turns a dictated prompt into Python code with an Ark chat model.
type CodeGenerator struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *slog.Logger
}

// NewCodeGenerator creates a generator backed by the configured Ark model.
func NewCodeGenerator(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*CodeGenerator, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewCodeGeneratorWithModel(ctx, chatModel, logger)
}

// NewCodeGeneratorWithModel compiles the generation chain around an existing chat model.
func NewCodeGeneratorWithModel(ctx context.Context, chatModel model.BaseChatModel, logger *slog.Logger) (*CodeGenerator, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{request}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile code generation chain: %w", err)
	}

	return &CodeGenerator{
		chain:  runnable,
		logger: logging.OrDiscard(logger),
	}, nil
}

// Generate runs the chain for req and extracts the code/explanation pair.
func (g *CodeGenerator) Generate(ctx context.Context, req generation.Request) (generation.Result, error) {
	input := map[string]any{
		"system":  codeSystemPrompt,
		"request": buildUserPrompt(req.Prompt, req.ExistingCode),
	}

	msg, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return generation.Result{}, fmt.Errorf("failed to run code generation chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return generation.Result{}, ErrUnparseableReply
	}

	result, err := parseCodeReply(msg.Content)
	if err != nil {
		g.logger.Warn("code generation reply not understood", "error", err, "reply_bytes", len(msg.Content))
		return generation.Result{}, err
	}

	g.logger.Info("generated code", "prompt_bytes", len(req.Prompt), "code_bytes", len(result.Code))
	return result, nil
}

// parseCodeReply reads the JSON object the model was asked for, falling back to
// the first fenced code block with the surrounding prose as explanation.
func parseCodeReply(content string) (generation.Result, error) {
	trimmed := strings.TrimSpace(content)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end > start {
		var payload generation.Result
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err == nil && strings.TrimSpace(payload.Code) != "" {
			payload.Explanation = strings.TrimSpace(payload.Explanation)
			return payload, nil
		}
	}

	if code, prose, ok := extractFencedCode(trimmed); ok {
		return generation.Result{Code: code, Explanation: prose}, nil
	}
	return generation.Result{}, ErrUnparseableReply
}

// extractFencedCode returns the body of the first ``` block and the text around it.
func extractFencedCode(content string) (code, prose string, ok bool) {
	const fence = "```"

	open := strings.Index(content, fence)
	if open == -1 {
		return "", "", false
	}
	bodyStart := open + len(fence)
	// Skip the info string, e.g. ```python.
	if nl := strings.IndexByte(content[bodyStart:], '\n'); nl != -1 {
		bodyStart += nl + 1
	} else {
		return "", "", false
	}

	closeIdx := strings.Index(content[bodyStart:], fence)
	if closeIdx == -1 {
		return "", "", false
	}
	code = strings.TrimRight(content[bodyStart:bodyStart+closeIdx], "\n")
	if strings.TrimSpace(code) == "" {
		return "", "", false
	}

	before := strings.TrimSpace(content[:open])
	after := strings.TrimSpace(content[bodyStart+closeIdx+len(fence):])
	prose = strings.TrimSpace(before + "\n" + after)
	return code, prose, true
}
