package analyst

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Synthesizer produces the final answer text from a rendered prompt, either
// as one complete response or incrementally. Implementations must be safe to
// call from multiple goroutines; tests substitute a deterministic stub.
type Synthesizer interface {
	// Complete returns the full answer in one call.
	Complete(ctx context.Context, prompt string) (string, error)

	// Stream delivers answer fragments to onToken as they arrive and
	// returns the concatenated answer. A non-nil error from onToken
	// aborts the stream (the transport went away).
	Stream(ctx context.Context, prompt string, onToken func(token string) error) (string, error)
}

// ChatModelSynthesizer implements Synthesizer on an eino ChatModel.
type ChatModelSynthesizer struct {
	// model is the configured chat backend.
	model model.BaseChatModel
}

// NewSynthesizer wraps a ChatModel in a Synthesizer.
func NewSynthesizer(m model.BaseChatModel) (*ChatModelSynthesizer, error) {
	if m == nil {
		return nil, fmt.Errorf("analyst: chat model must not be nil")
	}
	return &ChatModelSynthesizer{model: m}, nil
}

// Complete invokes the model once and returns the response content.
func (s *ChatModelSynthesizer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("analyst: generate failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("analyst: generate returned nil response")
	}
	return resp.Content, nil
}

// Stream invokes the model in streaming mode, forwarding each non-empty
// content fragment to onToken in arrival order.
func (s *ChatModelSynthesizer) Stream(ctx context.Context, prompt string, onToken func(string) error) (string, error) {
	sr, err := s.model.Stream(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("analyst: stream failed: %w", err)
	}
	defer sr.Close()

	var buf strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("analyst: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		buf.WriteString(msg.Content)
		if err := onToken(msg.Content); err != nil {
			return "", fmt.Errorf("analyst: token delivery aborted: %w", err)
		}
	}

	return buf.String(), nil
}
