package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Task is one unit of ingestion work as produced upstream. The JSON field
// names are the wire contract shared with the producer.
type Task struct {
	// UserID identifies the submitting tenant or user.
	UserID string `json:"user_id" validate:"required"`

	// DocumentID is the caller-assigned point key. It must be stable across
	// retries — it is the idempotency key for the upsert.
	DocumentID string `json:"document_id" validate:"required"`

	// Content is the raw text to embed.
	Content string `json:"content" validate:"required"`

	// Metadata is an open mapping of scalar attributes (source, region,
	// title, timestamps). Optional; defaults to empty.
	Metadata map[string]any `json:"metadata"`
}

// validate is the package-level struct validator. validator.Validate caches
// struct metadata and is safe for concurrent use.
var validate = validator.New()

// Sentinel errors classifying why a message is poison. Both lead to the same
// discard behavior; they are distinguished only for metrics and logs.
var (
	// errUndecodable marks a message that is not valid JSON.
	errUndecodable = errors.New("undecodable task")
	// errInvalid marks a decoded task missing a required field.
	errInvalid = errors.New("invalid task")
)

// decodeTask parses a raw queue message into a Task and checks the required
// fields. A non-nil error means the message is poison: it can never succeed
// and must be discarded without side effects, not retried.
func decodeTask(raw []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("worker: %w: %v", errUndecodable, err)
	}

	if err := validate.Struct(&t); err != nil {
		return nil, fmt.Errorf("worker: %w: %v", errInvalid, err)
	}

	// Whitespace-only content passes the required check but embeds nothing
	// useful; treat it as invalid like the empty string.
	if strings.TrimSpace(t.Content) == "" {
		return nil, fmt.Errorf("worker: %w: content is blank", errInvalid)
	}

	return &t, nil
}

// payload builds the vector-store payload for the task: the metadata merged
// with a page_content field holding the original text. page_content wins on
// key collision so retrieval can always recover the source text.
func (t *Task) payload() map[string]any {
	p := make(map[string]any, len(t.Metadata)+1)
	for k, v := range t.Metadata {
		p[k] = v
	}
	p["page_content"] = t.Content
	return p
}
