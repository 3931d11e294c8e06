package rag

import "testing"

func TestScoredPoint_Content(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"present", map[string]any{"page_content": "BTC rallies"}, "BTC rallies"},
		{"missing", map[string]any{"source": "wsj"}, ""},
		{"nil payload", nil, ""},
		{"wrong type", map[string]any{"page_content": int64(42)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := ScoredPoint{Payload: tt.payload}
			if got := p.Content(); got != tt.want {
				t.Errorf("Content() = %q, want %q", got, tt.want)
			}
		})
	}
}
