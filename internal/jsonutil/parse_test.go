package jsonutil

import "testing"

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "json fence",
			input: "```json\n[{\"a\":1}]\n```",
			want:  "[{\"a\":1}]",
		},
		{
			name:  "bare fence",
			input: "```\n[1,2]\n```",
			want:  "[1,2]",
		},
		{
			name:  "no fence",
			input: "[1,2]",
			want:  "[1,2]",
		},
		{
			name:  "multiline body",
			input: "```json\n[\n  1,\n  2\n]\n```",
			want:  "[\n  1,\n  2\n]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	got, err := ExtractJSONArray("Here are the extracted rows:\n```json\n[{\"data\":{}}]\n```\nLet me know if you need more.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[{\"data\":{}}]" {
		t.Errorf("unexpected extraction: %q", got)
	}
}

func TestExtractJSONArrayMissing(t *testing.T) {
	if _, err := ExtractJSONArray("no array here"); err == nil {
		t.Fatal("expected error")
	}
}
