package doctext

import "testing"

func TestFromPlain(t *testing.T) {
	e := FromPlain([]byte("line one\nline two\nline three"), Limits{})
	if e.Truncated {
		t.Error("small input must not truncate")
	}
	if e.ExtractedLines != 3 {
		t.Errorf("lines = %d, want 3", e.ExtractedLines)
	}
}

func TestFromPlainTruncates(t *testing.T) {
	e := FromPlain([]byte("0123456789abcdef"), Limits{MaxChars: 10})
	if !e.Truncated {
		t.Error("oversized input must be flagged truncated")
	}
	if len(e.Text) != 10 {
		t.Errorf("text length = %d, want 10", len(e.Text))
	}
}

func TestFromPlainEmpty(t *testing.T) {
	e := FromPlain(nil, Limits{MaxChars: 10})
	if e.ExtractedLines != 0 || e.Truncated {
		t.Errorf("empty input: %+v", e)
	}
}
