package htmltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "  no   tags here ", "no tags here"},
		{"paragraphs get a separator", "<p>First</p><p>Second</p>", "First Second"},
		{"inline markup keeps order", "<p>a <b>bold</b> claim</p>", "a bold claim"},
		{"entities decoded", "<p>Fish &amp; chips &mdash; cheap</p>", "Fish & chips — cheap"},
		{"bare entity", "R&amp;D spending", "R&D spending"},
		{"script dropped", "<p>keep</p><script>alert(1)</script>", "keep"},
		{"links flattened", `Read <a href="https://x">the report</a>.`, "Read the report ."},
		{"line breaks", "one<br>two<br/>three", "one two three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
