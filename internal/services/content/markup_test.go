package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain text", input: "just text", want: "just text"},
		{name: "adjacent blocks are separated", input: "<p>First</p><p>Second</p>", want: "First Second"},
		{name: "whitespace collapsed", input: "<div>\n  Hello\n\n   <b>world</b>  </div>", want: "Hello world"},
		{name: "script and style removed", input: "<style>p{}</style><p>Body</p><script>alert(1)</script>", want: "Body"},
		{name: "entities decoded", input: "<p>Fish &amp; chips</p>", want: "Fish & chips"},
		{name: "comments dropped", input: "<p>a<!-- hidden -->b</p>", want: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.input))
		})
	}
}

func TestPlainText_Markdown(t *testing.T) {
	got := PlainText("# Title\n\nSome **bold** text.", "markdown")
	assert.Equal(t, "Title Some bold text.", got)
}
