package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "plain paragraph",
			html:     "<p>Assignment is due tomorrow.</p>",
			expected: "Assignment is due tomorrow.",
		},
		{
			name:     "heading and paragraph",
			html:     "<h3>Reminder</h3><p>Submit your work.</p>",
			expected: "### Reminder\n\nSubmit your work.",
		},
		{
			name:     "link",
			html:     `<p>See <a href="https://moodle.example.com/course/1">the course page</a>.</p>`,
			expected: "See [the course page](https://moodle.example.com/course/1).",
		},
		{
			name:     "emphasis",
			html:     "<p><strong>Important:</strong> read <em>carefully</em>.</p>",
			expected: "**Important:** read *carefully*.",
		},
		{
			name:     "list",
			html:     "<ul><li>First task</li><li>Second task</li></ul>",
			expected: "- First task\n- Second task",
		},
		{
			name:     "linked image dropped",
			html:     `<p><a href="https://moodle.example.com"><img src="https://moodle.example.com/logo.png"></a>Hello</p>`,
			expected: "Hello",
		},
		{
			name:     "horizontal rule dropped",
			html:     "<p>Before</p><hr><p>After</p>",
			expected: "Before\n\nAfter",
		},
		{
			name:     "collapses inter-tag whitespace",
			html:     "<div>\n  <p>Line one</p>\n  <p>Line two</p>\n</div>",
			expected: "Line one\n\nLine two",
		},
		{
			name:     "empty input",
			html:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Hello", Clean("[![badge](https://img.example.com/b.png)](https://example.com)Hello"))
	assert.Equal(t, "a\n\nb", Clean("a\n\n\n\n\nb"))
	assert.Equal(t, "trailing", Clean("trailing   \n\n"))
	assert.Equal(t, "a\n\nb", Clean("a\n* * *\nb"))
}
