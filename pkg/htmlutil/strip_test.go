package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain text", "A boy wizard begins his training.", "A boy wizard begins his training."},
		{
			name:     "google books paragraphs",
			input:    "<p><b>The #1 New York Times bestseller.</b></p><p>Set on the desert planet Arrakis...</p>",
			expected: "The #1 New York Times bestseller.\nSet on the desert planet Arrakis...",
		},
		{
			name:     "inline emphasis keeps words together",
			input:    "<p>The apocalypse <i>will</i> be televised!</p>",
			expected: "The apocalypse will be televised!",
		},
		{
			name:     "line breaks in every form",
			input:    "Book one<br>Book two<br/>Book three<br />Book four",
			expected: "Book one\nBook two\nBook three\nBook four",
		},
		{
			name:     "attributes ignored",
			input:    `<div class="synopsis"><span style="font-weight: 600">Winner of the Hugo Award</span></div>`,
			expected: "Winner of the Hugo Award",
		},
		{
			name:     "award list",
			input:    "<ul><li>Hugo Award</li><li>Nebula Award</li></ul>",
			expected: "Hugo Award\nNebula Award",
		},
		{
			name:     "heading then body",
			input:    "<h3>About the author</h3><p>Frank Herbert was born in Tacoma.</p>",
			expected: "About the author\nFrank Herbert was born in Tacoma.",
		},
		{
			name:     "named entities",
			input:    "Pride &amp; Prejudice &mdash; &ldquo;a truth universally acknowledged&rdquo;",
			expected: "Pride & Prejudice \u2014 \u201Ca truth universally acknowledged\u201D",
		},
		{
			name:     "numeric entities",
			input:    "&#169; 1965 &#8211; Chilton Books",
			expected: "\u00A9 1965 \u2013 Chilton Books",
		},
		{"nbsp collapses", "Volume&nbsp;&nbsp;1", "Volume 1"},
		{"whitespace runs collapse", "Too    many\t\tspaces", "Too many spaces"},
		{"images dropped", "Cover <img src='cover.jpg'/> art", "Cover art"},
		{
			name:     "script and style dropped",
			input:    "<style>p{color:red}</style><p>Before</p><script>alert('x')</script><p>After</p>",
			expected: "Before\nAfter",
		},
		{
			name:     "blank paragraphs removed",
			input:    "<p>First</p><p>   </p><p></p><p>Second</p>",
			expected: "First\nSecond",
		},
		{
			name:     "unclosed tags",
			input:    "<p>Dangling <em>emphasis",
			expected: "Dangling emphasis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, StripTags(tt.input))
		})
	}
}
