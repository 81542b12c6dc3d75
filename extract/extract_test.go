package extract

import (
	"strings"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title> Photosynthesis Basics </title><style>p { color: red }</style></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a></nav>
  <h1>Photosynthesis</h1>
  <p>Plants convert light into chemical energy.</p>
  <p>Chlorophyll absorbs   red and blue light.</p>
  <script>console.log("tracking")</script>
  <aside>Related links</aside>
  <footer>Copyright</footer>
</body>
</html>`

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a   b\t\tc", "a b c"},
		{"keeps paragraphs", "first line\n\n\n  second   para", "first line\n\nsecond para"},
		{"joins soft line breaks", "one\ntwo", "one two"},
		{"strips symbols", "price: $5 & up ©", "price: 5 up"},
		{"keeps punctuation", `He said, "hi!" (twice); ok?`, `He said, "hi!" (twice); ok?`},
		{"zero width and nbsp", "a\u200bb\u00a0c", "ab c"},
		{"nfkd ligature", "\ufb01ne", "fine"},
		{"blank", " \n\n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestHTML(t *testing.T) {
	content, err := HTML([]byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis Basics", content.Title)
	text := Normalize(content.Text)
	assert.Contains(t, text, "Plants convert light into chemical energy.")
	assert.Contains(t, text, "Chlorophyll absorbs red and blue light.")
	assert.NotContains(t, text, "Site header")
	assert.NotContains(t, text, "Home")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "Related links")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "color")
	assert.Contains(t, text, "\n\n", "block elements become paragraphs")
}

func TestHTML_TitleFallsBackToHeading(t *testing.T) {
	content, err := HTML([]byte(`<html><body><h1>Cell Biology</h1><p>Body text.</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Cell Biology", content.Title)
}

func TestExtract(t *testing.T) {
	e := New()

	t.Run("text", func(t *testing.T) {
		c, err := e.Extract(core.ContentTypeText, []byte("Hello   world.\n\nSecond paragraph."))
		require.NoError(t, err)
		assert.Equal(t, "Hello world.\n\nSecond paragraph.", c.Text)
	})

	t.Run("url is treated as html", func(t *testing.T) {
		c, err := e.Extract(core.ContentTypeURL, []byte(samplePage))
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis Basics", c.Title)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := e.Extract(core.ContentTypeText, []byte{0xff, 0xfe, 0xfd})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("no text", func(t *testing.T) {
		_, err := e.Extract(core.ContentTypeHTML, []byte("<html><body><script>x()</script></body></html>"))
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := e.Extract(core.ContentType("DOCX"), []byte("data"))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("not a pdf", func(t *testing.T) {
		_, err := e.Extract(core.ContentTypePDF, []byte("definitely not a pdf"))
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestExtract_MaxSize(t *testing.T) {
	e := New(WithMaxSize(10))
	_, err := e.Extract(core.ContentTypeText, []byte(strings.Repeat("a", 11)))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = e.Extract(core.ContentTypeText, []byte(strings.Repeat("a", 10)))
	assert.NoError(t, err)
}
