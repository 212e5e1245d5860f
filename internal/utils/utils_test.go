package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderContentSanitizes(t *testing.T) {
	out := string(RenderContent("**Hala** Madrid <script>alert(1)</script>"))
	assert.Contains(t, out, "<strong>Hala</strong>")
	assert.NotContains(t, out, "<script>")

	assert.Empty(t, RenderContent("   "))
}

func TestRenderContentEmbedsYouTube(t *testing.T) {
	out := string(RenderContent("https://www.youtube.com/watch?v=abc123"))
	assert.Contains(t, out, "https://www.youtube.com/embed/abc123")

	out = string(RenderContent("https://youtu.be/xyz"))
	assert.Contains(t, out, "https://www.youtube.com/embed/xyz")

	out = string(RenderContent("shiko https://example.com"))
	assert.NotContains(t, out, "iframe")
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Hala Madrid", PlainText("<p>Hala <b>Madrid</b></p>", 0))
	assert.Equal(t, "Hala…", PlainText("<p>Hala Madrid</p>", 4))
}

func TestTTLCache(t *testing.T) {
	c := NewTTLCache[string](2)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", "1", time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("b", "2", time.Minute)
	c.Delete("b")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestConv(t *testing.T) {
	assert.Equal(t, 10, IntOr("abc", 10))
	assert.Equal(t, 10, IntOr("-1", 10))
	assert.Equal(t, 5, IntOr("5", 10))

	id, ok := ParseID("42")
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)
	_, ok = ParseID("0")
	assert.False(t, ok)

	assert.Equal(t, "tani", TimeAgo(time.Now()))
	assert.True(t, strings.HasSuffix(TimeAgo(time.Now().Add(-2*time.Hour)), "orë më parë"))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "LM", Initials("luka modrić"))
	assert.Equal(t, "TK", Initials("Toni Kroos Jr"))
	assert.Equal(t, "U", Initials(""))
	assert.Equal(t, "Ë", Initials("ëmbëlsira"))
}
