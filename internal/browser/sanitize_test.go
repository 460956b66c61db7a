package browser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	dom := `<html><head><style>body{color:red}</style><script>alert(1)</script></head>
<body><!-- tracking --><h1>Project</h1><svg><path d="M0 0"/></svg>
<button id="deploy-btn">Deploy</button><noscript>enable js</noscript></body></html>`

	got := Sanitize(dom, 0)

	assert.Contains(t, got, `<button id="deploy-btn">Deploy</button>`)
	assert.Contains(t, got, "<h1>Project</h1>")
	for _, gone := range []string{"<script", "alert(1)", "<style", "color:red", "<svg", "<path", "tracking", "enable js"} {
		assert.NotContains(t, got, gone)
	}
}

func TestSanitize_Truncates(t *testing.T) {
	dom := "<body><p>" + strings.Repeat("é", 500) + "</p></body>"

	got := Sanitize(dom, 120)
	assert.LessOrEqual(t, len(got), 120)
	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.True(t, utf8.ValidString(got), "never cuts inside a rune")

	assert.Equal(t, "<p>short</p>", truncate("<p>short</p>", 100))
	assert.Equal(t, truncationMarker, truncate(strings.Repeat("x", 50), 5))
}
