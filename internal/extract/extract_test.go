package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/noveld/internal/textnorm"
)

func para(i int) string {
	return fmt.Sprintf("Paragraph %d: the caravan crossed the salt flats before the wind turned against them.", i)
}

func paragraphs(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		b.WriteString("<p>" + para(i) + "</p>\n")
	}
	return b.String()
}

func TestExtract_ContainerBeatsParagraphs(t *testing.T) {
	html := `<html><head><title>Site</title></head><body>
		<h1>Chapter 12: Salt</h1>
		<div id="content">` + paragraphs(3) + `</div>
		<div class="comments">` + paragraphs(6) + `</div>
	</body></html>`

	res := New().Extract(html, "fallback")

	require.True(t, res.Found)
	assert.Equal(t, "container", res.Strategy)
	assert.Equal(t, "Chapter 12: Salt", res.Title)
	assert.Equal(t, strings.Join([]string{para(1), para(2), para(3)}, "\n\n"), textnorm.Normalize(res.Body))
}

func TestExtract_SkipsBoilerplateContainer(t *testing.T) {
	html := `<html><body>
		<h1>Chapter 3</h1>
		<div id="content">` + paragraphs(4) + `<p>Copyright 2024 Example Novels. All Rights Reserved.</p></div>
	</body></html>`

	res := New().Extract(html, "fallback")

	require.True(t, res.Found)
	assert.Equal(t, "paragraphs", res.Strategy)
	assert.NotContains(t, res.Body, "Copyright")
	assert.Contains(t, res.Body, para(4))
}

func TestExtract_BoilerplateMatchedAfterDecoding(t *testing.T) {
	html := `<html><body>
		<div id="content">` + strings.Repeat("A quiet sentence about rain. ", 10) + `&#169; example</div>
	</body></html>`

	res := New().Extract(html, "fallback")
	assert.NotEqual(t, "container", res.Strategy)
}

func TestExtract_LongestBlock(t *testing.T) {
	long := strings.Repeat("She counted the lanterns one by one.<br>", 12)
	html := `<html><body>
		<div class="wrap">
			<div class="nav">Home | Next | Prev</div>
			<div class="x">` + long + `</div>
			<div class="footer">Visit www.example.com</div>
		</div>
	</body></html>`

	res := New().Extract(html, "fallback")

	require.True(t, res.Found)
	assert.Equal(t, "longest-block", res.Strategy)
	assert.Equal(t, "fallback", res.Title)
	assert.Equal(t, 12, strings.Count(res.Body, "She counted the lanterns one by one."))
	assert.NotContains(t, res.Body, "Home")
}

func TestExtract_Unavailable(t *testing.T) {
	res := New().Extract(`<html><body><p>short</p></body></html>`, "Chapter 9")

	assert.False(t, res.Found)
	assert.Equal(t, Unavailable, res.Body)
	assert.Equal(t, "Chapter 9", res.Title)
}

func TestExtract_TitleBounds(t *testing.T) {
	html := `<html><body><h1>` + strings.Repeat("x", 250) + `</h1><h2>Real &amp; Short</h2></body></html>`
	res := New().Extract(html, "fallback")
	assert.Equal(t, "Real & Short", res.Title)
}

type fixedStrategy string

func (f fixedStrategy) Name() string { return "fixed" }

func (f fixedStrategy) Extract(*goquery.Document) (string, bool) { return string(f), true }

func TestExtract_PrependedStrategyWins(t *testing.T) {
	html := `<html><body><div id="content">` + paragraphs(5) + `</div></body></html>`

	res := New(WithPrepended(fixedStrategy("site specific body"))).Extract(html, "")
	assert.Equal(t, "fixed", res.Strategy)
	assert.Equal(t, "site specific body", res.Body)
}

func TestText_BlockAware(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div>line1<br>line2<p>
			para   one
		</p><script>var x = 1;</script></div>`))
	require.NoError(t, err)

	raw := Text(doc.Find("div"))
	assert.Equal(t, "line1\nline2\n\n para one", raw)
	assert.Equal(t, "line1\nline2\n\npara one", textnorm.Normalize(raw))
}

func TestExtract_KeepsLayoutForAssembler(t *testing.T) {
	body := strings.Repeat("The lanterns swayed over the harbor while the tide came in. ", 3)
	html := `<html><body><div id="content">&nbsp;&nbsp;` + body + `<br><br><br><br><br>&nbsp;&nbsp;` + body + `</div></body></html>`

	res := New().Extract(html, "")

	require.True(t, res.Found)
	assert.True(t, strings.HasPrefix(res.Body, "  The lanterns"), "leading indent kept")
	assert.Contains(t, res.Body, "\n\n\n", "blank run kept")
	assert.NotContains(t, textnorm.Normalize(res.Body), "\n\n\n")
}

func TestDecode(t *testing.T) {
	assert.Equal(t, "Tom & Jerry 一 !", Decode("Tom &amp; Jerry &#x4E00;&nbsp;!"))
	assert.Equal(t, "第", Decode("&#31532;"))
}

func TestIsBoilerplate(t *testing.T) {
	assert.True(t, IsBoilerplate("Copyright 2020"))
	assert.True(t, IsBoilerplate("本站版权所有"))
	assert.True(t, IsBoilerplate("read more at https://example.com"))
	assert.True(t, IsBoilerplate("All Rights Reserved"))
	assert.False(t, IsBoilerplate("The river ran quietly past the mill."))
}
