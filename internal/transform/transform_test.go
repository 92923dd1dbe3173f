package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

func chapterRef() book.ChapterRef {
	return book.ChapterRef{
		Index:       1,
		Title:       "Chapter One",
		Filename:    "ch01.xhtml",
		Stylesheets: []string{"Styles/Style00.css"},
	}
}

func wrap(content string) []byte {
	return []byte(`<html><head><title>reader</title></head><body>
		<div class="reader-chrome">nav nav nav</div>
		<div id="sbo-rt-content">` + content + `</div>
	</body></html>`)
}

func mustTransform(t *testing.T, markup []byte, opts Options) *TransformedChapter {
	t.Helper()
	tc, err := Transform(markup, chapterRef(), opts)
	require.NoError(t, err)
	return tc
}

func TestTransformExtractsContentRoot(t *testing.T) {
	tc := mustTransform(t, wrap("<p>hello</p>"), Options{})
	s := string(tc.Content)
	assert.Contains(t, s, "<p>hello</p>")
	assert.NotContains(t, s, "reader-chrome", "markup outside the content root is dropped")
	assert.Contains(t, s, "<title>Chapter One</title>")
	assert.Contains(t, s, `<link href="Styles/Style00.css" rel="stylesheet" type="text/css" />`)
}

func TestTransformMissingContentRoot(t *testing.T) {
	_, err := Transform([]byte("<html><body><p>no root here</p></body></html>"), chapterRef(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryContent))
}

func TestTransformRepairsMalformedMarkup(t *testing.T) {
	// unclosed tags parse best-effort
	tc := mustTransform(t, wrap("<p>broken <b>bold<p>next"), Options{})
	assert.Contains(t, string(tc.Content), "broken")
	assert.Contains(t, string(tc.Content), "next")
}

func TestLinkRewriting(t *testing.T) {
	markup := wrap(`
		<a href="ch02.html">next chapter</a>
		<a href="ch02.html#anchor">anchored</a>
		<a href="mailto:someone@example.com">mail</a>
		<a href="https://elsewhere.example.com/page.html">external</a>
		<a href="https://learning.example.com/library/view/x/12345/ch03.html">absolute intra-book</a>
		<img src="graphics/fig1.png" />
	`)
	tc := mustTransform(t, markup, Options{BookID: "12345"})
	s := string(tc.Content)
	assert.Contains(t, s, `href="ch02.xhtml"`)
	assert.Contains(t, s, `href="ch02.xhtml#anchor"`)
	assert.Contains(t, s, `href="mailto:someone@example.com"`)
	assert.Contains(t, s, `href="https://elsewhere.example.com/page.html"`)
	assert.Contains(t, s, `href="ch03.xhtml"`)
	assert.Contains(t, s, `src="Images/fig1.png"`)
}

func TestReplaceLinkTable(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"cover.html", "Images/cover.html"}, // cover marker forces image treatment
		{"assets/diagram.jpeg", "Images/diagram.jpeg"},
		{"ch05.html", "ch05.xhtml"},
		{"", ""},
		{"mailto:a@b.c", "mailto:a@b.c"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, replaceLink(c.in, "12345"), "input %q", c.in)
	}
}

func TestStyleExclusionRules(t *testing.T) {
	markup := wrap(`
		<style>.good{color:red}.bad{position:fixed;color:blue}.controls{display:block}</style>
		<p style="overflow: hidden; margin: 1em">styled</p>
	`)
	tc := mustTransform(t, markup, Options{})
	s := string(tc.Content)
	assert.Contains(t, s, ".good{color:red}")
	assert.Contains(t, s, "color:blue", "non-matching declarations survive")
	assert.NotContains(t, s, "position:fixed")
	assert.NotContains(t, s, ".controls", "matching selector blocks dropped whole")
	assert.Contains(t, s, `style="margin: 1em"`)
	// style elements move into the page head, none remain in the body
	body := s[strings.Index(s, "<body>"):]
	assert.NotContains(t, body, "<style")
}

func TestStyleDataTemplatePromotion(t *testing.T) {
	markup := wrap(`<style data-template=".late{color:green}"></style>`)
	tc := mustTransform(t, markup, Options{})
	assert.Contains(t, string(tc.Content), ".late{color:green}")
}

func TestStylesheetLinksRemovedFromBody(t *testing.T) {
	markup := wrap(`<link rel="stylesheet" href="https://cdn.example.com/css/x.css" /><p>text</p>`)
	tc := mustTransform(t, markup, Options{})
	body := string(tc.Content)
	body = body[strings.Index(body, "<body>"):]
	assert.NotContains(t, body, "cdn.example.com")
}

func TestCodeBlockNormalization(t *testing.T) {
	markup := wrap(`<div class="highlight"><pre data-lang="go" class="x"><code><span>func</span> <span>main</span>()<br/>{}</code></pre></div>`)
	tc := mustTransform(t, markup, Options{})
	s := string(tc.Content)
	assert.Contains(t, s, "<pre>func main()\n{}</pre>")
	assert.NotContains(t, s, "highlight")
	assert.NotContains(t, s, "data-lang")
}

func TestCodeBlockPreservesWhitespace(t *testing.T) {
	markup := wrap("<pre><code>if x {\n\treturn  y\n}</code></pre>")
	tc := mustTransform(t, markup, Options{})
	assert.Contains(t, string(tc.Content), "if x {\n\treturn  y\n}")
}

func TestSVGImageRewrite(t *testing.T) {
	markup := wrap(`<figure><svg xmlns="http://www.w3.org/2000/svg"><image xlink:href="graphics/fig9.png"></image></svg></figure>`)
	tc := mustTransform(t, markup, Options{})
	s := string(tc.Content)
	assert.Contains(t, s, `<img src="Images/fig9.png" />`)
	assert.NotContains(t, s, "<svg")
}

func TestReaderOptimizedInjection(t *testing.T) {
	plain := mustTransform(t, wrap("<p>x</p>"), Options{})
	optimized := mustTransform(t, wrap("<p>x</p>"), Options{ReaderOptimized: true})
	assert.NotContains(t, string(plain.Content), "white-space:pre-wrap")
	assert.Contains(t, string(optimized.Content), "white-space:pre-wrap!important")
	assert.Contains(t, string(optimized.Content), "overflow-x:unset!important")
}

func TestAssetCollection(t *testing.T) {
	markup := wrap(`<img src="graphics/a.png" /><img src="graphics/b.png" /><img src="https://external.example.com/c.png" />`)
	tc := mustTransform(t, markup, Options{})
	assert.Equal(t, []string{"Images/a.png", "Images/b.png", "Styles/Style00.css"}, tc.Assets)
}

func TestOmitMissingAssets(t *testing.T) {
	markup := wrap(`<img src="graphics/gone.png" /><img src="graphics/kept.png" />`)
	opts := Options{
		Missing:     map[string]bool{"Images/gone.png": true, "Styles/Style00.css": true},
		OmitMissing: true,
	}
	tc := mustTransform(t, markup, opts)
	s := string(tc.Content)
	assert.NotContains(t, s, "gone.png")
	assert.Contains(t, s, "Images/kept.png")
	assert.NotContains(t, s, "Styles/Style00.css", "missing stylesheet link omitted")
	assert.Equal(t, []string{"Images/kept.png"}, tc.Assets)
}

func TestKeepMissingAssetsWithoutOmit(t *testing.T) {
	markup := wrap(`<img src="graphics/gone.png" />`)
	opts := Options{Missing: map[string]bool{"Images/gone.png": true}}
	tc := mustTransform(t, markup, opts)
	assert.Contains(t, string(tc.Content), "Images/gone.png")
	assert.Contains(t, tc.Assets, "Images/gone.png")
}

func TestApplyRulesStandalone(t *testing.T) {
	css := `.a{position: fixed;top:0}.b{overflow-x: hidden}.c{height:100vh;width:50%}`
	got := ApplyRules(css, DefaultRules)
	assert.Equal(t, ".a{top:0}.c{width:50%}", got)
}
