package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnosuke/pagemirror/document"
	"github.com/cnosuke/pagemirror/types"
)

func extract(t *testing.T, base, page string) []types.DocumentReference {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	doc, err := document.Parse(strings.NewReader(page))
	require.NoError(t, err)
	return New(u).Extract(doc)
}

func urlsOf(refs []types.DocumentReference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.URL)
	}
	return out
}

func TestExtract_ResolvesAgainstBase(t *testing.T) {
	refs := extract(t, "http://ex.com/blog/page", `
<link rel="stylesheet" href="css/site.css">
<script src="/js/app.js"></script>
<img src="../img/a.png">
<video src="//cdn.ex.com/v.mp4" poster="poster.jpg"></video>
<audio src="https://media.ex.org/a.mp3"></audio>
<source src="clip.webm">
<track src="subs.vtt">
<embed src="movie.swf">
<object data="doc.pdf"></object>
<iframe src="frame.html"></iframe>`)

	assert.Equal(t, []string{
		"http://ex.com/blog/css/site.css",
		"http://ex.com/js/app.js",
		"http://ex.com/img/a.png",
		"http://cdn.ex.com/v.mp4",
		"http://ex.com/blog/poster.jpg",
		"https://media.ex.org/a.mp3",
		"http://ex.com/blog/clip.webm",
		"http://ex.com/blog/subs.vtt",
		"http://ex.com/blog/movie.swf",
		"http://ex.com/blog/doc.pdf",
		"http://ex.com/blog/frame.html",
	}, urlsOf(refs))

	for _, r := range refs {
		u, err := url.Parse(r.URL)
		require.NoError(t, err)
		assert.True(t, u.IsAbs(), "reference %q is not absolute", r.URL)
		assert.Equal(t, types.KindAttr, r.Kind)
		assert.Equal(t, r.Raw, r.Match)
	}
}

func TestExtract_AttributeAndTagDetails(t *testing.T) {
	refs := extract(t, "http://ex.com/page", `<video src="v.mp4" poster="p.jpg"></video>`)
	require.Len(t, refs, 2)

	assert.Equal(t, "video", refs[0].Tag)
	assert.Equal(t, "src", refs[0].Attr)
	assert.Equal(t, "v.mp4", refs[0].Raw)
	assert.Equal(t, "poster", refs[1].Attr)
	assert.Equal(t, refs[0].Node, refs[1].Node)
}

func TestExtract_MetaOnlySocialPreview(t *testing.T) {
	refs := extract(t, "http://ex.com/page", `
<meta property="og:image" content="/og.png">
<meta property="og:video" content="https://ex.com/og.mp4">
<meta name="twitter:image" content="tw.png">
<meta property="description" content="http://ex.com/looks-like-a-url.png">
<meta name="viewport" content="width=device-width">
<meta http-equiv="refresh" content="5; url=http://ex.com/">`)

	assert.Equal(t, []string{
		"http://ex.com/og.png",
		"https://ex.com/og.mp4",
		"http://ex.com/tw.png",
	}, urlsOf(refs))
}

func TestExtract_AnchorsOnlySameHost(t *testing.T) {
	refs := extract(t, "http://ex.com:8080/page", `
<a href="/about">About</a>
<a href="http://ex.com:8080/contact">Contact</a>
<a href="http://ex.com/other-port">Other port</a>
<a href="https://other.org/x">External</a>
<a href="#top">Top</a>
<a href="mailto:me@ex.com">Mail</a>
<a href="javascript:void(0)">JS</a>`)

	assert.Equal(t, []string{
		"http://ex.com:8080/about",
		"http://ex.com:8080/contact",
	}, urlsOf(refs))
}

func TestExtract_AnchorsToRequestedHostAfterRedirect(t *testing.T) {
	base, err := url.Parse("https://www.ex.com/home")
	require.NoError(t, err)
	doc, err := document.Parse(strings.NewReader(`
<a href="/news">News</a>
<a href="https://EX.com/about">About</a>
<a href="https://other.org/x">External</a>`))
	require.NoError(t, err)

	refs := New(base, "ex.com").Extract(doc)
	assert.Equal(t, []string{
		"https://www.ex.com/news",
		"https://EX.com/about",
	}, urlsOf(refs))
}

func TestExtract_StyleAttribute(t *testing.T) {
	refs := extract(t, "http://ex.com/page", `
<div style="background:url('bg.jpg'); border-image: url(&quot;/border.png&quot;); mask: url(mask.svg)"></div>`)

	require.Len(t, refs, 3)
	for _, r := range refs {
		assert.Equal(t, types.KindStyleAttr, r.Kind)
		assert.Equal(t, "style", r.Attr)
		assert.Equal(t, "div", r.Tag)
	}
	assert.Equal(t, "url('bg.jpg')", refs[0].Match)
	assert.Equal(t, "bg.jpg", refs[0].Raw)
	assert.Equal(t, `url("/border.png")`, refs[1].Match)
	assert.Equal(t, "http://ex.com/border.png", refs[1].URL)
	assert.Equal(t, "url(mask.svg)", refs[2].Match)
	assert.Less(t, refs[0].Offset, refs[1].Offset)
	assert.Less(t, refs[1].Offset, refs[2].Offset)
}

func TestExtract_StyleBlock(t *testing.T) {
	refs := extract(t, "http://ex.com/css/page", `
<style>div{background:url('bg.jpg')} @font-face{src:url(/fonts/a.woff2) format("woff2")} i{background:url(data:image/png;base64,AAA=)}</style>`)

	require.Len(t, refs, 2)
	assert.Equal(t, types.KindStyleText, refs[0].Kind)
	assert.Equal(t, "", refs[0].Attr)
	assert.Equal(t, "style", refs[0].Tag)
	assert.Equal(t, "http://ex.com/css/bg.jpg", refs[0].URL)
	assert.Equal(t, "url('bg.jpg')", refs[0].Match)
	assert.Equal(t, "http://ex.com/fonts/a.woff2", refs[1].URL)
}

func TestExtract_Srcset(t *testing.T) {
	refs := extract(t, "http://ex.com/page", `<img src="a.png" srcset="a-1x.png 1x, /img/a-2x.png 2x">`)

	require.Len(t, refs, 3)
	assert.Equal(t, types.KindAttr, refs[0].Kind)
	assert.Equal(t, types.KindSrcset, refs[1].Kind)
	assert.Equal(t, "a-1x.png", refs[1].Raw)
	assert.Equal(t, "http://ex.com/a-1x.png", refs[1].URL)
	assert.Equal(t, "http://ex.com/img/a-2x.png", refs[2].URL)
	assert.Equal(t, "srcset", refs[2].Attr)
}

func TestExtract_SrcsetCommaInURL(t *testing.T) {
	refs := extract(t, "http://ex.com/page", `<img srcset="/c.jpg?w=1,2 2x">`)

	require.Len(t, refs, 1)
	assert.Equal(t, "/c.jpg?w=1,2", refs[0].Raw)
	assert.Equal(t, "http://ex.com/c.jpg?w=1,2", refs[0].URL)
}

func TestExtract_SkipsNonFetchable(t *testing.T) {
	refs := extract(t, "http://ex.com/page", `
<img src="">
<img src="   ">
<img src="data:image/png;base64,AAAA">
<script src="blob:http://ex.com/uuid"></script>
<iframe src="about:blank"></iframe>
<link href="ftp://ex.com/file.css" rel="stylesheet">
<img src="/ok.png#frag">`)

	assert.Equal(t, []string{"http://ex.com/ok.png"}, urlsOf(refs))
}

func TestExtract_DocumentOrder(t *testing.T) {
	page := `
<head><style>.a{background:url(s.png)}</style><link href="l.css" rel="stylesheet"></head>
<body><div style="background:url(d.png)"><img src="i.png"></div><a href="/x">x</a></body>`

	refs := extract(t, "http://ex.com/", page)
	assert.Equal(t, []string{
		"http://ex.com/s.png",
		"http://ex.com/l.css",
		"http://ex.com/d.png",
		"http://ex.com/i.png",
		"http://ex.com/x",
	}, urlsOf(refs))

	for i := 1; i < len(refs); i++ {
		assert.LessOrEqual(t, refs[i-1].Node, refs[i].Node)
	}

	// Same input, same output
	assert.Equal(t, refs, extract(t, "http://ex.com/", page))
}

func TestReferences_StopsEarly(t *testing.T) {
	u, _ := url.Parse("http://ex.com/")
	doc, err := document.Parse(strings.NewReader(`<img src="1.png"><img src="2.png"><img src="3.png">`))
	require.NoError(t, err)

	var seen []string
	for ref := range New(u).References(doc) {
		seen = append(seen, ref.URL)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"http://ex.com/1.png", "http://ex.com/2.png"}, seen)
}
