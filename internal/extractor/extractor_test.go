package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grabtab/internal/table"
)

const base = "https://example.com/dir/page.html"

func mustNamed(t *testing.T, r table.Result) *table.Named {
	t.Helper()
	n, ok := r.Named()
	require.True(t, ok, "expected named result, got %s", r.Kind())
	return n
}

func mustTable(t *testing.T, r table.Result) *table.Table {
	t.Helper()
	tb, ok := r.Table()
	require.True(t, ok, "expected single table, got %s", r.Kind())
	return tb
}

func TestWholePageTablesInDocumentOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&b, "<table><tr><th>id</th><th> name </th></tr><tr><td>%d</td><td>n%d</td></tr></table>", i, i)
	}
	b.WriteString("<table></table></body></html>")

	res, err := New("").Extract(b.String(), base)
	require.NoError(t, err)

	named := mustNamed(t, res)
	assert.Equal(t, []string{"table_1", "table_2", "table_3"}, named.Keys())
	for i, k := range named.Keys() {
		tb, _ := named.Get(k)
		assert.Equal(t, []string{"id", "name"}, tb.Columns)
		assert.Equal(t, fmt.Sprint(i+1), tb.Get(0, "id").Value)
	}
}

func TestSelectorScopedTables(t *testing.T) {
	page := `<html><body>
		<table id="outside"><tr><th>x</th></tr><tr><td>no</td></tr></table>
		<div class="wrap">
			<table><thead><tr><th>a</th><th>b</th></tr></thead><tbody><tr><td>1</td><td></td></tr></tbody></table>
		</div>
		<table class="pick"><tr><td>p</td><td>q</td></tr></table>
	</body></html>`

	res, err := New(".wrap, table.pick").Extract(page, base)
	require.NoError(t, err)

	named := mustNamed(t, res)
	require.Equal(t, 2, named.Len())

	first, _ := named.Get("table_1")
	assert.Equal(t, []string{"a", "b"}, first.Columns)
	assert.Equal(t, table.Str("1"), first.Rows[0][0])
	assert.Equal(t, table.Null, first.Rows[0][1], "empty cells are null")

	second, _ := named.Get("table_2")
	assert.Equal(t, []string{"0", "1"}, second.Columns, "headerless tables get positional columns")
	assert.Equal(t, "q", second.Get(0, "1").Value)
}

func TestSelectorContentRows(t *testing.T) {
	page := `<html><body>
		<a class="item  link" href="/next?p=2" title="Next" aria-label="go next">  Next
			page </a>
		<img class="item" src="img/logo.png">
		<span class="item"></span>
	</body></html>`

	res, err := New(".item").Extract(page, base)
	require.NoError(t, err)

	tb := mustTable(t, res)
	assert.Equal(t, ContentColumns, tb.Columns)
	require.Equal(t, 3, tb.Len(), "span with a class attribute still carries data")

	assert.Equal(t, "a", tb.Get(0, "tag").Value)
	assert.Equal(t, "Next page", tb.Get(0, "text").Value)
	assert.Equal(t, "https://example.com/next?p=2", tb.Get(0, "href").Value)
	assert.Equal(t, "Next", tb.Get(0, "title").Value)
	assert.Equal(t, "go next", tb.Get(0, "aria_label").Value)
	assert.Equal(t, "item link", tb.Get(0, "classes").Value)

	assert.Equal(t, "https://example.com/dir/img/logo.png", tb.Get(1, "src").Value)
	assert.False(t, tb.Get(1, "href").Valid)
}

func TestSelectorMatchedButEmpty(t *testing.T) {
	page := `<html><body><div></div><div> </div></body></html>`

	res, err := New("div").Extract(page, base)
	require.NoError(t, err)

	tb := mustTable(t, res)
	assert.Equal(t, []string{"message"}, tb.Columns)
	assert.Equal(t, NoMatchMessage, tb.Get(0, "message").Value)
}

func TestSelectorUnmatchedFallsThrough(t *testing.T) {
	page := `<html><body><h1>Title</h1><p>Body <b>text</b></p><script>var x = 1;</script></body></html>`

	res, err := New("#missing").Extract(page, base)
	require.NoError(t, err)

	tb := mustTable(t, res)
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, "h1", tb.Get(0, "tag").Value)
	assert.Equal(t, "Body text", tb.Get(1, "text").Value)
}

func TestWholePageTextFallback(t *testing.T) {
	page := `<html><head><title>Only title</title></head><body><div>  loose
		words </div><script>ignored()</script></body></html>`

	res, err := New("").Extract(page, base)
	require.NoError(t, err)

	tb := mustTable(t, res)
	assert.Equal(t, []string{"text"}, tb.Columns)
	assert.Equal(t, "Only title loose words", tb.Get(0, "text").Value)
}

func TestEmptyBody(t *testing.T) {
	res, err := New("").Extract("", base)
	require.NoError(t, err)

	tb := mustTable(t, res)
	assert.Equal(t, 1, tb.Len())
	assert.Equal(t, "", tb.Get(0, "text").Value)
}

func TestCandidateLimit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "<p>para %d</p>", i)
	}
	res, err := New("").WithLimit(5).Extract(b.String(), base)
	require.NoError(t, err)
	assert.Equal(t, 5, mustTable(t, res).Len())
}

func TestXPathSelector(t *testing.T) {
	page := `<html><body><ul><li>one</li><li>two</li></ul><p>skip</p></body></html>`

	res, err := New("//ul/li").Extract(page, base)
	require.NoError(t, err)

	tb := mustTable(t, res)
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, "two", tb.Get(1, "text").Value)
}

func TestInvalidSelector(t *testing.T) {
	_, err := New("div[").Extract("<div></div>", base)
	assert.Error(t, err)

	assert.Error(t, ValidateSelector("//div["))
	assert.NoError(t, ValidateSelector("div > a.next"))
	assert.NoError(t, ValidateSelector(""))
}

func TestIsXPath(t *testing.T) {
	assert.True(t, IsXPath("//a"))
	assert.True(t, IsXPath(" (//a)[1]"))
	assert.False(t, IsXPath("a.next"))
}
