package frontmatter

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	meta := Metadata{
		Title:       "Hello",
		Slug:        "hello",
		PubDate:     "2024-01-01",
		Description: "d",
		Author:      "A",
		Tags:        "x,y",
	}

	text := Serialize(meta, "content")
	parsed, body := Parse(text)

	assert.Equal(t, meta, parsed)
	assert.Equal(t, "content", body)
}

func TestSerializeFieldOrder(t *testing.T) {
	text := Serialize(Metadata{Title: "T", Slug: "s", PubDate: "2024-02-03", Author: "A", Description: "D", Tags: "go"}, "body\n")

	want := "---\ntitle: T\nslug: s\npubDate: 2024-02-03\nauthor: A\ndescription: D\ntags: go\n---\nbody\n"
	assert.Equal(t, want, text)
}

func TestRoundTripValuesNeedingQuotes(t *testing.T) {
	cases := map[string]Metadata{
		"empty values":        {},
		"surrounding spaces":  {Title: "  padded  "},
		"wrapped in quotes":   {Title: `"quoted"`, Description: "'single'"},
		"colon inside value":  {Title: "Go: the good parts"},
		"lone quote":          {Title: `"`},
		"quotes inside value": {Description: `say "hi" twice`},
	}
	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, body := Parse(Serialize(meta, "\n  body with surrounding space  \n"))
			assert.Equal(t, meta, parsed)
			assert.Equal(t, "\n  body with surrounding space  \n", body)
		})
	}
}

func TestParseWithoutBlockReturnsTrimmedBody(t *testing.T) {
	cases := []string{
		"",
		"  just text  \n",
		"--\ntitle: x\n--\nbody",
		"---\ntitle: never closed\nbody",
		"text\n---\ntitle: x\n---\n",
		"---",
	}
	for _, input := range cases {
		meta, body := Parse(input)
		assert.Equal(t, Metadata{}, meta, "input %q", input)
		assert.Equal(t, strings.TrimSpace(input), body, "input %q", input)
	}
}

func TestParseLenientLines(t *testing.T) {
	input := "---  \r\n" +
		"title: 'Single'\r\n" +
		"no colon here\r\n" +
		": leading colon\r\n" +
		"unknown: dropped\r\n" +
		"  slug  :   spaced   \r\n" +
		"tags: a, b\r\n" +
		"tags: c\r\n" +
		"---\r\n" +
		"Body text"

	meta, body := Parse(input)

	assert.Equal(t, "Single", meta.Title)
	assert.Equal(t, "spaced", meta.Slug)
	assert.Equal(t, "c", meta.Tags)
	assert.Empty(t, meta.Author)
	assert.Equal(t, "Body text", body)
}

func TestParseEmptyBody(t *testing.T) {
	meta, body := Parse("---\ntitle: Only metadata\n---")
	assert.Equal(t, "Only metadata", meta.Title)
	assert.Equal(t, "", body)

	meta, body = Parse("---\ntitle: Only metadata\n---\n")
	assert.Equal(t, "Only metadata", meta.Title)
	assert.Equal(t, "", body)
}

func TestParseOnlyFirstBlockIsMetadata(t *testing.T) {
	input := "---\ntitle: First\n---\nintro\n---\ntitle: Second\n---\nrest"

	meta, body := Parse(input)

	assert.Equal(t, "First", meta.Title)
	assert.Equal(t, "intro\n---\ntitle: Second\n---\nrest", body)
}

func TestUnknownKeysDroppedOnReserialize(t *testing.T) {
	meta, body := Parse("---\ntitle: T\nlayout: post\ndraft: true\n---\nbody")

	out := Serialize(meta, body)

	assert.NotContains(t, out, "layout")
	assert.NotContains(t, out, "draft")
	assert.Contains(t, out, "title: T\n")
}

func TestSerializeFlattensLineBreaks(t *testing.T) {
	out := Serialize(Metadata{Title: "two\nlines"}, "")
	meta, _ := Parse(out)
	assert.Equal(t, "two lines", meta.Title)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Metadata{Title: "Fine", Slug: "fine-post_2.v1"}.Validate())

	err := Metadata{Description: "line\nbreak"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMetadata))

	err = Metadata{Slug: "../escape"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slug")
}

func TestTagListAndFilename(t *testing.T) {
	meta := Metadata{Slug: "hello", Tags: " go, ,web ,"}
	assert.Equal(t, []string{"go", "web"}, meta.TagList())
	assert.Equal(t, "hello.md", meta.Filename())
	assert.Equal(t, "new-post.md", Metadata{}.Filename())
	assert.Nil(t, Metadata{}.TagList())
}

func TestTemplate(t *testing.T) {
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

	meta, body := Template("Site Author", now)

	assert.Equal(t, Metadata{PubDate: "2024-05-06", Author: "Site Author"}, meta)
	assert.Contains(t, body, "Start writing")

	parsed, parsedBody := Parse(Serialize(meta, body))
	assert.Equal(t, meta, parsed)
	assert.Equal(t, body, parsedBody)
}

func TestFallback(t *testing.T) {
	now := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	meta, body := Fallback("my-first-post.md", "A", errors.New("boom"), now)

	assert.Equal(t, "My First Post", meta.Title)
	assert.Equal(t, "my-first-post", meta.Slug)
	assert.Equal(t, "error", meta.Tags)
	assert.Contains(t, body, "my-first-post.md: boom")

	meta, _ = Fallback("", "A", nil, now)
	assert.Equal(t, "New Blog Post", meta.Title)
	assert.Equal(t, "new-blog-post", meta.Slug)
}

func TestFallbackKeepsOnlyValidSlugs(t *testing.T) {
	now := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	meta, _ := Fallback("My Post.md", "A", errors.New("boom"), now)

	assert.Equal(t, "My Post", meta.Title)
	assert.Equal(t, "new-blog-post", meta.Slug)
	assert.NoError(t, meta.Validate())
}

func TestTitleFromFilename(t *testing.T) {
	cases := map[string]string{
		"my-first-post.md": "My First Post",
		"émile-zola.md":    "Émile Zola",
		"ünïcode_title.md": "Ünïcode Title",
		"":                 "",
	}
	for input, want := range cases {
		got := TitleFromFilename(input)
		assert.Equal(t, want, got, input)
		assert.True(t, utf8.ValidString(got), input)
	}
}
