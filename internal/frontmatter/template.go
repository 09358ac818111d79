package frontmatter

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DateLayout is the layout used for pubDate values written by this package.
const DateLayout = "2006-01-02"

const templateBody = "<!-- Start writing your blog post content here -->\n"

// Template returns the metadata and body of a brand-new post.
func Template(author string, now time.Time) (Metadata, string) {
	return Metadata{
		PubDate: now.Format(DateLayout),
		Author:  author,
	}, templateBody
}

// Fallback returns an editable stand-in for a post that could not be loaded.
// The body explains what went wrong so the editor can show it inline.
func Fallback(filename, author string, cause error, now time.Time) (Metadata, string) {
	meta := Metadata{
		Title:       "New Blog Post",
		Slug:        "new-blog-post",
		PubDate:     now.Format(DateLayout),
		Description: "There was an error loading the original file content",
		Author:      author,
		Tags:        "error",
	}
	if title := TitleFromFilename(filename); title != "" {
		meta.Title = title
		if slug := strings.TrimSuffix(filename, ".md"); ValidSlug(slug) {
			meta.Slug = slug
		}
	}
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	body := fmt.Sprintf("# Error Loading File\n\nThere was an error loading the content for %s: %s\n\nYou can still edit and save new content here.\n", filename, reason)
	return meta, body
}

// TitleFromFilename turns "my-first-post.md" into "My First Post".
func TitleFromFilename(filename string) string {
	stem := strings.TrimSuffix(filename, ".md")
	words := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(first)) + word[size:]
	}
	return strings.Join(words, " ")
}
