// Package frontmatter converts blog documents between their stored text form
// and a metadata record plus body.
//
// A stored document starts with a block of `key: value` lines fenced by
// `---` marker lines. Only the fields of Metadata are recognised; anything
// else in the block is dropped when the document is written back.
package frontmatter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const delimiter = "---"

// Metadata is the fixed set of front-matter fields a post carries.
type Metadata struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	PubDate     string `json:"pubDate"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Tags        string `json:"tags"`
}

// field binds a serialized key to its Metadata member. The slice order is the
// order fields are written in.
type field struct {
	key string
	get func(*Metadata) *string
}

var fields = []field{
	{key: "title", get: func(m *Metadata) *string { return &m.Title }},
	{key: "slug", get: func(m *Metadata) *string { return &m.Slug }},
	{key: "pubDate", get: func(m *Metadata) *string { return &m.PubDate }},
	{key: "author", get: func(m *Metadata) *string { return &m.Author }},
	{key: "description", get: func(m *Metadata) *string { return &m.Description }},
	{key: "tags", get: func(m *Metadata) *string { return &m.Tags }},
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ErrInvalidMetadata is wrapped by every error returned from Validate.
var ErrInvalidMetadata = errors.New("invalid metadata")

// ValidSlug reports whether slug is usable as a file or directory name.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// Validate reports values that cannot be stored as single front-matter lines
// and slugs that are not usable as file names.
func (m Metadata) Validate() error {
	for _, f := range fields {
		value := *f.get(&m)
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%w: %s must not contain line breaks", ErrInvalidMetadata, f.key)
		}
	}
	if m.Slug != "" && !slugPattern.MatchString(m.Slug) {
		return fmt.Errorf("%w: slug %q may only contain letters, digits, '.', '_' and '-'", ErrInvalidMetadata, m.Slug)
	}
	return nil
}

// TagList splits the comma separated tags value.
func (m Metadata) TagList() []string {
	var tags []string
	for _, tag := range strings.Split(m.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Filename is the file name a post with this metadata is stored under.
func (m Metadata) Filename() string {
	slug := strings.TrimSpace(m.Slug)
	if slug == "" {
		slug = "new-post"
	}
	return slug + ".md"
}

// Parse splits text into metadata and body. It never fails: text without a
// complete front-matter block yields zero metadata and the trimmed text as
// body.
func Parse(text string) (Metadata, string) {
	block, body, ok := split(text)
	if !ok {
		return Metadata{}, strings.TrimSpace(text)
	}

	var meta Metadata
	for _, line := range strings.Split(block, "\n") {
		colon := strings.Index(line, ":")
		if colon <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		value := unquote(strings.TrimSpace(line[colon+1:]))
		for _, f := range fields {
			if f.key == key {
				*f.get(&meta) = value
				break
			}
		}
	}
	return meta, body
}

// Serialize renders metadata and body in the stored form. Parsing the result
// gives back meta and body unchanged, provided meta passes Validate.
func Serialize(meta Metadata, body string) string {
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')
	for _, f := range fields {
		b.WriteString(f.key)
		b.WriteString(": ")
		b.WriteString(quote(*f.get(&meta)))
		b.WriteByte('\n')
	}
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}

// split locates the first front-matter block. block holds the lines between
// the markers, body everything after the closing marker line.
func split(text string) (block, body string, ok bool) {
	first, rest, found := strings.Cut(text, "\n")
	if !found || !isDelimiter(first) {
		return "", "", false
	}

	var lines []string
	for {
		line, next, more := strings.Cut(rest, "\n")
		if isDelimiter(line) {
			if more {
				body = next
			}
			return strings.Join(lines, "\n"), body, true
		}
		if !more {
			return "", "", false
		}
		lines = append(lines, strings.TrimSuffix(line, "\r"))
		rest = next
	}
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == delimiter
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' || first == '\'') && first == last {
		return value[1 : len(value)-1]
	}
	return value
}

// quote wraps values that Parse would otherwise alter.
func quote(value string) string {
	value = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(value)
	if value == "" || strings.TrimSpace(value) != value || unquote(value) != value {
		return `"` + value + `"`
	}
	return value
}
