// Package export turns a transcript or its latest answer into a file: the JSON
// history format, and plain text, Markdown or HTML documents.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tech-advisor/internal/domain"
)

// DefaultTitle is used when an answer has no level-1 Markdown heading.
const DefaultTitle = "Technical Document"

// Format selects the latest-answer document rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

type formatSpec struct {
	ext    string
	mime   string
	filter FileFilter
}

var formats = map[Format]formatSpec{
	FormatText:     {ext: ".txt", mime: "text/plain; charset=utf-8", filter: FileFilter{Name: "Text files", Patterns: []string{"*.txt"}}},
	FormatMarkdown: {ext: ".md", mime: "text/markdown; charset=utf-8", filter: FileFilter{Name: "Markdown files", Patterns: []string{"*.md"}}},
	FormatHTML:     {ext: ".html", mime: "text/html; charset=utf-8", filter: FileFilter{Name: "HTML files", Patterns: []string{"*.html"}}},
}

var historyFilter = FileFilter{Name: "JSON files", Patterns: []string{"*.json"}}

// ParseFormat accepts the format names and their usual aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "plain":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", s)
	}
}

// Document is a serialized export ready to be written.
type Document struct {
	Filename string
	MimeType string
	Filter   FileFilter
	Content  []byte
}

// Extension returns the file extension of the suggested name, dot included.
func (d Document) Extension() string {
	if i := strings.LastIndexByte(d.Filename, '.'); i >= 0 {
		return d.Filename[i:]
	}
	return ""
}

// EncodeHistory writes turns as an indented JSON array. Non-ASCII and HTML
// characters are kept literally.
func EncodeHistory(turns []domain.Turn) ([]byte, error) {
	if turns == nil {
		turns = []domain.Turn{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return nil, fmt.Errorf("export: encode history: %w", err)
	}
	return buf.Bytes(), nil
}

// HistoryDocument exports the transcript minus its system turn.
func HistoryDocument(tr *domain.Transcript, now time.Time) (Document, error) {
	content, err := EncodeHistory(tr.Conversation())
	if err != nil {
		return Document{}, err
	}
	return Document{
		Filename: HistoryFilename(now),
		MimeType: "application/json",
		Filter:   historyFilter,
		Content:  content,
	}, nil
}

// ExtractTitle returns the text of the first line starting with "# ", trimmed,
// or DefaultTitle when there is no such line or it is blank.
func ExtractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(line[2:]); title != "" {
				return title
			}
			break
		}
	}
	return DefaultTitle
}

// AnswerDocument renders one assistant answer in the requested format.
func AnswerDocument(answer string, format Format, now time.Time) (Document, error) {
	spec, ok := formats[format]
	if !ok {
		return Document{}, fmt.Errorf("export: unsupported format %q", format)
	}
	title := ExtractTitle(answer)

	content := []byte(answer)
	if format == FormatHTML {
		var err error
		content, err = renderHTML(title, answer, now)
		if err != nil {
			return Document{}, err
		}
	}
	return Document{
		Filename: DocumentFilename(title, now, spec.ext),
		MimeType: spec.mime,
		Filter:   spec.filter,
		Content:  content,
	}, nil
}
