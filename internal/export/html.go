package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts Markdown to an HTML fragment. Raw HTML in the source
// is omitted.
func RenderMarkdown(src string) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return nil, fmt.Errorf("export: render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

const footerLayout = "2006-01-02 15:04:05"

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; padding: 20px; max-width: 800px; margin: 0 auto; color: #333; }
        h1 { color: #4527A0; border-bottom: 2px solid #4527A0; padding-bottom: 10px; }
        h2 { color: #5E35B1; margin-top: 30px; }
        h3 { color: #7E57C2; }
        pre { background-color: #f5f5f5; padding: 15px; border-radius: 5px; overflow-x: auto; }
        code { font-family: Consolas, Monaco, 'Andale Mono', monospace; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid #ddd; padding: 6px 10px; }
        .timestamp { color: #9E9E9E; font-size: 0.8rem; text-align: right; margin-top: 50px; }
    </style>
</head>
<body>
{{.Body}}
    <div class="timestamp">Generated: {{.Generated}}</div>
</body>
</html>
`))

func renderHTML(title, answer string, now time.Time) ([]byte, error) {
	body, err := RenderMarkdown(answer)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = documentTemplate.Execute(&buf, struct {
		Title     string
		Body      template.HTML
		Generated string
	}{
		Title:     title,
		Body:      template.HTML(body),
		Generated: now.Format(footerLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("export: render html document: %w", err)
	}
	return buf.Bytes(), nil
}
