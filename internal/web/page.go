package web

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"

	"github.com/microcosm-cc/bluemonday"

	"tech-advisor/internal/domain"
	"tech-advisor/internal/export"
	"tech-advisor/internal/usecase"
)

var sanitizer = newSanitizer()

// newSanitizer allows user-generated-content markup plus the language classes
// goldmark puts on fenced code blocks.
func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[a-zA-Z0-9_+-]+$`)).OnElements("code")
	return p
}

type pageTurn struct {
	User bool
	Text string
	HTML template.HTML
}

type formatOption struct {
	Value export.Format
	Label string
}

var formatOptions = []formatOption{
	{Value: export.FormatMarkdown, Label: "Markdown (.md)"},
	{Value: export.FormatHTML, Label: "HTML (.html)"},
	{Value: export.FormatText, Label: "Text (.txt)"},
}

type pageData struct {
	Model       string
	Turns       []pageTurn
	Notices     []domain.Notice
	Draft       string
	NeedsAPIKey bool
	HasAnswer   bool
	Formats     []formatOption
}

// renderAssistant turns assistant Markdown into sanitized HTML. Text that
// fails to render is shown escaped.
func renderAssistant(content string) template.HTML {
	raw, err := export.RenderMarkdown(content)
	if err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(content) + "</pre>")
	}
	return template.HTML(sanitizer.SanitizeBytes(raw))
}

func renderPage(v usecase.View, model string) ([]byte, error) {
	data := pageData{
		Model:       model,
		Notices:     v.Notices,
		Draft:       v.Draft,
		NeedsAPIKey: v.NeedsAPIKey,
		Formats:     formatOptions,
	}
	for _, t := range v.Turns {
		switch t.Role {
		case domain.RoleUser:
			data.Turns = append(data.Turns, pageTurn{User: true, Text: t.Content})
		case domain.RoleAssistant:
			data.Turns = append(data.Turns, pageTurn{HTML: renderAssistant(t.Content)})
			data.HasAnswer = true
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("web: render page: %w", err)
	}
	return buf.Bytes(), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width,initial-scale=1" />
  <title>Tech Advisor</title>
  <style>
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; color: #333; }
    .layout { display: grid; grid-template-columns: 280px 1fr; min-height: 100vh; }
    aside { background: #F3F0FA; padding: 20px; }
    main { padding: 20px 40px; max-width: 900px; }
    h1 { font-size: 2.5rem; color: #4527A0; text-align: center; margin-bottom: 0.5rem; }
    .sub { text-align: center; color: #5E35B1; margin-bottom: 1.5rem; }
    .turn { padding: 12px 16px; border-radius: 8px; margin: 12px 0; }
    .turn.user { background: #EDE7F6; white-space: pre-wrap; }
    .turn.assistant { background: #FAFAFA; border: 1px solid #E0E0E0; }
    pre { background: #f5f5f5; padding: 12px; border-radius: 5px; overflow-x: auto; }
    .notice { padding: 10px 14px; border-radius: 5px; margin: 8px 0; }
    .notice.info { background: #E3F2FD; }
    .notice.success { background: #E8F5E9; }
    .notice.error { background: #FFEBEE; }
    textarea { width: 100%; min-height: 90px; }
    aside form { margin-bottom: 18px; }
    button { background: #5E35B1; color: #fff; border: 0; border-radius: 4px; padding: 6px 14px; cursor: pointer; }
  </style>
</head>
<body>
<div class="layout">
  <aside>
    <h3>Conversation</h3>
    <form method="post" action="/history/save"><button type="submit">Save chat history</button></form>
    <form method="post" action="/clear"><button type="submit">Clear chat history</button></form>
    <form method="post" action="/history/load" enctype="multipart/form-data">
      <label>Load chat history<br /><input type="file" name="history" accept=".json,application/json" /></label>
      <button type="submit">Load</button>
    </form>
    {{if .HasAnswer}}
    <h3>Latest answer</h3>
    <form method="post" action="/answer/save">
      <select name="format">
        {{range .Formats}}<option value="{{.Value}}">{{.Label}}</option>{{end}}
      </select>
      <button type="submit">Save as document</button>
    </form>
    {{end}}
    {{if .Model}}<p class="sub">Model: {{.Model}}</p>{{end}}
  </aside>
  <main>
    <h1>Tech Advisor</h1>
    <div class="sub">Ask about Django, Vue.js, Python, HTML and CSS</div>
    {{range .Notices}}<div class="notice {{.Level}}">{{.Text}}</div>{{end}}
    {{if .NeedsAPIKey}}
    <form method="post" action="/apikey">
      <label>OpenAI API key<br /><input type="password" name="api_key" autocomplete="off" required /></label>
      <label><input type="checkbox" name="save_env" value="1" /> Save to .env file</label>
      <button type="submit">Set API key</button>
    </form>
    <p>An API key is required to continue.</p>
    {{else}}
    {{range .Turns}}
      {{if .User}}<div class="turn user">{{.Text}}</div>{{else}}<div class="turn assistant">{{.HTML}}</div>{{end}}
    {{end}}
    <form method="post" action="/submit">
      <textarea name="question" placeholder="Enter a technical question">{{.Draft}}</textarea>
      <button type="submit">Send</button>
    </form>
    {{end}}
  </main>
</div>
</body>
</html>
`))
