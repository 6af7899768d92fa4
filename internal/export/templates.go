package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// TemplateData holds data for knowledge item rendering.
type TemplateData struct {
	Title       string
	AuthorName  string
	Version     int
	Tags        []string
	Freshness   string
	ContentHTML template.HTML
	Reviews     []TemplateReview
	GeneratedAt time.Time
}

// TemplateReview is one peer review rendered under the item.
type TemplateReview struct {
	Reviewer string
	Rating   int
	Comments string
}

const itemTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; color: #1a1a1a; line-height: 1.6; max-width: 46em; margin: 0 auto; }
h1 { font-size: 1.8em; border-bottom: 2px solid #333; padding-bottom: 0.3em; }
.meta { color: #666; font-size: 0.9em; margin-bottom: 2em; }
.tag { display: inline-block; background: #eee; border-radius: 3px; padding: 0 0.5em; margin-right: 0.4em; font-size: 0.85em; }
.review { border-left: 3px solid #999; padding-left: 1em; margin: 1em 0; }
.review .rating { font-weight: bold; }
footer { margin-top: 3em; color: #999; font-size: 0.8em; border-top: 1px solid #ddd; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">
	By {{.AuthorName}} &middot; version {{.Version}} &middot; freshness: {{.Freshness}}<br>
	{{range .Tags}}<span class="tag">{{.}}</span>{{end}}
</div>
<div class="content">{{.ContentHTML}}</div>
{{if .Reviews}}
<h2>Peer Reviews</h2>
{{range .Reviews}}
<div class="review">
	<span class="rating">{{.Rating}}/10</span> &mdash; {{.Reviewer}}
	{{if .Comments}}<p>{{.Comments}}</p>{{end}}
</div>
{{end}}
{{end}}
<footer>Generated {{.GeneratedAt.Format "2006-01-02 15:04"}} UTC</footer>
</body>
</html>`

var itemTmpl = template.Must(template.New("item").Parse(itemTemplate))

// RenderItemHTML renders the export template for one knowledge item.
func RenderItemHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := itemTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ContentToHTML converts stored plain-text content to paragraphs. Blank
// lines split paragraphs; everything else is escaped verbatim.
func ContentToHTML(content string) template.HTML {
	var builder strings.Builder
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		builder.WriteString("<p>")
		builder.WriteString(strings.ReplaceAll(template.HTMLEscapeString(block), "\n", "<br>"))
		builder.WriteString("</p>\n")
	}
	return template.HTML(builder.String())
}
