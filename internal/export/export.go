// Package export renders a session transcript to a standalone HTML file.
// The live UI stays plain text; export is an offline artifact for sharing
// a session.
package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"story_draft_agent/internal/appinfo"
	"story_draft_agent/internal/session"
)

//go:embed transcript_template.html
var templateFS embed.FS

var (
	templateOnce sync.Once
	tmpl         *template.Template
	templateErr  error
)

func getTemplate() (*template.Template, error) {
	templateOnce.Do(func() {
		b, err := templateFS.ReadFile("transcript_template.html")
		if err != nil {
			templateErr = err
			return
		}
		tmpl, templateErr = template.New("transcript_template.html").Parse(string(b))
	})
	return tmpl, templateErr
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var markdownMu sync.Mutex

type turnView struct {
	Speaker   string
	Body      template.HTML
	Preview   template.HTML
	Kind      string
	Saved     string
	LastError string
	Citations []string
}

type transcriptView struct {
	AppDisplay  string
	GeneratedAt string
	Turns       []turnView
}

// RenderHTML renders the transcript to a self-contained HTML document.
func RenderHTML(s session.State) (string, error) {
	t, err := getTemplate()
	if err != nil {
		return "", fmt.Errorf("load transcript template: %w", err)
	}

	view := transcriptView{
		AppDisplay:  appinfo.Display(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, turn := range s.Turns {
		tv := turnView{Speaker: string(turn.Speaker)}
		if strings.TrimSpace(turn.Text) != "" {
			body, err := renderMarkdown(turn.Text)
			if err != nil {
				return "", err
			}
			tv.Body = body
		}
		if g := turn.Generation; g != nil {
			tv.Kind = g.Kind
			tv.Saved = g.SavedLocation
			tv.LastError = g.LastError
			if strings.TrimSpace(g.PreviewBody) != "" {
				preview, err := renderMarkdown(g.PreviewBody)
				if err != nil {
					return "", err
				}
				tv.Preview = preview
			}
		}
		for _, cit := range turn.Citations {
			tv.Citations = append(tv.Citations, cit.Ref)
		}
		view.Turns = append(view.Turns, tv)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return buf.String(), nil
}

// WriteHTML renders the transcript and writes it to path.
func WriteHTML(path string, s session.State) error {
	doc, err := RenderHTML(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(doc), 0o644)
}

func renderMarkdown(src string) (template.HTML, error) {
	markdownMu.Lock()
	defer markdownMu.Unlock()
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
