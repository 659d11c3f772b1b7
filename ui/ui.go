// Package ui renders the viewer pages: a landing page and wrappers around the
// multipart JPEG and HLS streams.
package ui

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Footer is shown under the players.
const Footer = "MaguFinanceRealTimeChart"

// Page names accepted by Handler.
const (
	PageIndex = "index"
	PageMJPEG = "mjpeg"
	PageHLS   = "hls"
)

var titles = map[string]string{
	PageIndex: "リアルタイム株価ストリーム",
	PageMJPEG: "低遅延モード（MJPEG）",
	PageHLS:   "高画質モード（HLS）",
}

type pageData struct {
	Title    string
	Footer   string
	Manifest string
}

// Pages holds the parsed templates.
type Pages struct {
	pages map[string]*template.Template
}

// Load parses every page against the shared layout.
func Load() (*Pages, error) {
	p := &Pages{pages: make(map[string]*template.Template, len(titles))}
	for name := range titles {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		p.pages[name] = t
	}
	return p, nil
}

// Render executes the named page.
func (p *Pages) Render(name string) ([]byte, error) {
	t, ok := p.pages[name]
	if !ok {
		return nil, errUnknownPage(name)
	}
	var buf bytes.Buffer
	err := t.ExecuteTemplate(&buf, "layout", pageData{
		Title:    titles[name],
		Footer:   Footer,
		Manifest: "/stream/hls/index.m3u8",
	})
	return buf.Bytes(), err
}

// Handler serves the named page as text/html. Pages are rendered once.
func (p *Pages) Handler(name string) (http.Handler, error) {
	body, err := p.Render(name)
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}), nil
}

type errUnknownPage string

func (e errUnknownPage) Error() string { return "ui: unknown page " + string(e) }
