package uistatic

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/index.html static
var content embed.FS

var indexTemplate = template.Must(template.ParseFS(content, "templates/index.html"))

// Page is everything the question form renders. Submitted switches on the
// answer section.
type Page struct {
	Question  string
	Submitted bool
	Output    []string
	Query     string
	Reply     string
	Error     string
}

// Render executes the page into a buffer first so a template failure never
// leaves a half-written response.
func Render(w io.Writer, page Page) error {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, page); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// Assets serves the stylesheet and other files under /static/.
func Assets() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
