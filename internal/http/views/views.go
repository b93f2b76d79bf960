// Package views holds the console's HTML templates.
package views

import (
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var files embed.FS

var funcs = template.FuncMap{
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"deref": func(b *bool) bool { return b != nil && *b },
	"lower": strings.ToLower,
}

// Templates parses every page. Each page is addressed by its file name, e.g.
// "list.html".
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(files, "templates/*.html"))
}
