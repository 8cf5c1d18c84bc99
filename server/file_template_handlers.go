package server

import (
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templateFuncs = template.FuncMap{
	// clock renders a timestamp for display, or "never" for the zero time
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format(time.TimeOnly)
	},
}

// ParseTemplate parses one page from the embedded templates directory
func ParseTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFiles, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tmpl, nil
}
