// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"codeberg.org/oliverandrich/authnotify/internal/i18n"
)

// ErrUnknownTemplate is returned when no template with the given name exists.
var ErrUnknownTemplate = errors.New("unknown email template")

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// view is the value templates are executed with.
type view struct {
	Data    any
	BaseURL string
}

// Renderer turns a template name and data into an HTML and plain text body.
type Renderer struct {
	html    *htmltemplate.Template
	text    *texttemplate.Template
	baseURL string
}

// placeholderFuncs lets the templates parse; real implementations are bound per render.
var placeholderFuncs = map[string]any{
	"t":     func(string) string { return "" },
	"tdata": func(string, ...any) string { return "" },
}

// NewRenderer parses the embedded templates.
func NewRenderer(baseURL string) (*Renderer, error) {
	html, err := htmltemplate.New("email").Funcs(placeholderFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing html templates: %w", err)
	}
	text, err := texttemplate.New("email").Funcs(placeholderFuncs).ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing text templates: %w", err)
	}
	return &Renderer{
		html:    html,
		text:    text,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Render executes the named template with the locale carried by ctx.
func (r *Renderer) Render(ctx context.Context, name string, data any) (Body, error) {
	if r.html.Lookup(name+".html") == nil || r.text.Lookup(name+".txt") == nil {
		return Body{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	funcs := localizedFuncs(ctx)
	v := view{Data: data, BaseURL: r.baseURL}

	html, err := r.html.Clone()
	if err != nil {
		return Body{}, err
	}
	var htmlBuf bytes.Buffer
	if err := html.Funcs(funcs).ExecuteTemplate(&htmlBuf, name+".html", v); err != nil {
		return Body{}, fmt.Errorf("rendering %s.html: %w", name, err)
	}

	text, err := r.text.Clone()
	if err != nil {
		return Body{}, err
	}
	var textBuf bytes.Buffer
	if err := text.Funcs(funcs).ExecuteTemplate(&textBuf, name+".txt", v); err != nil {
		return Body{}, fmt.Errorf("rendering %s.txt: %w", name, err)
	}

	return Body{HTML: htmlBuf.String(), Text: textBuf.String()}, nil
}

func localizedFuncs(ctx context.Context) map[string]any {
	return map[string]any{
		"t": func(id string) string {
			return i18n.T(ctx, id)
		},
		// tdata takes alternating key/value pairs.
		"tdata": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				if key, ok := kv[i].(string); ok {
					data[key] = kv[i+1]
				}
			}
			return i18n.TData(ctx, id, data)
		},
	}
}
