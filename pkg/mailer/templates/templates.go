package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmpl "html/template"
	"reflect"
	"strings"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData is the field set every template may reference.
type EmailData struct {
	Name           string `json:"Name"`
	Email          string `json:"Email"`
	RecipientEmail string `json:"RecipientEmail"`
	Type           string `json:"Type"`

	CompanyName string `json:"CompanyName"`
	AppName     string `json:"AppName"`
	SupportURL  string `json:"SupportURL"`

	ResetURL  string `json:"ResetURL"`
	VerifyURL string `json:"VerifyURL"`

	ExpiresAtText string `json:"ExpiresAtText"`
	Time          string `json:"Time"`
}

// ToMap flattens d into the shape queued jobs carry.
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// Template names
const (
	VerifyEmail     = "verify_email"
	ResetPassword   = "reset_password"
	PasswordChanged = "password_changed"
)

// set holds one template's three parts, parsed once.
type set struct {
	subject *texttpl.Template
	text    *texttpl.Template
	html    *htmpl.Template
}

var registry = mustLoad(VerifyEmail, ResetPassword, PasswordChanged)

func mustLoad(names ...string) map[string]set {
	funcs := baseFuncs()
	out := make(map[string]set, len(names))
	for _, n := range names {
		out[n] = set{
			subject: texttpl.Must(texttpl.New(n+".subject.tmpl").Funcs(funcs).ParseFS(FS, n+".subject.tmpl")),
			text:    texttpl.Must(texttpl.New(n+".text.tmpl").Funcs(funcs).ParseFS(FS, n+".text.tmpl")),
			html:    htmpl.Must(htmpl.New(n+".html.tmpl").Funcs(htmpl.FuncMap(funcs)).ParseFS(FS, n+".html.tmpl")),
		}
	}
	return out
}

// Known reports whether name has a full set of template files.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

func exec(name, part string, run func(*bytes.Buffer) error) (string, error) {
	var buf bytes.Buffer
	if err := run(&buf); err != nil {
		return "", fmt.Errorf("render %s.%s: %w", name, part, err)
	}
	return buf.String(), nil
}

// Render produces the subject, plain-text and HTML bodies for name.
func Render(name string, data any) (subject, text, html string, err error) {
	s, ok := registry[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown email template %q", name)
	}
	if subject, err = exec(name, "subject", func(b *bytes.Buffer) error { return s.subject.Execute(b, data) }); err != nil {
		return "", "", "", err
	}
	if text, err = exec(name, "text", func(b *bytes.Buffer) error { return s.text.Execute(b, data) }); err != nil {
		return "", "", "", err
	}
	if html, err = exec(name, "html", func(b *bytes.Buffer) error { return s.html.Execute(b, data) }); err != nil {
		return "", "", "", err
	}
	return strings.TrimSpace(subject), text, html, nil
}

// fallback is used as {{ .Value | default "x" }}.
func fallback(def any, value any) any {
	switch x := value.(type) {
	case nil:
		return def
	case string:
		if strings.TrimSpace(x) == "" {
			return def
		}
		return x
	}
	if rv := reflect.ValueOf(value); !rv.IsValid() || rv.IsZero() {
		return def
	}
	return value
}

func baseFuncs() texttpl.FuncMap {
	return texttpl.FuncMap{
		"now":        func() time.Time { return time.Now().UTC() },
		"formatTime": func(t time.Time, layout string) string { return t.Format(layout) },
		"upper":      strings.ToUpper,
		"default":    fallback,
	}
}
