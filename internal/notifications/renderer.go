package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Vars holds the template variables captured at enqueue time.
type Vars map[string]string

// subjectTemplates maps each kind to its subject line template.
var subjectTemplates = map[JobKind]string{
	KindBookingConfirmation: "Your appointment at {{.BusinessName}} is confirmed",
	KindReminder24h:         "Reminder: your appointment at {{.BusinessName}} is tomorrow",
	KindReminder1h:          "Reminder: your appointment at {{.BusinessName}} starts soon",
	KindStatusUpdate:        "Your appointment at {{.BusinessName}} was {{.Status}}",
	KindRatingRequest:       "How was your visit to {{.BusinessName}}?",
	KindNewBookingAlert:     "New booking: {{.CustomerName}} on {{.Date}} at {{.Time}}",
}

// Renderer renders notification content from embedded templates.
type Renderer struct {
	subjects map[JobKind]*template.Template
	bodies   map[JobKind]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title": titleCase,
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	r := &Renderer{
		subjects: make(map[JobKind]*template.Template),
		bodies:   make(map[JobKind]*template.Template),
	}

	for kind, subject := range subjectTemplates {
		tmpl, err := template.New(string(kind) + "_subject").Funcs(funcMap).Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject template %s: %w", kind, err)
		}
		r.subjects[kind] = tmpl

		filename := fmt.Sprintf("templates/%s.tmpl", kind)
		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		body, err := template.New(string(kind)).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}
		r.bodies[kind] = body
	}

	return r, nil
}

// Render renders the subject and body for a notification kind. Pure with
// respect to vars; returns ErrUnknownKind for unregistered kinds.
func (r *Renderer) Render(kind JobKind, vars Vars) (subject, body string, err error) {
	subjectTmpl, ok := r.subjects[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	var buf bytes.Buffer
	if err := subjectTmpl.Execute(&buf, vars); err != nil {
		return "", "", fmt.Errorf("execute subject template %s: %w", kind, err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := r.bodies[kind].Execute(&buf, vars); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", kind, err)
	}
	body = strings.TrimSpace(buf.String())

	return subject, body, nil
}

// KnownKind reports whether a template is registered for the kind.
func (r *Renderer) KnownKind(kind JobKind) bool {
	_, ok := r.subjects[kind]
	return ok
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}
