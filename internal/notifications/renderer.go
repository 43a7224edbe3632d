package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var messageTypes = []MessageType{
	MessageTypeViolations,
	MessageTypeEscalation,
	MessageTypeProblem,
}

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[MessageType]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":          titleCase,
		"join":           strings.Join,
		"formatTime":     formatTime,
		"formatMinutes":  formatMinutes,
		"severityEmoji":  severityEmoji,
		"violationLabel": violationLabel,
	}

	r := &Renderer{templates: make(map[MessageType]*template.Template, len(messageTypes))}

	for _, mt := range messageTypes {
		filename := fmt.Sprintf("templates/%s.tmpl", mt)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(string(mt)).Funcs(funcMap).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", mt, err)
		}

		r.templates[mt] = tmpl
	}

	return r, nil
}

// Render returns the subject and body for a payload.
func (r *Renderer) Render(payload Payload) (subject, body string, err error) {
	tmpl, ok := r.templates[payload.MessageType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, payload.MessageType)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", payload.MessageType, err)
	}

	return renderSubject(payload), strings.TrimSpace(buf.String()), nil
}

func renderSubject(payload Payload) string {
	switch payload.MessageType {
	case MessageTypeViolations:
		n := len(payload.Violations)
		if n == 1 {
			return "[SLA] 1 violation"
		}
		return fmt.Sprintf("[SLA] %d violations", n)
	case MessageTypeEscalation:
		return fmt.Sprintf("[Escalation] %s: %s", payload.Incident.ID, payload.Incident.Title)
	case MessageTypeProblem:
		return fmt.Sprintf("[Problem] %s", payload.Problem.Title)
	default:
		return "[ITSM] Notification"
	}
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours, rest := minutes/60, minutes%60
	if rest > 0 {
		return fmt.Sprintf("%dh %dm", hours, rest)
	}
	return fmt.Sprintf("%dh", hours)
}

func severityEmoji(severity domain.Severity) string {
	switch severity {
	case domain.SeverityLow:
		return "🟢"
	case domain.SeverityMedium:
		return "🟡"
	case domain.SeverityHigh:
		return "🟠"
	case domain.SeverityCritical:
		return "🔴"
	default:
		return "⚪"
	}
}

func violationLabel(t automation.ViolationType) string {
	return titleCase(strings.ReplaceAll(string(t), "_", " "))
}
