// Package notification sends appointment emails. Templates use {{key}}
// placeholders; delivery goes through an EmailSender so the SMTP transport
// can be swapped for a no-op when mail is not configured.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EmailSender delivers a single message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// AppointmentEvent carries what the appointment emails mention.
type AppointmentEvent struct {
	AppointmentID  string
	UserID         string
	DoctorName     string
	Specialization string
	Time           time.Time
}

// Notifier is told about appointment state changes.
type Notifier interface {
	AppointmentBooked(ctx context.Context, ev AppointmentEvent) error
	AppointmentCancelled(ctx context.Context, ev AppointmentEvent) error
}

// RecipientResolver finds the address to write to for a user.
type RecipientResolver interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

const (
	TemplateAppointmentBooked    = "appointment-booked"
	TemplateAppointmentCancelled = "appointment-cancelled"
)

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine holds templates by id.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the appointment templates loaded.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateAppointmentBooked,
		Subject: "Appointment confirmed with {{doctor}}",
		Body: "Your appointment with {{doctor}} ({{specialization}}) is confirmed for {{date}} at {{time}} UTC.\n" +
			"Reference: {{appointment_id}}",
	})
	e.RegisterTemplate(Template{
		ID:      TemplateAppointmentCancelled,
		Subject: "Appointment with {{doctor}} cancelled",
		Body: "Your appointment with {{doctor}} on {{date}} at {{time}} UTC has been cancelled.\n" +
			"Reference: {{appointment_id}}",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Placeholders without data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// EmailNotifier renders appointment templates and mails them to the user.
type EmailNotifier struct {
	sender     EmailSender
	recipients RecipientResolver
	templates  *TemplateEngine
	logger     zerolog.Logger
}

func NewEmailNotifier(sender EmailSender, recipients RecipientResolver, templates *TemplateEngine, logger zerolog.Logger) *EmailNotifier {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &EmailNotifier{sender: sender, recipients: recipients, templates: templates, logger: logger}
}

func (n *EmailNotifier) AppointmentBooked(ctx context.Context, ev AppointmentEvent) error {
	return n.send(ctx, TemplateAppointmentBooked, ev)
}

func (n *EmailNotifier) AppointmentCancelled(ctx context.Context, ev AppointmentEvent) error {
	return n.send(ctx, TemplateAppointmentCancelled, ev)
}

func (n *EmailNotifier) send(ctx context.Context, templateID string, ev AppointmentEvent) error {
	to, err := n.recipients.EmailFor(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	spec := ev.Specialization
	if spec == "" {
		spec = "General"
	}
	t := ev.Time.UTC()
	subject, body, err := n.templates.Render(templateID, map[string]string{
		"doctor":         ev.DoctorName,
		"specialization": spec,
		"date":           t.Format("Monday, 2 January 2006"),
		"time":           t.Format("15:04"),
		"appointment_id": ev.AppointmentID,
	})
	if err != nil {
		return err
	}

	if err := n.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %s: %w", templateID, err)
	}
	n.logger.Debug().Str("template", templateID).Str("appointment_id", ev.AppointmentID).Msg("notification sent")
	return nil
}

// Nop discards every notification.
type Nop struct{}

func (Nop) AppointmentBooked(context.Context, AppointmentEvent) error    { return nil }
func (Nop) AppointmentCancelled(context.Context, AppointmentEvent) error { return nil }
