package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type emailCall struct {
	To      string
	Subject string
	Body    string
}

type mockEmailSender struct {
	mu    sync.Mutex
	calls []emailCall
	err   error
}

func (m *mockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, emailCall{To: to, Subject: subject, Body: body})
	return nil
}

type staticRecipients map[string]string

func (r staticRecipients) EmailFor(_ context.Context, userID string) (string, error) {
	addr, ok := r[userID]
	if !ok {
		return "", errors.New("no such user")
	}
	return addr, nil
}

func testEvent() AppointmentEvent {
	return AppointmentEvent{
		AppointmentID:  "appt-1",
		UserID:         "user-1",
		DoctorName:     "Dr. Rao",
		Specialization: "Cardiology",
		Time:           time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(TemplateAppointmentBooked, map[string]string{
		"doctor":         "Dr. Rao",
		"specialization": "Cardiology",
		"date":           "Monday",
		"time":           "09:30",
		"appointment_id": "abc",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Appointment confirmed with Dr. Rao" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "(Cardiology)") || !strings.Contains(body, "09:30") || !strings.Contains(body, "abc") {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngine_MissingDataLeftAsIs(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TemplateAppointmentCancelled, map[string]string{"doctor": "Dr. Rao"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "{{date}}") {
		t.Errorf("expected unresolved placeholder to remain, got %q", body)
	}
}

func TestEmailNotifier_Booked(t *testing.T) {
	sender := &mockEmailSender{}
	n := NewEmailNotifier(sender, staticRecipients{"user-1": "jane@example.com"}, nil, zerolog.Nop())

	if err := n.AppointmentBooked(context.Background(), testEvent()); err != nil {
		t.Fatalf("booked: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.calls))
	}
	call := sender.calls[0]
	if call.To != "jane@example.com" {
		t.Errorf("to = %q", call.To)
	}
	if !strings.Contains(call.Body, "Monday, 10 March 2025 at 09:30") {
		t.Errorf("body = %q", call.Body)
	}
}

func TestEmailNotifier_CancelledDefaultsSpecialization(t *testing.T) {
	sender := &mockEmailSender{}
	n := NewEmailNotifier(sender, staticRecipients{"user-1": "jane@example.com"}, nil, zerolog.Nop())

	ev := testEvent()
	ev.Specialization = ""
	if err := n.AppointmentCancelled(context.Background(), ev); err != nil {
		t.Fatalf("cancelled: %v", err)
	}
	if !strings.Contains(sender.calls[0].Subject, "cancelled") {
		t.Errorf("subject = %q", sender.calls[0].Subject)
	}
}

func TestEmailNotifier_Errors(t *testing.T) {
	t.Run("unknown recipient", func(t *testing.T) {
		n := NewEmailNotifier(&mockEmailSender{}, staticRecipients{}, nil, zerolog.Nop())
		if err := n.AppointmentBooked(context.Background(), testEvent()); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("sender failure", func(t *testing.T) {
		sender := &mockEmailSender{err: errors.New("smtp down")}
		n := NewEmailNotifier(sender, staticRecipients{"user-1": "a@b.c"}, nil, zerolog.Nop())
		if err := n.AppointmentBooked(context.Background(), testEvent()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.AppointmentBooked(context.Background(), testEvent()); err != nil {
		t.Error(err)
	}
	if err := n.AppointmentCancelled(context.Background(), testEvent()); err != nil {
		t.Error(err)
	}
}

func TestSMTPSender_Message(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 2525, From: "noreply@healthassist.local"})
	m := s.message("jane@example.com", "Hello", "Body")

	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "noreply@healthassist.local" {
		t.Errorf("From = %v", got)
	}
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "jane@example.com" {
		t.Errorf("To = %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "Hello" {
		t.Errorf("Subject = %v", got)
	}
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 2525})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendEmail(ctx, "a@b.c", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
