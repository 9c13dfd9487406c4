// Package notification is the outbound notification sink for the scheduling
// engine: booking confirmations, cancellations, and calendar-conflict notices
// to owners. Delivery is fire-and-forget — a send failure is recorded and
// logged but never propagates into a booking or overlay write.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type represents the channel used to deliver a notification.
type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
)

// Built-in template IDs used by the scheduling engine.
const (
	TemplateBookingConfirmed  = "booking-confirmed"
	TemplateBookingPending    = "booking-pending"
	TemplateBookingCancelled  = "booking-cancelled"
	TemplateCalendarConflict  = "calendar-conflict"
	TemplateProposalSubmitted = "proposal-submitted"
	TemplateProposalDecided   = "proposal-decided"
)

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Type         Type              `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Type    Type   `json:"type"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateBookingConfirmed,
			Name:    "Booking Confirmed",
			Subject: "Your booking on {{date}} is confirmed",
			Body:    "Hi {{client_name}}, your {{service}} booking on {{date}} at {{time}} with {{provider}} is confirmed.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateBookingPending,
			Name:    "Booking Awaiting Confirmation",
			Subject: "Your booking request for {{date}}",
			Body:    "Hi {{client_name}}, your {{service}} request for {{date}} at {{time}} was received and is awaiting confirmation by {{provider}}.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateBookingCancelled,
			Name:    "Booking Cancelled",
			Subject: "Your booking on {{date}} was cancelled",
			Body:    "Hi {{client_name}}, your {{service}} booking on {{date}} at {{time}} has been cancelled.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateCalendarConflict,
			Name:    "Calendar Conflict",
			Subject: "External calendar conflict with a booked slot",
			Body:    "A busy event in your connected calendar now overlaps the booked slot on {{date}} at {{time}}. The booking was kept; please resolve the conflict manually.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateProposalSubmitted,
			Name:    "Availability Proposal Submitted",
			Subject: "New availability proposal from {{organization}}",
			Body:    "{{organization}} proposed availability on {{date}} from {{start}} to {{end}}. Accept or reject it in your dashboard.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateProposalDecided,
			Name:    "Availability Proposal Decided",
			Subject: "Your availability proposal was {{decision}}",
			Body:    "The availability proposal for {{date}} was {{decision}}. {{reason}}",
			Type:    TypeEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *TemplateEngine) templateType(templateID string) Type {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Type
	}
	return TypeEmail
}

// Sink is what the domain services depend on. Notify must never block a
// business write on delivery failure.
type Sink interface {
	Notify(ctx context.Context, recipient, templateID string, data map[string]string)
}

// Service orchestrates rendering, sending, and in-memory retention of
// notifications.
type Service struct {
	emailSender   EmailSender
	smsSender     SMSSender
	templates     *TemplateEngine
	logger        zerolog.Logger
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewService constructs a notification Service.
func NewService(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Service {
	return &Service{
		emailSender:   email,
		smsSender:     sms,
		templates:     tpl,
		logger:        logger,
		notifications: make(map[string]*Notification),
	}
}

// Notify renders the template and dispatches it. Errors are swallowed after
// logging; the stored notification keeps the failure for later inspection.
func (s *Service) Notify(ctx context.Context, recipient, templateID string, data map[string]string) {
	n, err := s.send(ctx, recipient, templateID, data)
	if err != nil {
		evt := s.logger.Warn().Err(err).Str("template", templateID).Str("recipient", recipient)
		if n != nil {
			evt = evt.Str("notification_id", n.ID)
		}
		evt.Msg("notification delivery failed")
	}
}

func (s *Service) send(ctx context.Context, recipient, templateID string, data map[string]string) (*Notification, error) {
	subject, body, err := s.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		ID:           uuid.New().String(),
		Type:         s.templates.templateType(templateID),
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
		Status:       "pending",
		CreatedAt:    time.Now().UTC(),
	}

	var sendErr error
	switch n.Type {
	case TypeEmail:
		sendErr = s.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		sendErr = s.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("unsupported notification type: %s", n.Type)
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	s.mu.Lock()
	s.notifications[n.ID] = n
	s.mu.Unlock()

	return n, sendErr
}

// Get returns a stored notification by ID.
func (s *Service) Get(id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, errors.New("notification not found")
	}
	return n, nil
}

// ListByRecipient returns stored notifications for a recipient.
func (s *Service) ListByRecipient(recipient string) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Notification
	for _, n := range s.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

// LogEmailSender writes outbound email to the log instead of a provider.
// Default delivery until an SMTP or API sender is configured.
type LogEmailSender struct{ Logger zerolog.Logger }

func (s LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Int("body_bytes", len(body)).Msg("email dispatched")
	return nil
}

// LogSMSSender writes outbound SMS to the log instead of a provider.
type LogSMSSender struct{ Logger zerolog.Logger }

func (s LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("to", to).Int("body_bytes", len(body)).Msg("sms dispatched")
	return nil
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
