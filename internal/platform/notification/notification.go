// Package notification renders patient emails from templates and hands them
// to a delivery backend: the log in development, the email-function SQS
// queue or a Kafka topic in deployed environments.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepath/portal/internal/platform/apperr"
)

const (
	TemplateOneTimeCode  = "one-time-code"
	TemplateVisitReceipt = "visit-receipt"
)

// EmailJob is the message a sender delivers. Data carries the structured
// payload next to the rendered text so the email function can build its own
// layout.
type EmailJob struct {
	ID         string            `json:"id"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// EmailSender delivers one email job.
type EmailSender interface {
	Send(ctx context.Context, job *EmailJob) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
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
			ID:      TemplateOneTimeCode,
			Name:    "One-Time Code",
			Subject: "Your verification code",
			Body:    "Your verification code is {{code}}. It expires in {{ttl_minutes}} minutes. If you did not try to sign in, you can ignore this email.",
		},
		{
			ID:      TemplateVisitReceipt,
			Name:    "Visit Receipt",
			Subject: "Your visit summary from {{date_of_service}}",
			Body:    "Dear {{first_name}} {{last_name}},\n\n{{summary}}",
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
// left as-is. Keys are applied in sorted order so output does not depend on
// map iteration.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	subject = t.Subject
	body = t.Body
	for _, k := range keys {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, data[k])
		body = strings.ReplaceAll(body, placeholder, data[k])
	}
	return subject, body, nil
}

// Dispatcher renders templates and delivers the result through a sender,
// bounding each delivery by timeout.
type Dispatcher struct {
	sender    EmailSender
	templates *TemplateEngine
	timeout   time.Duration
	codeTTL   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(sender EmailSender, templates *TemplateEngine, timeout, codeTTL time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		templates: templates,
		timeout:   timeout,
		codeTTL:   codeTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// SendFromTemplate renders templateID with data and delivers it to recipient.
// Delivery failures, including timeouts, are returned as dispatch errors.
func (d *Dispatcher) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*EmailJob, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, apperr.Validation("notify.send", "recipient is required")
	}

	subject, body, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, apperr.Dispatch("notify.send", "render template", err)
	}

	job := &EmailJob{
		ID:         uuid.New().String(),
		To:         recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		Data:       data,
		CreatedAt:  d.now().UTC(),
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.sender.Send(ctx, job); err != nil {
		d.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("template_id", templateID).
			Bool("timeout", errors.Is(err, context.DeadlineExceeded)).
			Msg("email delivery failed")
		return job, apperr.Dispatch("notify.send", "email delivery failed", err)
	}

	d.logger.Info().Str("job_id", job.ID).Str("template_id", templateID).Msg("email dispatched")
	return job, nil
}

// SendOneTimeCode delivers a sign-in code to email.
func (d *Dispatcher) SendOneTimeCode(ctx context.Context, email, code string) error {
	_, err := d.SendFromTemplate(ctx, TemplateOneTimeCode, map[string]string{
		"code":        code,
		"ttl_minutes": fmt.Sprintf("%d", int(d.codeTTL.Minutes())),
	}, email)
	return err
}

// SendVisitReceipt delivers a visit receipt. data must carry the fields the
// visit-receipt template references.
func (d *Dispatcher) SendVisitReceipt(ctx context.Context, email string, data map[string]string) error {
	_, err := d.SendFromTemplate(ctx, TemplateVisitReceipt, data, email)
	return err
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	jobs       []EmailJob
	ShouldFail bool
	FailError  string
}

// Send records the job and optionally returns an error.
func (m *MockEmailSender) Send(_ context.Context, job *EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, *job)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Jobs returns a copy of recorded jobs.
func (m *MockEmailSender) Jobs() []EmailJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailJob, len(m.jobs))
	copy(out, m.jobs)
	return out
}
