package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carepath/portal/internal/platform/apperr"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_UnknownKeysLeftAsIs(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TemplateOneTimeCode, map[string]string{"code": "123456"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "123456") || !strings.Contains(body, "{{ttl_minutes}}") {
		t.Errorf("unexpected body %q", body)
	}
}

func newTestDispatcher(sender EmailSender) *Dispatcher {
	d := NewDispatcher(sender, NewTemplateEngine(), time.Second, 10*time.Minute, zerolog.Nop())
	d.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatcher_SendOneTimeCode(t *testing.T) {
	sender := &MockEmailSender{}
	d := newTestDispatcher(sender)

	if err := d.SendOneTimeCode(context.Background(), "pat@example.com", "042917"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jobs := sender.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.To != "pat@example.com" || job.TemplateID != TemplateOneTimeCode {
		t.Errorf("unexpected job: %+v", job)
	}
	if !strings.Contains(job.Body, "042917") || !strings.Contains(job.Body, "10 minutes") {
		t.Errorf("unexpected body %q", job.Body)
	}
	if job.ID == "" || job.CreatedAt.IsZero() {
		t.Error("expected id and created_at to be assigned")
	}
}

func TestDispatcher_SendVisitReceipt(t *testing.T) {
	sender := &MockEmailSender{}
	d := newTestDispatcher(sender)

	data := map[string]string{
		"first_name":      "Pat",
		"last_name":       "Doe",
		"date_of_service": "2024-06-01",
		"summary":         "CLINICAL VISIT SUMMARY",
		"exposure_type":   "Chlamydia",
	}
	if err := d.SendVisitReceipt(context.Background(), "pat@example.com", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := sender.Jobs()[0]
	if job.Subject != "Your visit summary from 2024-06-01" {
		t.Errorf("unexpected subject %q", job.Subject)
	}
	if job.Data["exposure_type"] != "Chlamydia" {
		t.Error("expected structured payload to travel with the job")
	}
}

func TestDispatcher_SenderFailureIsDispatchError(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	d := newTestDispatcher(sender)

	err := d.SendOneTimeCode(context.Background(), "pat@example.com", "123456")
	if !apperr.Is(err, apperr.KindDispatch) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
}

func TestDispatcher_EmptyRecipient(t *testing.T) {
	sender := &MockEmailSender{}
	d := newTestDispatcher(sender)

	err := d.SendOneTimeCode(context.Background(), "  ", "123456")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(sender.Jobs()) != 0 {
		t.Error("expected no delivery for an empty recipient")
	}
}

type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, _ *EmailJob) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcher_Timeout(t *testing.T) {
	d := NewDispatcher(blockingSender{}, NewTemplateEngine(), 20*time.Millisecond, 10*time.Minute, zerolog.Nop())

	err := d.SendOneTimeCode(context.Background(), "pat@example.com", "123456")
	if !apperr.Is(err, apperr.KindDispatch) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if !apperr.IsTimeout(err) {
		t.Error("expected the timeout to be visible through the error chain")
	}
}
