package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type fakeKafka struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func testJob() *EmailJob {
	return &EmailJob{
		ID:         "job-1",
		To:         "pat@example.com",
		Subject:    "Your verification code",
		Body:       "Your verification code is 123456.",
		TemplateID: TemplateOneTimeCode,
		CreatedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQSSender_Send(t *testing.T) {
	client := &fakeSQS{}
	s := NewSQSSender(client, "https://sqs.local/000000000000/portal-email")

	if err := s.Send(context.Background(), testJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(client.inputs))
	}
	in := client.inputs[0]
	if *in.QueueUrl != "https://sqs.local/000000000000/portal-email" {
		t.Errorf("unexpected queue url %q", *in.QueueUrl)
	}

	var decoded EmailJob
	if err := json.Unmarshal([]byte(*in.MessageBody), &decoded); err != nil {
		t.Fatalf("message body is not a job: %v", err)
	}
	if decoded.To != "pat@example.com" || decoded.TemplateID != TemplateOneTimeCode {
		t.Errorf("unexpected decoded job %+v", decoded)
	}
}

func TestSQSSender_Error(t *testing.T) {
	s := NewSQSSender(&fakeSQS{err: errors.New("throttled")}, "q")
	if err := s.Send(context.Background(), testJob()); err == nil {
		t.Fatal("expected error")
	}
}

func TestKafkaSender_Send(t *testing.T) {
	w := &fakeKafka{}
	s := NewKafkaSender(w)

	if err := s.Send(context.Background(), testJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "pat@example.com" {
		t.Errorf("expected recipient key, got %q", w.msgs[0].Key)
	}
	if len(w.msgs[0].Headers) != 1 || string(w.msgs[0].Headers[0].Value) != TemplateOneTimeCode {
		t.Errorf("unexpected headers %+v", w.msgs[0].Headers)
	}
}

func TestKafkaSender_Error(t *testing.T) {
	s := NewKafkaSender(&fakeKafka{err: errors.New("no leader")})
	if err := s.Send(context.Background(), testJob()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogSender_Send(t *testing.T) {
	if err := NewLogSender(zerolog.Nop()).Send(context.Background(), testJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
