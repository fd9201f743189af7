package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSender struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSClientSendEncodesBody(t *testing.T) {
	fake := &fakeSender{}
	client := &SQSClient{client: fake, queueURL: "https://sqs.eu-central-1.amazonaws.com/1/ocr"}

	msg := NewMessage("job-7", "req-7", time.Now())
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if aws.ToString(fake.input.QueueUrl) != client.queueURL {
		t.Fatalf("unexpected queue url %q", aws.ToString(fake.input.QueueUrl))
	}
	got, err := DecodeMessage([]byte(aws.ToString(fake.input.MessageBody)))
	if err != nil || got != msg {
		t.Fatalf("body did not decode to message: %+v %v", got, err)
	}
}

func TestSQSClientSendWrapsErrors(t *testing.T) {
	cause := errors.New("throttled")
	client := &SQSClient{client: &fakeSender{err: cause}, queueURL: "q"}
	if err := client.Send(context.Background(), Message{JobID: "j"}); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestNewSQSClientRequiresURL(t *testing.T) {
	if _, err := NewSQSClient(context.Background(), " ", "eu-central-1"); err == nil {
		t.Fatalf("expected error for empty queue url")
	}
}
