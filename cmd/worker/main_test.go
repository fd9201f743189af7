package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"docparse-backend/internal/jobs"
	"docparse-backend/internal/queue"
)

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]sqstypes.Message
	deleted  []string
	received int
	onEmpty  func()
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	if len(f.batches) == 0 {
		if f.onEmpty != nil {
			f.onEmpty()
		}
		return &sqs.ReceiveMessageOutput{}, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	mu   sync.Mutex
	err  error
	jobs []string
}

func (f *fakeProcessor) ProcessJob(ctx context.Context, jobID, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobID)
	return f.err
}

func jobMessage(t *testing.T, id, receipt, jobID string) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(queue.NewMessage(jobID, "req-"+jobID, time.Now()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	p := &fakeProcessor{}

	handleMessage(context.Background(), client, "queue", p, jobMessage(t, "m1", "r1", "job-1"))

	if len(client.deleted) != 1 || client.deleted[0] != "r1" {
		t.Fatalf("expected delete of r1, got %v", client.deleted)
	}
	if len(p.jobs) != 1 || p.jobs[0] != "job-1" {
		t.Fatalf("unexpected processed jobs %v", p.jobs)
	}
}

func TestWorkerKeepsMessageOnFailure(t *testing.T) {
	client := &fakeSQS{}
	p := &fakeProcessor{err: errors.New("database unavailable")}

	handleMessage(context.Background(), client, "queue", p, jobMessage(t, "m2", "r2", "job-2"))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %v", client.deleted)
	}
}

func TestWorkerDropsUnknownJob(t *testing.T) {
	client := &fakeSQS{}
	p := &fakeProcessor{err: jobs.ErrNotFound}

	handleMessage(context.Background(), client, "queue", p, jobMessage(t, "m3", "r3", "job-3"))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %v", client.deleted)
	}
}

func TestWorkerDropsInvalidMessages(t *testing.T) {
	bodies := []string{"", "{bad-json", `{"requestId":"req-1"}`}
	for _, body := range bodies {
		client := &fakeSQS{}
		p := &fakeProcessor{}
		msg := sqstypes.Message{
			MessageId:     aws.String("m"),
			ReceiptHandle: aws.String("r"),
			Body:          aws.String(body),
		}

		handleMessage(context.Background(), client, "queue", p, msg)

		if len(client.deleted) != 1 {
			t.Fatalf("body %q: expected delete, got %v", body, client.deleted)
		}
		if len(p.jobs) != 0 {
			t.Fatalf("body %q: processor should not run", body)
		}
	}
}

func TestPollProcessesBatchesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSQS{
		batches: [][]sqstypes.Message{
			{jobMessage(t, "m1", "r1", "job-1"), jobMessage(t, "m2", "r2", "job-2")},
			{jobMessage(t, "m3", "r3", "job-3")},
		},
		onEmpty: cancel,
	}
	p := &fakeProcessor{}

	poll(ctx, client, "queue", p, pollOptions{Concurrency: 2, VisibilitySeconds: 30})

	if len(p.jobs) != 3 {
		t.Fatalf("expected 3 processed jobs, got %v", p.jobs)
	}
	if len(client.deleted) != 3 {
		t.Fatalf("expected 3 deletes, got %v", client.deleted)
	}
}

func TestReceiveCount(t *testing.T) {
	msg := sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}
	if got := receiveCount(msg); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
