package main

// Build the Lambda handler binary (tesseract needs cgo):
//   GOOS=linux GOARCH=amd64 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"docparse-backend/internal/bootstrap"
	"docparse-backend/internal/shared/config"
	"docparse-backend/internal/shared/metrics"
	"docparse-backend/internal/shared/telemetry"
	"docparse-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return handleRecords(ctx, app, event.Records), nil
}

// handleRecords reports a record as failed only when redelivery can help;
// unrecoverable messages are acknowledged so they leave the queue.
func handleRecords(ctx context.Context, p workerproc.Processor, records []events.SQSMessage) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range records {
		metrics.IncWorkerMessage("received")
		err := workerproc.HandleMessage(ctx, p, record.Body)
		switch {
		case err == nil:
			metrics.IncWorkerMessage("completed")
		case workerproc.Unrecoverable(err):
			telemetry.Error("worker.job.dropped", map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()})
			metrics.IncWorkerMessage("dropped")
		default:
			telemetry.Error("worker.job.failed", map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()})
			metrics.IncWorkerMessage("failed")
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
