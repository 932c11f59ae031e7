package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/lifelog/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

func TestQueue_PublishLandsInStream(t *testing.T) {
	q := testConnect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(messagequeue.TaskStatusPayload{TaskID: "t-" + t.Name(), Status: "completed"})
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, messagequeue.SubjectTaskStatus, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stream, err := q.js.Stream(ctx, streamName)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	msg, err := stream.GetLastMsgForSubject(ctx, messagequeue.SubjectTaskStatus)
	if err != nil {
		t.Fatalf("GetLastMsgForSubject: %v", err)
	}
	var got messagequeue.TaskStatusPayload
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TaskID != "t-"+t.Name() {
		t.Errorf("last message task_id = %q", got.TaskID)
	}
}

func TestQueue_PublishRejectsInvalidPayload(t *testing.T) {
	q := testConnect(t)
	err := q.Publish(context.Background(), messagequeue.SubjectTaskCreated, []byte(`{"task_id":""}`))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestQueue_TranscriptBucket(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.TranscriptBucket(ctx, time.Hour)
	if err != nil {
		t.Fatalf("TranscriptBucket: %v", err)
	}
	if _, err := kv.Put(ctx, "probe", []byte("ok")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "probe")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "ok" {
		t.Errorf("value = %q", entry.Value())
	}
	if err := kv.Delete(ctx, "probe"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, "probe"); !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}
