package mq_test

import (
	"context"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/storage/mq"
	"github.com/yeisme/tmvault/pkg/queue"
)

// TestGoChannelClient 测试进程内后端的发布与订阅.
func TestGoChannelClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mq.New(ctx, &configs.MQConfig{Type: configs.MQTypeGoChannel})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer client.Close()

	ch, err := client.Subscribe(ctx, queue.TopicSyncConflict)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	payload := queue.SyncConflictPayload{EntityType: "file", SyncKey: "01H", Winner: "local"}
	if err := queue.PublishSyncConflict(client.Publisher(), payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-ch:
		env, err := queue.ParseSyncConflict(m)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		m.Ack()

		if env.Payload.SyncKey != "01H" || env.Payload.Winner != "local" {
			t.Fatalf("unexpected payload %+v", env.Payload)
		}
	case <-ctx.Done():
		t.Fatalf("timed out")
	}
}

// TestUnsupportedType 测试未知类型.
func TestUnsupportedType(t *testing.T) {
	if _, err := mq.New(context.Background(), &configs.MQConfig{Type: "kafka"}); err == nil {
		t.Fatalf("expected error")
	}

	types := mq.RegisteredTypes()
	if len(types) != 3 {
		t.Fatalf("expected 3 registered types, got %v", types)
	}
}
