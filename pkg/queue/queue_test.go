package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/tmvault/pkg/queue"
)

// TestPresenceTopic 测试按文件拆分主题.
func TestPresenceTopic(t *testing.T) {
	if got := queue.PresenceTopic(42); got != "tv.presence.file.42" {
		t.Fatalf("unexpected topic %q", got)
	}
}

// TestPublishPresence 测试信封经 gochannel 往返.
func TestPublishPresence(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := ps.Subscribe(ctx, queue.PresenceTopic(7))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := queue.PresenceEvent{
		Type:      queue.EventLockAcquired,
		FileID:    7,
		Entity:    "file",
		RecordID:  7,
		SessionID: "s1",
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x01},
		SpanID:     trace.SpanID{0x0b, 0x02},
		TraceFlags: trace.FlagsSampled,
	})
	spanCtx := trace.ContextWithSpanContext(ctx, sc)

	if err := queue.PublishPresence(ps, ev, queue.WithProducer("tmvault"), queue.WithSpan(spanCtx)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-ch:
		env, err := queue.ParsePresence(m)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		m.Ack()

		if env.Header.Topic != "tv.presence.file.7" || env.Header.Producer != "tmvault" {
			t.Errorf("unexpected header %+v", env.Header)
		}

		if env.Payload != ev {
			t.Errorf("payload mismatch: %+v", env.Payload)
		}

		if m.Metadata.Get("trace_id") != sc.TraceID().String() || env.Header.TraceID != sc.TraceID().String() {
			t.Errorf("trace id not propagated: %q", m.Metadata.Get("trace_id"))
		}

		got := trace.SpanContextFromContext(queue.SpanContext(context.Background(), m))
		if got.TraceID() != sc.TraceID() || got.SpanID() != sc.SpanID() {
			t.Errorf("span context = %v, want %v", got, sc)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}
}

// TestPublishNilPublisher 测试未配置发布者时静默跳过.
func TestPublishNilPublisher(t *testing.T) {
	if err := queue.PublishSyncConflict(nil, queue.SyncConflictPayload{SyncKey: "k"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

// TestWithSpanWithoutTrace 测试没有 span 时不写入追踪元数据.
func TestWithSpanWithoutTrace(t *testing.T) {
	m, err := queue.NewWatermillMessage("tv.test", 1, queue.WithSpan(context.Background()))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	if m.Metadata.Get("trace_id") != "" || m.Metadata.Get("traceparent") != "" {
		t.Errorf("unexpected trace metadata %v", m.Metadata)
	}

	if m.Metadata.Get("version") != queue.PayloadVersionV1 {
		t.Errorf("version = %q", m.Metadata.Get("version"))
	}
}
