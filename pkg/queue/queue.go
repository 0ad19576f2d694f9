// Package queue 定义锁、在线状态与同步事件的消息信封，基于 watermill 发布.
//
// 信封为 {"header": {...}, "payload": {...}}，header 冗余记录主题、生产者、发生时间与版本，
// 消息落盘或转储后仍可定位来源. 主题常量见 topics.go，负载见 payloads.go.
//
//	_ = queue.PublishPresence(pub, queue.PresenceEvent{
//	  Type: queue.EventPresence, FileID: 42, SessionID: "s1", Action: queue.PresenceJoined,
//	}, queue.WithProducer(configs.AppName))
//
//	ch, _ := sub.Subscribe(ctx, queue.PresenceTopic(42))
//	for m := range ch {
//	    env, _ := queue.ParsePresence(m)
//	    m.Ack()
//	}
//
// 发布时带上 WithSpan(ctx)，trace id 写入 header，W3C traceparent 写入消息元数据，
// 消费方用 SpanContext 恢复链路.
package queue

import (
	"context"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	PayloadVersionV1 string = "v1"
)

var propagator = propagation.TraceContext{}

// NewEventHeader 便捷创建事件头.
func NewEventHeader(topic string, opts ...func(*EventHeader)) EventHeader {
	hdr := EventHeader{
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}
	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// WithSpan 记录 ctx 中的追踪上下文，ctx 没有有效 span 时不做任何事.
func WithSpan(ctx context.Context) func(*EventHeader) {
	return func(h *EventHeader) {
		sc := trace.SpanContextFromContext(ctx)
		if !sc.IsValid() {
			return
		}

		h.TraceID = sc.TraceID().String()
		h.carrier = propagation.MapCarrier{}
		propagator.Inject(ctx, h.carrier)
	}
}

// WithProducer 设置 Producer.
func WithProducer(p string) func(*EventHeader) { return func(h *EventHeader) { h.Producer = p } }

// Encode 将消息封装为 JSON 字节切片.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 从 JSON 字节解码为消息.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]

	err := sonic.Unmarshal(b, &m)

	return m, err
}

// NewWatermillMessage 构造 watermill 消息，header 字段同时写入元数据.
func NewWatermillMessage[T any](topic string, payload T, opts ...func(*EventHeader)) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)

	data, err := Encode(Message[T]{Header: header, Payload: payload})
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("occurred_at", header.OccurredAt.Format(time.RFC3339Nano))
	msg.Metadata.Set("version", header.Version)

	if header.Producer != "" {
		msg.Metadata.Set("producer", header.Producer)
	}

	if header.TraceID != "" {
		msg.Metadata.Set("trace_id", header.TraceID)
	}

	for k, v := range header.carrier {
		msg.Metadata.Set(k, v)
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	return Decode[T](msg.Payload)
}

// SpanContext 从消息元数据恢复发布方的追踪上下文.
func SpanContext(ctx context.Context, msg *message.Message) context.Context {
	return propagator.Extract(ctx, propagation.MapCarrier(msg.Metadata))
}
