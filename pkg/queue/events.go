package queue

import "github.com/ThreeDotsLabs/watermill/message"

// -------------------------- 基于业务封装 events --------------------------

// Publish 构造信封并发布到指定主题；pub 为 nil 时不做任何事.
func Publish[T any](pub message.Publisher, topic string, payload T, opts ...func(*EventHeader)) error {
	if pub == nil {
		return nil
	}

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(topic, msg)
}

// PublishPresence 发布文件级在线事件到 tv.presence.file.<id>.
func PublishPresence(pub message.Publisher, ev PresenceEvent, opts ...func(*EventHeader)) error {
	return Publish(pub, PresenceTopic(ev.FileID), ev, opts...)
}

// ParsePresence 将 Watermill 消息解析为在线事件信封.
func ParsePresence(msg *message.Message) (Message[PresenceEvent], error) {
	return ParseWatermillMessage[PresenceEvent](msg)
}

// PublishSyncConflict 发布 tv.sync.conflict 事件.
func PublishSyncConflict(pub message.Publisher, payload SyncConflictPayload, opts ...func(*EventHeader)) error {
	return Publish(pub, TopicSyncConflict, payload, opts...)
}

// ParseSyncConflict 解析冲突事件.
func ParseSyncConflict(msg *message.Message) (Message[SyncConflictPayload], error) {
	return ParseWatermillMessage[SyncConflictPayload](msg)
}

// PublishSyncCompleted 发布 tv.sync.completed 事件.
func PublishSyncCompleted(pub message.Publisher, payload SyncCompletedPayload, opts ...func(*EventHeader)) error {
	return Publish(pub, TopicSyncCompleted, payload, opts...)
}

// PublishTrashPurged 发布 tv.trash.purged 事件.
func PublishTrashPurged(pub message.Publisher, payload TrashPurgedPayload, opts ...func(*EventHeader)) error {
	return Publish(pub, TopicTrashPurged, payload, opts...)
}
