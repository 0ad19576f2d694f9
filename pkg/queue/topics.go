// Package queue 定义消息主题常量，供发布/订阅使用.
package queue

import "strconv"

// 主题命名规范：tv.<域>.<动作>[.<子类型>]，尽量稳定且向后兼容.
// 域：presence(在线与锁)、sync(同步)、trash(回收站)

const (
	// 在线状态领域，按文件拆分主题，订阅方只接收自己打开的文件.
	TopicPresenceFilePrefix = "tv.presence.file."

	// 同步领域.
	TopicSyncConflict  = "tv.sync.conflict"  // 双方都修改，按时间戳裁决后的冲突通知
	TopicSyncCompleted = "tv.sync.completed" // 一次同步操作结束（含取消）

	// 回收站领域.
	TopicTrashPurged = "tv.trash.purged" // 过期条目已被清理
)

// 在线事件类型.
const (
	EventLockAcquired = "lock-acquired"
	EventLockReleased = "lock-released"
	EventPresence     = "presence"
)

// 在线动作与锁释放原因.
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"

	ReleaseReasonReleased = "released"
	ReleaseReasonExpired  = "expired"
)

// PresenceTopic 返回文件的在线事件主题.
func PresenceTopic(fileID int64) string {
	return TopicPresenceFilePrefix + strconv.FormatInt(fileID, 10)
}

// SyncTopics 同步相关主题集合.
var SyncTopics = []string{TopicSyncConflict, TopicSyncCompleted}
