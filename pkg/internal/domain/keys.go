package domain

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

// NewSyncKey 生成跨存储稳定标识（ULID）.
func NewSyncKey(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// Clock 返回当前时间，测试可注入固定时钟.
type Clock func() time.Time

// SystemClock 使用 UTC 墙钟.
func SystemClock() time.Time { return time.Now().UTC() }

// Int64Ptr 返回指针.
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr 返回指针.
func StringPtr(v string) *string { return &v }
