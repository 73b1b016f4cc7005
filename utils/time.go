package utils

import (
	"time"
)

// WithinWindow 判断 t 的小时是否落在 [startHour, endHour] 闭区间内。
// startHour == endHour 表示只允许这一个小时；0..23 全窗等价于不限制。
func WithinWindow(t time.Time, startHour, endHour int) bool {
	h := t.Hour()
	return h >= startHour && h <= endHour
}

// DayKey 返回 t 所在日历日的键（本地时区），用于每日限额计数。
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// StartOfDay 返回 t 所在日历日零点。
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
