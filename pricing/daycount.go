package pricing

// DayCount 日计数惯例。
type DayCount string

const (
	Act365 DayCount = "act365"
	Act360 DayCount = "act360"
)

const msPerDay = 86_400_000.0

// TimeToExpiry 由毫秒时间戳计算年化到期时间，floorEps 防止到期日
// 除零（到期瞬间仍可估值）。
func TimeToExpiry(nowMs, expiryMs int64, dc DayCount, floorEps float64) float64 {
	days := float64(expiryMs-nowMs) / msPerDay
	var t float64
	switch dc {
	case Act360:
		t = days / 360.0
	default:
		t = days / 365.0
	}
	if t < floorEps {
		return floorEps
	}
	return t
}
