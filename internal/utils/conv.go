package utils

import (
	"fmt"
	"strconv"
	"time"
)

// IntOr 解析整数，失败或非正数时返回默认值
func IntOr(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

// ParseID 解析自增主键
func ParseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// TimeAgo 阿尔巴尼亚语的相对时间
func TimeAgo(t time.Time) string {
	seconds := int(time.Since(t).Seconds())
	switch {
	case seconds < 60:
		return "tani"
	case seconds < 3600:
		return fmt.Sprintf("%d min më parë", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%d orë më parë", seconds/3600)
	case seconds < 2592000:
		return fmt.Sprintf("%d ditë më parë", seconds/86400)
	case seconds < 31536000:
		return fmt.Sprintf("%d muaj më parë", seconds/2592000)
	}
	return fmt.Sprintf("%d vite më parë", seconds/31536000)
}
