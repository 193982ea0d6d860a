// internal/utils/text.go
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID 生成带前缀的短唯一 ID，如 idea_a1b2c3d4
func GenerateID(prefix string) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return short
	}
	return prefix + "_" + short
}

// TruncateText 按 rune 截断文本，超出部分以省略号代替
func TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// TruncateRunes 按 rune 截断文本，不附加省略号
func TruncateRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}

// TailRunes 保留文本末尾的 maxLen 个 rune
func TailRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[len(runes)-maxLen:])
}
