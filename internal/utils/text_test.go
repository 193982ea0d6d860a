// internal/utils/text_test.go
package utils

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID("idea")
	if !strings.HasPrefix(id, "idea_") {
		t.Errorf("ID 应带前缀: %q", id)
	}
	if len(id) != len("idea_")+8 {
		t.Errorf("ID 长度不符: %q", id)
	}

	if id2 := GenerateID("idea"); id2 == id {
		t.Error("连续生成的 ID 不应相同")
	}

	bare := GenerateID("")
	if strings.Contains(bare, "_") || len(bare) != 8 {
		t.Errorf("无前缀 ID 应为 8 位: %q", bare)
	}
}

func TestTruncateText(t *testing.T) {
	// 按 rune 截断，中文字符不计字节
	if got := TruncateText("一二三四五", 3); got != "一二三..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateText("一二三", 3); got != "一二三" {
		t.Errorf("未超长不应截断: %q", got)
	}
	if got := TruncateText("", 3); got != "" {
		t.Errorf("空串应原样返回: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("一二三四五", 3); got != "一二三" {
		t.Errorf("got %q", got)
	}
	if got := TruncateRunes("abc", 10); got != "abc" {
		t.Errorf("未超长不应截断: %q", got)
	}
}

func TestTailRunes(t *testing.T) {
	if got := TailRunes("一二三四五", 2); got != "四五" {
		t.Errorf("got %q", got)
	}
	if got := TailRunes("一二", 5); got != "一二" {
		t.Errorf("未超长应原样返回: %q", got)
	}
}
