// internal/services/character_service_test.go
package services

import (
	"testing"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
)

func TestMergeCreatesAndUpdates(t *testing.T) {
	svc := NewCharacterService(newTestStorage(t))

	err := svc.Merge("s1", []models.CharacterDraft{
		{CanonicalName: "林惊羽", DisplayName: "小林", Description: "沉默的剑客"},
	})
	if err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	chars, _ := svc.List("s1")
	if len(chars) != 1 {
		t.Fatalf("应有 1 个角色，得到 %d", len(chars))
	}

	// 再次合并同名角色：非空字段覆盖，别名去重追加
	err = svc.Merge("s1", []models.CharacterDraft{
		{CanonicalName: "林惊羽", Description: "剑宗首徒", Aliases: []string{"小林子", "小林子"}},
	})
	if err != nil {
		t.Fatalf("二次合并失败: %v", err)
	}

	got, _ := svc.Get("s1", "林惊羽")
	if got.Description != "剑宗首徒" {
		t.Errorf("描述应被覆盖，得到 %s", got.Description)
	}
	if got.DisplayName != "小林" {
		t.Errorf("空字段不应覆盖已有值，得到 %s", got.DisplayName)
	}
	if len(got.Aliases) != 1 || got.Aliases[0] != "小林子" {
		t.Errorf("别名应去重追加，得到 %v", got.Aliases)
	}

	chars, _ = svc.List("s1")
	if len(chars) != 1 {
		t.Errorf("合并不应产生重复角色，得到 %d", len(chars))
	}
}

func TestMergeEmptyDraftSkipped(t *testing.T) {
	svc := NewCharacterService(newTestStorage(t))

	if err := svc.Merge("s1", []models.CharacterDraft{{Description: "无名氏"}}); err != nil {
		t.Fatalf("合并失败: %v", err)
	}
	chars, _ := svc.List("s1")
	if len(chars) != 0 {
		t.Errorf("无名候选应被跳过，得到 %d 个角色", len(chars))
	}
}

func TestLockedCharacterImmuneToMerge(t *testing.T) {
	svc := NewCharacterService(newTestStorage(t))

	svc.Merge("s1", []models.CharacterDraft{
		{CanonicalName: "苏瑾", Description: "D1"},
	})

	character, locked, err := svc.ToggleLock("s1", "苏瑾")
	if err != nil {
		t.Fatalf("锁定失败: %v", err)
	}
	if !locked || !character.Locked {
		t.Fatal("角色应处于锁定态")
	}

	// 自动合并对锁定角色整体不生效
	if err := svc.Merge("s1", []models.CharacterDraft{
		{CanonicalName: "苏瑾", Description: "D2", Aliases: []string{"阿瑾"}},
	}); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	got, _ := svc.Get("s1", "苏瑾")
	if got.Description != "D1" {
		t.Errorf("锁定角色描述应保持 D1，得到 %s", got.Description)
	}
	if len(got.Aliases) != 0 {
		t.Errorf("锁定角色不应新增别名，得到 %v", got.Aliases)
	}

	// 显式用户编辑绕过锁
	edited, err := svc.UpdateDescription("s1", "苏瑾", "D2")
	if err != nil {
		t.Fatalf("显式编辑失败: %v", err)
	}
	if edited.Description != "D2" {
		t.Errorf("显式编辑应生效，得到 %s", edited.Description)
	}
	if !edited.Locked {
		t.Error("显式编辑不应解除锁定")
	}

	// 再次切换回未锁定
	_, locked, _ = svc.ToggleLock("s1", "苏瑾")
	if locked {
		t.Error("再次切换应解除锁定")
	}
}

func TestResolveIdentityOrder(t *testing.T) {
	svc := NewCharacterService(newTestStorage(t))

	svc.Merge("s1", []models.CharacterDraft{
		{ExternalID: "qq_1001", CanonicalName: "陈默", DisplayName: "默默", Aliases: []string{"老陈"}},
		{CanonicalName: "默默无闻"},
	})

	// 外部ID优先于名称匹配
	if err := svc.Merge("s1", []models.CharacterDraft{
		{ExternalID: "qq_1001", CanonicalName: "默默无闻", Description: "按外部ID归并"},
	}); err != nil {
		t.Fatalf("合并失败: %v", err)
	}

	got, _ := svc.Get("s1", "陈默")
	if got.Description != "按外部ID归并" {
		t.Errorf("外部ID应优先解析到陈默，得到 %q", got.Description)
	}
	other, _ := svc.Get("s1", "默默无闻")
	if other.Description != "" {
		t.Errorf("同名角色不应被误写，得到 %q", other.Description)
	}

	// 别名与显示名都能解析
	byAlias, err := svc.Get("s1", "老陈")
	if err != nil || byAlias.CanonicalName != "陈默" {
		t.Errorf("别名解析失败: %v", err)
	}
	byDisplay, err := svc.Get("s1", "默默")
	if err != nil || byDisplay.CanonicalName != "陈默" {
		t.Errorf("显示名解析失败: %v", err)
	}
}

func TestCharacterNotFound(t *testing.T) {
	svc := NewCharacterService(newTestStorage(t))

	if _, err := svc.Get("s1", "不存在"); !apperrors.IsNotFoundError(err) {
		t.Errorf("缺失角色应返回 not_found，得到 %v", err)
	}
	if _, _, err := svc.ToggleLock("s1", "不存在"); !apperrors.IsNotFoundError(err) {
		t.Errorf("缺失角色锁定应返回 not_found，得到 %v", err)
	}
	if _, err := svc.UpdateDescription("s1", "不存在", "x"); !apperrors.IsNotFoundError(err) {
		t.Errorf("缺失角色编辑应返回 not_found，得到 %v", err)
	}
}
