// internal/services/knowledge_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/llm"
	"github.com/Corphon/ChatNovelMCP/internal/models"
)

func newKnowledgeFixture(t *testing.T, p llm.Provider) (*KnowledgeService, *CharacterService) {
	t.Helper()
	fs := newTestStorage(t)
	characters := NewCharacterService(fs)
	return NewKnowledgeService(fs, newTestLLM(p), characters), characters
}

func TestSetWorldviewOverwrites(t *testing.T) {
	svc, _ := newKnowledgeFixture(t, textProvider("ok"))

	if _, err := svc.SetWorldview("s1", "", "内容"); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("空名称应返回校验错误，得到 %v", err)
	}

	w, err := svc.SetWorldview("s1", "大陆设定", "五国争霸")
	if err != nil {
		t.Fatalf("设置世界观失败: %v", err)
	}
	if w.Refined {
		t.Error("新设定不应带精炼标记")
	}

	// 同名覆盖不产生重复条目
	svc.SetWorldview("s1", "大陆设定", "七国争霸")
	kb := svc.Get("s1")
	if len(kb.Worldviews) != 1 {
		t.Fatalf("同名覆盖应只有 1 条，得到 %d", len(kb.Worldviews))
	}
	if kb.Worldviews[0].Content != "七国争霸" {
		t.Errorf("内容应被覆盖，得到 %q", kb.Worldviews[0].Content)
	}
}

func TestRefineWorldviewSoftFail(t *testing.T) {
	svc, _ := newKnowledgeFixture(t, errProvider(errors.New("backend down")))
	svc.SetWorldview("s1", "大陆设定", "五国争霸")

	w, err := svc.RefineWorldview(context.Background(), "s1", "大陆设定")
	if err != nil {
		t.Fatalf("精炼失败不应报错: %v", err)
	}
	if w.Content != "五国争霸" || w.Refined {
		t.Error("精炼失败应保留原文且不带精炼标记")
	}

	if _, err := svc.RefineWorldview(context.Background(), "s1", "不存在"); !apperrors.IsNotFoundError(err) {
		t.Errorf("缺失世界观精炼应返回 not_found，得到 %v", err)
	}
}

func TestRefineWorldviewSuccess(t *testing.T) {
	svc, _ := newKnowledgeFixture(t, textProvider("精炼后的大陆五国设定。"))
	svc.SetWorldview("s1", "大陆设定", "五国争霸")

	w, err := svc.RefineWorldview(context.Background(), "s1", "大陆设定")
	if err != nil {
		t.Fatalf("精炼失败: %v", err)
	}
	if !w.Refined || w.Content != "精炼后的大陆五国设定。" {
		t.Errorf("精炼结果未落盘: %+v", w)
	}
}

func TestStyleActivation(t *testing.T) {
	svc, _ := newKnowledgeFixture(t, textProvider("ok"))

	svc.SetStyle("s1", "古龙风", "短句，留白", []string{"样本一", "样本二"})
	svc.SetStyle("s1", "轻小说风", "口语化", nil)

	if err := svc.ActivateStyle("s1", "不存在"); !apperrors.IsNotFoundError(err) {
		t.Errorf("激活缺失文风应返回 not_found，得到 %v", err)
	}
	if err := svc.ActivateStyle("s1", "古龙风"); err != nil {
		t.Fatalf("激活文风失败: %v", err)
	}

	kb := svc.Get("s1")
	style := kb.CurrentStyle()
	if style == nil || style.Name != "古龙风" {
		t.Fatalf("当前文风应为古龙风，得到 %+v", style)
	}
}

func TestBuildSceneContext(t *testing.T) {
	svc, characters := newKnowledgeFixture(t, textProvider("ok"))

	// 空知识库返回占位默认值
	ctx := svc.BuildSceneContext("s1", nil)
	if ctx.WorldviewSummary != "暂无" || ctx.CharactersInfo != "暂无角色" {
		t.Errorf("空知识库应返回占位默认值: %+v", ctx)
	}

	svc.SetWorldview("s1", "大陆设定", "五国争霸")
	svc.SetStyle("s1", "古龙风", "短句，留白", []string{"一", "二", "三", "四"})
	svc.ActivateStyle("s1", "古龙风")
	characters.Merge("s1", []models.CharacterDraft{
		{CanonicalName: "林惊羽", Description: "剑客"},
		{CanonicalName: "苏瑾", Description: "谋士"},
	})

	ctx = svc.BuildSceneContext("s1", []string{"林惊羽"})
	if !strings.Contains(ctx.WorldviewSummary, "五国争霸") {
		t.Errorf("世界观摘要缺失: %q", ctx.WorldviewSummary)
	}
	if !strings.Contains(ctx.CharactersInfo, "林惊羽") {
		t.Errorf("相关角色缺失: %q", ctx.CharactersInfo)
	}
	if strings.Contains(ctx.CharactersInfo, "苏瑾") {
		t.Errorf("无关角色不应收入: %q", ctx.CharactersInfo)
	}
	if ctx.StyleName != "古龙风" {
		t.Errorf("文风名错误: %q", ctx.StyleName)
	}
	// 参考样本最多取 3 条
	if strings.Contains(ctx.StyleSamples, "四") {
		t.Errorf("样本应截断到 3 条: %q", ctx.StyleSamples)
	}
}
