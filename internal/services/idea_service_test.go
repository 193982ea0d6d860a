// internal/services/idea_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
)

func newIdeaFixture(t *testing.T, p *queueProvider) (*IdeaService, *VoteService) {
	t.Helper()
	fs := newTestStorage(t)
	llmSvc := newTestLLM(p)
	votes := NewVoteService(fs)
	return NewIdeaService(fs, llmSvc, votes), votes
}

func judgeJSON(score string) string {
	return `{"overall": ` + score + `, "originality": 80, "coherence": 80, "narrative_value": 80, "reason": "测试评语"}`
}

func TestScoreAggregation(t *testing.T) {
	provider := &queueProvider{replies: []queuedReply{
		{text: judgeJSON("80")},
		{text: judgeJSON("70")},
		{text: judgeJSON("75")},
	}}
	svc, _ := newIdeaFixture(t, provider)

	idea, err := svc.Submit("s1", "小明", "u1", "主角捡到一只会说话的猫", models.IdeaTypePlot)
	if err != nil {
		t.Fatalf("提交创意失败: %v", err)
	}

	scored, err := svc.Score(context.Background(), "s1", idea.ID, ScoreContext{})
	if err != nil {
		t.Fatalf("打分失败: %v", err)
	}

	if len(scored.Scores) != 3 {
		t.Fatalf("应有 3 个评委评分，得到 %d", len(scored.Scores))
	}
	if scored.WeightedAvg != 75.0 {
		t.Errorf("均分应为 75.0，得到 %.1f", scored.WeightedAvg)
	}

	resolved, err := svc.Resolve("s1", idea.ID, 70)
	if err != nil {
		t.Fatalf("落定失败: %v", err)
	}
	if resolved.Status != models.IdeaStatusApproved {
		t.Errorf("均分过阈值应为 approved，得到 %s", resolved.Status)
	}
}

func TestScoreFailedJudgeExcluded(t *testing.T) {
	// 两个有效评分加一个失败评委：失败者排除出聚合，不计为零分
	provider := &queueProvider{replies: []queuedReply{
		{text: judgeJSON("60")},
		{text: judgeJSON("58")},
		{err: errors.New("backend down")},
	}}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小红", "u2", "反派其实是主角失散的哥哥", models.IdeaTypePlot)
	scored, err := svc.Score(context.Background(), "s1", idea.ID, ScoreContext{})
	if err != nil {
		t.Fatalf("打分失败: %v", err)
	}

	if len(scored.Scores) != 2 {
		t.Fatalf("应有 2 个有效评分，得到 %d", len(scored.Scores))
	}
	if scored.WeightedAvg != 59.0 {
		t.Errorf("均分应为 59.0，得到 %.1f", scored.WeightedAvg)
	}

	resolved, _ := svc.Resolve("s1", idea.ID, 70)
	if resolved.Status != models.IdeaStatusRejected {
		t.Errorf("均分未过阈值应为 rejected，得到 %s", resolved.Status)
	}

	// 管理员强制通过：状态改写，评分与均分保留
	forced, err := svc.ForceSetStatus("s1", idea.ID, models.IdeaStatusApproved)
	if err != nil {
		t.Fatalf("强制通过失败: %v", err)
	}
	if forced.Status != models.IdeaStatusApproved {
		t.Errorf("强制通过后应为 approved，得到 %s", forced.Status)
	}
	if forced.WeightedAvg != 59.0 || len(forced.Scores) != 2 {
		t.Errorf("强制通过不应改动已有评分: avg=%.1f scores=%d", forced.WeightedAvg, len(forced.Scores))
	}
}

func TestScoreAllJudgesFail(t *testing.T) {
	provider := &queueProvider{replies: []queuedReply{{err: errors.New("backend down")}}}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "测试创意", models.IdeaTypePlot)
	scored, err := svc.Score(context.Background(), "s1", idea.ID, ScoreContext{})
	if err != nil {
		t.Fatalf("打分失败: %v", err)
	}
	if scored.WeightedAvg != 0.0 {
		t.Errorf("零评委成功时均分应为 0.0，得到 %.1f", scored.WeightedAvg)
	}

	resolved, _ := svc.Resolve("s1", idea.ID, 70)
	if resolved.Status != models.IdeaStatusRejected {
		t.Errorf("零分创意应为 rejected，得到 %s", resolved.Status)
	}
}

func TestScoreOutOfRangeExcluded(t *testing.T) {
	provider := &queueProvider{replies: []queuedReply{
		{text: judgeJSON("150")},
		{text: judgeJSON("80")},
		{text: judgeJSON("80")},
	}}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "测试创意", models.IdeaTypePlot)
	scored, err := svc.Score(context.Background(), "s1", idea.ID, ScoreContext{})
	if err != nil {
		t.Fatalf("打分失败: %v", err)
	}
	if len(scored.Scores) != 2 {
		t.Errorf("超界评分应被排除，有效评分应为 2，得到 %d", len(scored.Scores))
	}
	if scored.WeightedAvg != 80.0 {
		t.Errorf("均分应为 80.0，得到 %.1f", scored.WeightedAvg)
	}
}

func TestCheckConflictFailOpen(t *testing.T) {
	provider := &queueProvider{replies: []queuedReply{{err: errors.New("backend down")}}}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "主角突然会魔法", models.IdeaTypeWorld)
	report, err := svc.CheckConflict(context.Background(), "s1", idea.ID, "低魔世界观", "")
	if err != nil {
		t.Fatalf("冲突检测不应报错: %v", err)
	}
	if report.HasConflict {
		t.Error("检测失败应按无冲突处理（fail-open）")
	}

	got, _ := svc.Get("s1", idea.ID)
	if got.Status != models.IdeaStatusPending {
		t.Errorf("fail-open 不应改动创意状态，得到 %s", got.Status)
	}
}

func TestCheckConflictDetected(t *testing.T) {
	provider := &queueProvider{replies: []queuedReply{
		{text: `{"has_conflict": true, "conflicts": ["与低魔设定矛盾"], "suggestion": "改为来自稀有魔法道具"}`},
	}}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "主角突然会魔法", models.IdeaTypeWorld)
	report, err := svc.CheckConflict(context.Background(), "s1", idea.ID, "低魔世界观", "")
	if err != nil {
		t.Fatalf("冲突检测失败: %v", err)
	}
	if !report.HasConflict {
		t.Fatal("应检出冲突")
	}

	got, _ := svc.Get("s1", idea.ID)
	if got.Status != models.IdeaStatusConflict {
		t.Errorf("检出冲突后状态应为 conflict，得到 %s", got.Status)
	}
	if got.ConflictInfo == nil || got.ConflictInfo.Suggestion == "" {
		t.Error("冲突信息应被落盘")
	}
}

func TestConflictVoteResolution(t *testing.T) {
	provider := &queueProvider{}
	svc, votes := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "主角突然会魔法", models.IdeaTypeWorld)
	report := &models.ConflictInfo{HasConflict: true, Suggestion: "改为稀有道具"}

	vote, err := svc.CreateConflictVote("s1", idea.ID, report, time.Hour)
	if err != nil {
		t.Fatalf("创建冲突投票失败: %v", err)
	}
	if len(vote.Options) != 3 {
		t.Fatalf("冲突投票应有 3 个固定选项，得到 %d", len(vote.Options))
	}
	if vote.RelatedIdeaID != idea.ID {
		t.Errorf("投票应关联创意 %s", idea.ID)
	}

	votes.CastBallot("s1", vote.ID, "u1", models.VoteOptionAcceptNew)
	votes.CastBallot("s1", vote.ID, "u2", models.VoteOptionAcceptNew)
	votes.CastBallot("s1", vote.ID, "u3", models.VoteOptionKeepOld)

	closed, err := votes.TallyAndClose("s1", vote.ID)
	if err != nil {
		t.Fatalf("计票失败: %v", err)
	}

	resolved, err := svc.ApplyVoteResult("s1", closed)
	if err != nil {
		t.Fatalf("应用决议失败: %v", err)
	}
	if resolved.Status != models.IdeaStatusApproved {
		t.Errorf("accept_new 胜出应为 approved，得到 %s", resolved.Status)
	}

	// 幂等：重复应用是空操作
	again, err := svc.ApplyVoteResult("s1", closed)
	if err != nil {
		t.Fatalf("重复应用决议失败: %v", err)
	}
	if again.Status != models.IdeaStatusApproved || len(again.Amendments) != 0 {
		t.Error("重复应用决议不应产生额外改动")
	}
}

func TestCompromiseAppendsAmendment(t *testing.T) {
	provider := &queueProvider{}
	svc, votes := newIdeaFixture(t, provider)

	original := "主角突然会魔法"
	idea, _ := svc.Submit("s1", "小明", "u1", original, models.IdeaTypeWorld)
	report := &models.ConflictInfo{HasConflict: true, Suggestion: "改为来自稀有魔法道具"}

	vote, _ := svc.CreateConflictVote("s1", idea.ID, report, time.Hour)
	votes.CastBallot("s1", vote.ID, "u1", models.VoteOptionCompromise)
	closed, _ := votes.TallyAndClose("s1", vote.ID)

	resolved, err := svc.ApplyVoteResult("s1", closed)
	if err != nil {
		t.Fatalf("应用决议失败: %v", err)
	}
	if resolved.Status != models.IdeaStatusApproved {
		t.Errorf("compromise 胜出应为 approved，得到 %s", resolved.Status)
	}
	if len(resolved.Amendments) != 1 {
		t.Fatalf("应有 1 条修订记录，得到 %d", len(resolved.Amendments))
	}
	// 原内容保留，折中说明作为修订追加
	if !strings.HasPrefix(resolved.Content, original) {
		t.Error("折中决议不应改写原始创意内容")
	}
	if !strings.Contains(resolved.Content, "改为来自稀有魔法道具") {
		t.Error("折中说明应追加进创意内容")
	}
}

func TestApplyVoteResultRequiresClosedVote(t *testing.T) {
	provider := &queueProvider{}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "测试创意", models.IdeaTypePlot)
	vote, _ := svc.CreateConflictVote("s1", idea.ID, nil, time.Hour)

	if _, err := svc.ApplyVoteResult("s1", vote); !apperrors.IsType(err, apperrors.ErrorTypeStaleState) {
		t.Errorf("开放投票应拒绝应用决议，得到 %v", err)
	}
}

func TestResolveExpiredVotes(t *testing.T) {
	provider := &queueProvider{}
	svc, votes := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "测试创意", models.IdeaTypePlot)
	vote, _ := svc.CreateConflictVote("s1", idea.ID, nil, time.Millisecond)
	votes.CastBallot("s1", vote.ID, "u1", models.VoteOptionKeepOld)

	time.Sleep(5 * time.Millisecond)

	resolved, err := svc.ResolveExpiredVotes("s1")
	if err != nil {
		t.Fatalf("到期决议失败: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("应决议 1 个创意，得到 %d", len(resolved))
	}
	if resolved[0].Status != models.IdeaStatusRejected {
		t.Errorf("keep_old 胜出应为 rejected，得到 %s", resolved[0].Status)
	}
}

func TestResolveOnlyFromPending(t *testing.T) {
	provider := &queueProvider{}
	svc, _ := newIdeaFixture(t, provider)

	idea, _ := svc.Submit("s1", "小明", "u1", "测试创意", models.IdeaTypePlot)
	svc.ForceSetStatus("s1", idea.ID, models.IdeaStatusApproved)

	// 已落定的创意不受阈值比较影响
	resolved, err := svc.Resolve("s1", idea.ID, 70)
	if err != nil {
		t.Fatalf("落定失败: %v", err)
	}
	if resolved.Status != models.IdeaStatusApproved {
		t.Errorf("已落定创意不应被改写，得到 %s", resolved.Status)
	}
}
