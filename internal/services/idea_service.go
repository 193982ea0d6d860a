// internal/services/idea_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

const ideaFileName = "ideas.json"

// IdeaService 创意治理管线：提交 → 多评委打分 → 冲突检测 → 投票决议。
type IdeaService struct {
	storage *storage.FileStorage
	llm     *LLMService
	votes   *VoteService
	logger  *utils.Logger
}

// NewIdeaService 创建创意服务
func NewIdeaService(fs *storage.FileStorage, llm *LLMService, votes *VoteService) *IdeaService {
	return &IdeaService{
		storage: fs,
		llm:     llm,
		votes:   votes,
		logger:  utils.GetLogger(),
	}
}

func (s *IdeaService) loadList(sessionID string) *models.IdeaList {
	list := models.NewIdeaList()
	s.storage.LoadJSONOrDefault(sessionDir(sessionID), ideaFileName, list)
	if list.Ideas == nil {
		list.Ideas = []*models.Idea{}
	}
	return list
}

func (s *IdeaService) saveList(sessionID string, list *models.IdeaList) error {
	list.SchemaVersion = models.IdeaListSchemaVersion
	if err := s.storage.SaveJSONFile(sessionDir(sessionID), ideaFileName, list); err != nil {
		return fmt.Errorf("保存创意数据失败: %w", err)
	}
	return nil
}

// Submit 提交新创意，初始状态 pending
func (s *IdeaService) Submit(sessionID, author, authorID, content, ideaType string) (*models.Idea, error) {
	if content == "" {
		return nil, apperrors.NewValidationError("创意内容不能为空", nil)
	}
	if ideaType == "" {
		ideaType = models.IdeaTypePlot
	}

	idea := &models.Idea{
		ID:          utils.GenerateID("idea"),
		Author:      author,
		AuthorID:    authorID,
		Content:     content,
		Type:        ideaType,
		SubmittedAt: time.Now(),
		Status:      models.IdeaStatusPending,
	}

	list := s.loadList(sessionID)
	list.Ideas = append(list.Ideas, idea)
	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("创意已提交: %s（%s）", idea.ID, author)
	return idea, nil
}

// Get 按ID获取创意
func (s *IdeaService) Get(sessionID, ideaID string) (*models.Idea, error) {
	list := s.loadList(sessionID)
	idea := list.FindByID(ideaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", ideaID), nil)
	}
	return idea, nil
}

// List 返回会话的全部创意
func (s *IdeaService) List(sessionID string) []*models.Idea {
	return s.loadList(sessionID).Ideas
}

// judgeResponse 评委打分的结构化输出
type judgeResponse struct {
	Overall        float64 `json:"overall"`
	Originality    int     `json:"originality"`
	Coherence      int     `json:"coherence"`
	NarrativeValue int     `json:"narrative_value"`
	Reason         string  `json:"reason"`
}

// ScoreContext 打分时的上下文信息
type ScoreContext struct {
	NovelTitle       string
	NovelSynopsis    string
	WorldviewSummary string
	ExistingIdeas    string
}

// Score 对创意进行多评委并发打分并聚合。
// 调用失败或响应不可解析的评委被排除在聚合之外（不计为零分）；
// weighted_avg = 有效评分的算术平均，保留一位小数；零评委成功时为 0.0。
// 通过/拒绝的阈值比较由调用方负责。
func (s *IdeaService) Score(ctx context.Context, sessionID, ideaID string, scoreCtx ScoreContext) (*models.Idea, error) {
	list := s.loadList(sessionID)
	idea := list.FindByID(ideaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", ideaID), nil)
	}

	roles := config.ScoringRoles()

	prompt := fmt.Sprintf(scoreIdeaPrompt,
		orDefault(scoreCtx.NovelTitle, "未定"),
		orDefault(scoreCtx.NovelSynopsis, "暂无"),
		orDefault(scoreCtx.WorldviewSummary, "暂无"),
		orDefault(scoreCtx.ExistingIdeas, "暂无"),
		idea.Author, idea.Type, idea.Content,
	)

	// 并发 fan-out，按评委独立超时；只聚合按时完成的结果
	type judgeOutcome struct {
		role  string
		resp  judgeResponse
		valid bool
	}

	outcomes := make([]judgeOutcome, len(roles))
	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func(i int, role string) {
			defer wg.Done()

			var resp judgeResponse
			err := s.llm.InvokeStructured(ctx, InvokeRequest{
				Role:    role,
				Prompt:  prompt,
				Timeout: judgeCallTimeout,
			}, &resp)
			if err != nil {
				s.logger.Warnf("评委 %s 打分失败，排除出聚合: %v", role, err)
				return
			}
			if resp.Overall < 0 || resp.Overall > 100 {
				s.logger.Warnf("评委 %s 返回超界分数 %.1f，排除出聚合", role, resp.Overall)
				return
			}
			outcomes[i] = judgeOutcome{role: role, resp: resp, valid: true}
		}(i, role)
	}
	wg.Wait()

	var scores []models.JudgeScore
	var sum float64
	for _, o := range outcomes {
		if !o.valid {
			continue
		}
		scores = append(scores, models.JudgeScore{
			JudgeID: o.role,
			Score:   o.resp.Overall,
			SubScores: map[string]int{
				"originality":     o.resp.Originality,
				"coherence":       o.resp.Coherence,
				"narrative_value": o.resp.NarrativeValue,
			},
			Rationale: o.resp.Reason,
		})
		sum += o.resp.Overall
	}

	if len(scores) > 0 {
		idea.Scores = scores
		idea.WeightedAvg = math.Round(sum/float64(len(scores))*10) / 10
	} else {
		// 零评委成功：按阈值比较必然落入拒绝
		idea.WeightedAvg = 0.0
	}

	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("创意 %s 打分完成：%d/%d 评委有效，均分 %.1f",
		ideaID, len(scores), len(roles), idea.WeightedAvg)
	return idea, nil
}

// CheckConflict 单评委冲突检测。
// 后端失败或输出不可解析时返回宽容默认（无冲突）：检测 fail-open，不阻塞流程。
func (s *IdeaService) CheckConflict(ctx context.Context, sessionID, ideaID, worldviewContext, approvedIdeasContext string) (*models.ConflictInfo, error) {
	list := s.loadList(sessionID)
	idea := list.FindByID(ideaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", ideaID), nil)
	}

	prompt := fmt.Sprintf(conflictCheckPrompt,
		orDefault(worldviewContext, "暂无"),
		orDefault(approvedIdeasContext, "暂无"),
		idea.Content,
	)

	var report models.ConflictInfo
	err := s.llm.InvokeStructured(ctx, InvokeRequest{
		Role:   config.RoleConflictCheck,
		Prompt: prompt,
	}, &report)
	if err != nil {
		s.logger.Warnf("创意 %s 冲突检测失败，按无冲突处理: %v", ideaID, err)
		return &models.ConflictInfo{HasConflict: false}, nil
	}

	if report.HasConflict {
		idea.Status = models.IdeaStatusConflict
		idea.ConflictInfo = &report
		if err := s.saveList(sessionID, list); err != nil {
			return nil, err
		}
	}

	return &report, nil
}

// Resolve 按阈值比较落定创意状态（无冲突路径）
func (s *IdeaService) Resolve(sessionID, ideaID string, threshold float64) (*models.Idea, error) {
	list := s.loadList(sessionID)
	idea := list.FindByID(ideaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", ideaID), nil)
	}

	if idea.Status != models.IdeaStatusPending {
		return idea, nil
	}

	if idea.WeightedAvg >= threshold {
		idea.Status = models.IdeaStatusApproved
	} else {
		idea.Status = models.IdeaStatusRejected
	}

	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}
	return idea, nil
}

// ForceSetStatus 管理命令：强制通过/拒绝，不改动已有评分
func (s *IdeaService) ForceSetStatus(sessionID, ideaID, status string) (*models.Idea, error) {
	if status != models.IdeaStatusApproved && status != models.IdeaStatusRejected {
		return nil, apperrors.NewValidationError(fmt.Sprintf("无效的目标状态: %s", status), nil)
	}

	list := s.loadList(sessionID)
	idea := list.FindByID(ideaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", ideaID), nil)
	}

	idea.Status = status
	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("创意 %s 被强制设为 %s", ideaID, status)
	return idea, nil
}

// CreateConflictVote 为冲突创意创建固定三选项的投票
func (s *IdeaService) CreateConflictVote(sessionID, ideaID string, report *models.ConflictInfo, duration time.Duration) (*models.Vote, error) {
	list := s.loadList(sessionID)
	idea := list.FindByID(ideaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", ideaID), nil)
	}

	suggestion := ""
	if report != nil {
		suggestion = report.Suggestion
	}
	if suggestion == "" {
		suggestion = "在保留既有设定的前提下吸收新创意的合理部分"
	}

	options := []models.VoteOption{
		{Key: models.VoteOptionAcceptNew, Label: "接受新创意"},
		{Key: models.VoteOptionKeepOld, Label: "维持原有设定"},
		{Key: models.VoteOptionCompromise, Label: "折中方案：" + utils.TruncateText(suggestion, 80)},
	}

	description := fmt.Sprintf("创意冲突裁决：%s", utils.TruncateText(idea.Content, 100))
	vote, err := s.votes.Create(sessionID, description, options, ideaID, duration)
	if err != nil {
		return nil, err
	}

	idea.Status = models.IdeaStatusConflict
	if report != nil {
		idea.ConflictInfo = report
	}
	idea.RelatedVoteID = vote.ID
	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	return vote, nil
}

// ApplyVoteResult 把已关闭投票的结果应用回创意。
// 幂等：只有仍处于 conflict 状态的创意会被改写，重复应用是空操作。
// accept_new → approved；keep_old → rejected；
// compromise → approved 且把折中说明作为修订追加（原内容保留）。
func (s *IdeaService) ApplyVoteResult(sessionID string, vote *models.Vote) (*models.Idea, error) {
	if vote == nil || vote.Status != models.VoteStatusClosed || vote.Result == nil {
		return nil, apperrors.NewStaleStateError("投票尚未关闭，无法应用决议")
	}
	if vote.RelatedIdeaID == "" {
		return nil, apperrors.NewStaleStateError(fmt.Sprintf("投票 %s 未关联创意", vote.ID))
	}

	list := s.loadList(sessionID)
	idea := list.FindByID(vote.RelatedIdeaID)
	if idea == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("创意不存在: %s", vote.RelatedIdeaID), nil)
	}

	if idea.Status != models.IdeaStatusConflict {
		// 决议已应用过
		return idea, nil
	}

	switch vote.Result.Winner {
	case models.VoteOptionAcceptNew:
		idea.Status = models.IdeaStatusApproved
	case models.VoteOptionKeepOld:
		idea.Status = models.IdeaStatusRejected
	case models.VoteOptionCompromise:
		idea.Status = models.IdeaStatusApproved
		suggestion := ""
		if idea.ConflictInfo != nil {
			suggestion = idea.ConflictInfo.Suggestion
		}
		amendment := fmt.Sprintf("[%s 折中修订] %s",
			time.Now().Format("2006-01-02"), orDefault(suggestion, "按投票结果采用折中方案"))
		idea.Amendments = append(idea.Amendments, amendment)
		idea.Content = idea.Content + "\n\n【修订】" + orDefault(suggestion, "按投票结果采用折中方案")
	default:
		return nil, apperrors.NewStaleStateError(fmt.Sprintf("未知的投票选项胜出: %s", vote.Result.Winner))
	}

	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("创意 %s 按投票 %s 决议为 %s", idea.ID, vote.ID, idea.Status)
	return idea, nil
}

// ResolveExpiredVotes 关闭到期投票并逐个应用决议
func (s *IdeaService) ResolveExpiredVotes(sessionID string) ([]*models.Idea, error) {
	expired, err := s.votes.AutoExpireAll(sessionID)
	if err != nil {
		return nil, err
	}

	var resolved []*models.Idea
	for _, vote := range expired {
		idea, err := s.ApplyVoteResult(sessionID, vote)
		if err != nil {
			s.logger.Warnf("投票 %s 决议应用失败: %v", vote.ID, err)
			continue
		}
		resolved = append(resolved, idea)
	}
	return resolved, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
