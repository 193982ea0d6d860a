// internal/services/vote_service.go
package services

import (
	"fmt"
	"time"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

const voteFileName = "votes.json"

// 单个投票的选项上限
const maxVoteOptions = 8

// VoteService 有界多选投票管理。
// 到期检查是 pull 式的：在访问时评估，不依赖后台定时器。
type VoteService struct {
	storage *storage.FileStorage
	logger  *utils.Logger
}

// NewVoteService 创建投票服务
func NewVoteService(fs *storage.FileStorage) *VoteService {
	return &VoteService{
		storage: fs,
		logger:  utils.GetLogger(),
	}
}

func (s *VoteService) loadList(sessionID string) *models.VoteList {
	list := models.NewVoteList()
	s.storage.LoadJSONOrDefault(sessionDir(sessionID), voteFileName, list)
	if list.Votes == nil {
		list.Votes = []*models.Vote{}
	}
	return list
}

func (s *VoteService) saveList(sessionID string, list *models.VoteList) error {
	list.SchemaVersion = models.VoteListSchemaVersion
	if err := s.storage.SaveJSONFile(sessionDir(sessionID), voteFileName, list); err != nil {
		return fmt.Errorf("保存投票数据失败: %w", err)
	}
	return nil
}

// Create 创建一个新投票，closes_at = now + duration
func (s *VoteService) Create(sessionID, description string, options []models.VoteOption, relatedIdeaID string, duration time.Duration) (*models.Vote, error) {
	if len(options) < 2 {
		return nil, apperrors.NewValidationError("投票至少需要两个选项", nil)
	}
	if len(options) > maxVoteOptions {
		return nil, apperrors.NewValidationError(fmt.Sprintf("投票选项不能超过%d个", maxVoteOptions), nil)
	}

	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		if opt.Key == "" {
			return nil, apperrors.NewValidationError("投票选项键不能为空", nil)
		}
		if seen[opt.Key] {
			return nil, apperrors.NewValidationError(fmt.Sprintf("投票选项键重复: %s", opt.Key), nil)
		}
		seen[opt.Key] = true
	}

	now := time.Now()
	vote := &models.Vote{
		ID:            utils.GenerateID("vote"),
		Description:   description,
		Options:       options,
		Ballots:       map[string]string{},
		Status:        models.VoteStatusOpen,
		RelatedIdeaID: relatedIdeaID,
		CreatedAt:     now,
		ClosesAt:      now.Add(duration),
	}

	list := s.loadList(sessionID)
	list.Votes = append(list.Votes, vote)
	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("创建投票 %s（%d个选项，%s 截止）", vote.ID, len(options), vote.ClosesAt.Format("15:04"))
	return vote, nil
}

// Get 按ID获取投票
func (s *VoteService) Get(sessionID, voteID string) (*models.Vote, error) {
	list := s.loadList(sessionID)
	vote := list.FindByID(voteID)
	if vote == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("投票不存在: %s", voteID), nil)
	}
	return vote, nil
}

// CastBallot 投下或改投一票。每人一票，后投覆盖先投。
// 返回本次是否改变了该用户之前的选择。
func (s *VoteService) CastBallot(sessionID, voteID, userID, optionKey string) (bool, error) {
	list := s.loadList(sessionID)
	vote := list.FindByID(voteID)
	if vote == nil {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("投票不存在: %s", voteID), nil)
	}

	if vote.Status != models.VoteStatusOpen || time.Now().After(vote.ClosesAt) {
		return false, apperrors.NewVoteClosedError(fmt.Sprintf("投票已关闭: %s", voteID))
	}

	if !vote.HasOption(optionKey) {
		return false, apperrors.NewInvalidOptionError(fmt.Sprintf("无效的投票选项: %s", optionKey))
	}

	previous, had := vote.Ballots[userID]
	vote.Ballots[userID] = optionKey

	if err := s.saveList(sessionID, list); err != nil {
		return false, err
	}

	return had && previous != optionKey, nil
}

// TallyAndClose 计票并关闭。对已关闭的投票幂等：直接返回已有结果。
// 每个已声明选项都会出现在 tally 中（零票也计）；
// 平票按选项声明顺序裁决，先声明者胜。
func (s *VoteService) TallyAndClose(sessionID, voteID string) (*models.Vote, error) {
	list := s.loadList(sessionID)
	vote := list.FindByID(voteID)
	if vote == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("投票不存在: %s", voteID), nil)
	}

	if vote.Status == models.VoteStatusClosed {
		return vote, nil
	}

	tallyAndCloseVote(vote)

	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("投票 %s 已关闭：%d票，胜出 %s", vote.ID, vote.Result.TotalVotes, vote.Result.Winner)
	return vote, nil
}

// tallyAndCloseVote 就地计票并置为关闭态
func tallyAndCloseVote(vote *models.Vote) {
	tally := make(map[string]int, len(vote.Options))
	for _, opt := range vote.Options {
		tally[opt.Key] = 0
	}
	for _, key := range vote.Ballots {
		if _, ok := tally[key]; ok {
			tally[key]++
		}
	}

	winner := ""
	best := -1
	for _, opt := range vote.Options {
		if tally[opt.Key] > best {
			best = tally[opt.Key]
			winner = opt.Key
		}
	}

	vote.Status = models.VoteStatusClosed
	vote.Result = &models.VoteResult{
		Tally:      tally,
		Winner:     winner,
		TotalVotes: len(vote.Ballots),
	}
}

// AutoExpireAll 关闭所有已到期的开放投票并返回它们。
// 调用方必须对每个返回的投票恰好应用一次决议。
func (s *VoteService) AutoExpireAll(sessionID string) ([]*models.Vote, error) {
	list := s.loadList(sessionID)
	now := time.Now()

	var expired []*models.Vote
	for _, vote := range list.Votes {
		if vote.Status == models.VoteStatusOpen && now.After(vote.ClosesAt) {
			tallyAndCloseVote(vote)
			expired = append(expired, vote)
		}
	}

	if len(expired) == 0 {
		return nil, nil
	}

	if err := s.saveList(sessionID, list); err != nil {
		return nil, err
	}

	s.logger.Infof("会话 %s 有 %d 个投票到期关闭", sessionID, len(expired))
	return expired, nil
}

// ListOpen 返回所有未到期的开放投票
func (s *VoteService) ListOpen(sessionID string) []*models.Vote {
	list := s.loadList(sessionID)
	now := time.Now()

	var open []*models.Vote
	for _, vote := range list.Votes {
		if vote.Status == models.VoteStatusOpen && now.Before(vote.ClosesAt) {
			open = append(open, vote)
		}
	}
	return open
}
