// internal/models/vote.go
package models

import "time"

// Vote 状态
const (
	VoteStatusOpen   = "open"
	VoteStatusClosed = "closed"
)

// 冲突投票的固定三个选项
const (
	VoteOptionAcceptNew  = "accept_new"
	VoteOptionKeepOld    = "keep_old"
	VoteOptionCompromise = "compromise"
)

// VoteOption 投票选项；Key 唯一，声明顺序即平票裁决顺序
type VoteOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// VoteResult 计票结果
type VoteResult struct {
	Tally      map[string]int `json:"tally"`
	Winner     string         `json:"winner"`
	TotalVotes int            `json:"total_votes"`
}

// Vote 有界多选投票
// 生命周期: open → closed（显式关闭或到期），closed 为终态
type Vote struct {
	ID            string            `json:"id"`
	Description   string            `json:"description"`
	Options       []VoteOption      `json:"options"`
	Ballots       map[string]string `json:"ballots"` // user_id → option_key
	Status        string            `json:"status"`
	Result        *VoteResult       `json:"result,omitempty"`
	RelatedIdeaID string            `json:"related_idea_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ClosesAt      time.Time         `json:"closes_at"`
}

// HasOption 检查选项键是否存在
func (v *Vote) HasOption(key string) bool {
	for _, opt := range v.Options {
		if opt.Key == key {
			return true
		}
	}
	return false
}

// OptionLabel 返回选项键对应的标签；未找到时返回键本身
func (v *Vote) OptionLabel(key string) string {
	for _, opt := range v.Options {
		if opt.Key == key {
			return opt.Label
		}
	}
	return key
}

// VoteList 一个会话的全部投票文档
type VoteList struct {
	SchemaVersion int     `json:"schema_version"`
	Votes         []*Vote `json:"votes"`
}

// VoteListSchemaVersion 当前投票文档格式版本
const VoteListSchemaVersion = 1

// NewVoteList 创建空的投票文档
func NewVoteList() *VoteList {
	return &VoteList{
		SchemaVersion: VoteListSchemaVersion,
		Votes:         []*Vote{},
	}
}

// FindByID 按ID查找投票
func (l *VoteList) FindByID(id string) *Vote {
	for _, vote := range l.Votes {
		if vote.ID == id {
			return vote
		}
	}
	return nil
}
