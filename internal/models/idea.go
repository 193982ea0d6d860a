// internal/models/idea.go
package models

import "time"

// Idea 状态
const (
	IdeaStatusPending  = "pending"
	IdeaStatusApproved = "approved"
	IdeaStatusRejected = "rejected"
	IdeaStatusConflict = "conflict"
)

// Idea 类型
const (
	IdeaTypePlot      = "plot"      // 剧情走向
	IdeaTypeCharacter = "character" // 角色设定
	IdeaTypeWorld     = "world"     // 世界观设定
)

// JudgeScore 单个评审后端给出的评分
type JudgeScore struct {
	JudgeID   string         `json:"judge_id"`
	Score     float64        `json:"score"` // 0-100
	SubScores map[string]int `json:"sub_scores,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}

// ConflictInfo 冲突检测结果
type ConflictInfo struct {
	HasConflict bool     `json:"has_conflict"`
	Conflicts   []string `json:"conflicts,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"` // 折中方案建议
}

// Idea 创意提案
// 生命周期: pending → scored → (approved | conflict → voted → approved/rejected) | rejected
type Idea struct {
	ID            string        `json:"id"`
	Author        string        `json:"author"`
	AuthorID      string        `json:"author_id"`
	Content       string        `json:"content"`
	Type          string        `json:"type"`
	SubmittedAt   time.Time     `json:"submitted_at"`
	Scores        []JudgeScore  `json:"scores,omitempty"`
	WeightedAvg   float64       `json:"weighted_avg"`
	Status        string        `json:"status"`
	ConflictInfo  *ConflictInfo `json:"conflict_info,omitempty"`
	RelatedVoteID string        `json:"related_vote_id,omitempty"`
	// 折中决议的修订说明（追加，不覆盖原内容）
	Amendments []string `json:"amendments,omitempty"`
}

// IdeaList 一个会话的全部创意文档
type IdeaList struct {
	SchemaVersion int     `json:"schema_version"`
	Ideas         []*Idea `json:"ideas"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// IdeaListSchemaVersion 当前创意文档格式版本
const IdeaListSchemaVersion = 1

// NewIdeaList 创建空的创意文档
func NewIdeaList() *IdeaList {
	return &IdeaList{
		SchemaVersion: IdeaListSchemaVersion,
		Ideas:         []*Idea{},
	}
}

// FindByID 按ID查找创意
func (l *IdeaList) FindByID(id string) *Idea {
	for _, idea := range l.Ideas {
		if idea.ID == id {
			return idea
		}
	}
	return nil
}

// ApprovedIdeas 返回所有已通过的创意
func (l *IdeaList) ApprovedIdeas() []*Idea {
	var approved []*Idea
	for _, idea := range l.Ideas {
		if idea.Status == IdeaStatusApproved {
			approved = append(approved, idea)
		}
	}
	return approved
}
