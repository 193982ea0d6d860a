// internal/models/chat.go
package models

import "time"

// ChatMessage 群聊贡献消息
type ChatMessage struct {
	SenderName string    `json:"sender_name"`
	SenderID   string    `json:"sender_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessageBuffer 一个会话的消息缓冲文档
// 缓冲在章节合成成功后整体清空，不会部分持久化
type MessageBuffer struct {
	SchemaVersion int           `json:"schema_version"`
	Messages      []ChatMessage `json:"messages"`
}

// MessageBufferSchemaVersion 当前消息缓冲文档格式版本
const MessageBufferSchemaVersion = 1

// NewMessageBuffer 创建空的消息缓冲
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{
		SchemaVersion: MessageBufferSchemaVersion,
		Messages:      []ChatMessage{},
	}
}

// Count 当前缓冲消息数
func (b *MessageBuffer) Count() int {
	return len(b.Messages)
}
