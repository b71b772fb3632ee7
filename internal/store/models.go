package store

import (
	"encoding/json"
	"time"
)

// User 已认证用户
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	APIToken  string    `gorm:"column:api_token;index" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat 一个用户与一张live card之间的会话
type Chat struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"index" json:"user_id"`
	LiveCardID string    `gorm:"index" json:"live_card_id"`
	ChatType   string    `json:"chat_type"`
	MessageIDs string    `json:"-"` // JSON编码的消息ID列表
	CreatedAt  time.Time `json:"created_at"`
}

// Messages decodes the chat's ordered message id list.
func (c *Chat) Messages() []string {
	if c.MessageIDs == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(c.MessageIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// SetMessages encodes the chat's ordered message id list.
func (c *Chat) SetMessages(ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	c.MessageIDs = string(data)
}

// Message 会话中的一条消息
type Message struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	ChatID    string    `gorm:"index" json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Role      string    `json:"role"` // "user" | "assistant"
	Text      string    `json:"text"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// LiveCard 聊天机器人背后的话题卡片
type LiveCard struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	BotID            string    `json:"bot_id"`
	BotName          string    `json:"bot_name"`
	TopicTitle       string    `json:"topic_title"`
	TopicDescription string    `json:"topic_description"`
	TopicImageURL    string    `json:"topic_image_url"`
	Category         string    `json:"category"`
	Content          string    `json:"content"` // JSON编码的AI内容
	CreatedAt        time.Time `json:"created_at"`
}
