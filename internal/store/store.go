package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"livecard-chat/internal/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound 查询的记录不存在
var ErrNotFound = errors.New("record not found")

// Store 聊天数据的持久化层
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Open opens (or creates) the sqlite database and migrates the schema.
// Uses the pure-Go modernc sqlite driver underneath GORM.
func Open(path string, log *logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying database: %v", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&User{}, &Chat{}, &Message{}, &LiveCard{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %v", err)
	}

	log.Info("database ready", logrus.Fields{"path": path})
	return &Store{db: db, logger: log}, nil
}

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetChat 按ID查找会话
func (s *Store) GetChat(ctx context.Context, id string) (*Chat, error) {
	var chat Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", id, err)
	}
	return &chat, nil
}

// GetLiveCard 按ID查找live card
func (s *Store) GetLiveCard(ctx context.Context, id string) (*LiveCard, error) {
	var card LiveCard
	err := s.db.WithContext(ctx).First(&card, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load live card %s: %w", id, err)
	}
	return &card, nil
}

// UserByToken 按API令牌查找用户
func (s *Store) UserByToken(ctx context.Context, token string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "api_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by token: %w", err)
	}
	return &user, nil
}

// CreateChat 创建新会话
func (s *Store) CreateChat(ctx context.Context, chat *Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(chat).Error; err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// FindChatByLiveCardAndUser 查找某用户与某live card之间已有的会话
func (s *Store) FindChatByLiveCardAndUser(ctx context.Context, liveCardID, userID string) (*Chat, error) {
	var chat Chat
	err := s.db.WithContext(ctx).
		First(&chat, "live_card_id = ? AND user_id = ?", liveCardID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}
	return &chat, nil
}

// AppendMessage 创建消息并把它的ID追加到会话的消息列表。
//
// These are two independent writes with no transaction between them: a crash
// after the first leaves the message stored but unlinked, so callers must
// treat delivery as at-least-once.
func (s *Store) AppendMessage(ctx context.Context, chatID string, message *Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	message.ChatID = chatID

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return err
	}

	ids := append(chat.Messages(), message.ID)
	chat.SetMessages(ids)
	if err := s.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Update("message_ids", chat.MessageIDs).Error; err != nil {
		return fmt.Errorf("failed to link message to chat: %w", err)
	}

	return nil
}

// RecentMessages 返回会话最近的limit条消息，按时间从旧到新排列
func (s *Store) RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for chat %s: %w", chatID, err)
	}

	// 反转为时间正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateUser 创建用户（主要用于初始化与测试）
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateLiveCard 创建live card（主要用于初始化与测试）
func (s *Store) CreateLiveCard(ctx context.Context, card *LiveCard) error {
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return fmt.Errorf("failed to create live card: %w", err)
	}
	return nil
}
