package chat

import (
	"context"
	"errors"
	"io"
	"time"

	"livecard-chat/internal/botclient"
	"livecard-chat/internal/logger"
	"livecard-chat/internal/store"
	"livecard-chat/internal/streaming"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 上游失败时发给客户端的提示语，不携带内部错误细节
const upstreamErrorNotice = "AI服务暂时不可用，请稍后再试"

// welcomeFallback 欢迎语生成失败时的兜底文案
const welcomeFallback = "你好，我是这张卡片的AI助手，有什么想了解的吗？"

var (
	// ErrForbidden 用户访问了不属于自己的会话
	ErrForbidden = errors.New("chat does not belong to user")
	// ErrBadRequest 请求参数不完整
	ErrBadRequest = errors.New("chat_id or live_card_id is required")
)

// Storage 是会话编排所需的持久化操作子集
type Storage interface {
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	GetLiveCard(ctx context.Context, id string) (*store.LiveCard, error)
	CreateChat(ctx context.Context, chat *store.Chat) error
	FindChatByLiveCardAndUser(ctx context.Context, liveCardID, userID string) (*store.Chat, error)
	AppendMessage(ctx context.Context, chatID string, message *store.Message) error
	RecentMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error)
}

// Upstream 是AI服务客户端的抽象，便于测试时替换
type Upstream interface {
	Stream(ctx context.Context, req botclient.ChatRequest) (*botclient.EventStream, error)
	Complete(ctx context.Context, req botclient.ChatRequest) ([]streaming.Message, error)
}

// Service 负责一次聊天轮次的完整编排：
// 持久化用户输入、调用上游、转发wire事件、落库助手回复。
type Service struct {
	storage      Storage
	bot          Upstream
	historyLimit int
	logger       *logger.Logger
}

func NewService(storage Storage, bot Upstream, historyLimit int, log *logger.Logger) *Service {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Service{
		storage:      storage,
		bot:          bot,
		historyLimit: historyLimit,
		logger:       log,
	}
}

// StreamTurn 执行一次用户输入轮次，经由 emit 依次交付wire事件。
//
// 会话与live card的解析错误在任何wire事件发出之前返回，调用方仍可
// 回复普通的HTTP错误。一旦发出首个事件，后续失败一律转换为单个
// error 状态的wire事件，序列随之结束。
func (s *Service) StreamTurn(ctx context.Context, user *store.User, chatID, prompt string, emit func(WireEvent) error) error {
	chat, err := s.storage.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.UserID != user.ID {
		return ErrForbidden
	}

	card, err := s.storage.GetLiveCard(ctx, chat.LiveCardID)
	if err != nil {
		return err
	}

	history, err := s.storage.RecentMessages(ctx, chatID, s.historyLimit)
	if err != nil {
		return err
	}

	// 用户消息先落库，即使后续上游调用失败也保留这条输入
	userMessage := &store.Message{
		ID:       uuid.NewString(),
		SenderID: user.ID,
		Role:     "user",
		Text:     prompt,
	}
	if err := s.storage.AppendMessage(ctx, chatID, userMessage); err != nil {
		return err
	}

	if err := emit(startEvent(userMessage.ID, prompt)); err != nil {
		return err
	}

	// 助手消息ID在流开始前分配，所有delta事件共享同一ID
	assistantID := uuid.NewString()

	stream, err := s.bot.Stream(ctx, s.buildRequest(chat, card, user, history, prompt))
	if err != nil {
		s.logger.Error("failed to open assistant stream", err, logrus.Fields{"chat_id": chatID})
		emit(errorEvent(upstreamErrorNotice))
		return nil
	}
	defer stream.Close()

	return s.relay(ctx, stream, chat, card, assistantID, emit)
}

// relay 消费上游事件序列并转发为wire事件
func (s *Service) relay(ctx context.Context, stream *botclient.EventStream, chat *store.Chat, card *store.LiveCard, assistantID string, emit func(WireEvent) error) error {
	for {
		event, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// 协议违例，上游序列已不可信
			s.logger.Error("assistant stream aborted", err, logrus.Fields{"chat_id": chat.ID})
			emit(errorEvent(upstreamErrorNotice))
			return nil
		}

		switch ev := event.(type) {
		case streaming.OutputTextDelta:
			if err := emit(deltaEvent(assistantID, ev.Delta)); err != nil {
				return err
			}

		case streaming.OutputTextDone:
			assistantMessage := &store.Message{
				ID:       assistantID,
				SenderID: card.BotID,
				Role:     "assistant",
				Text:     ev.Text,
			}
			if err := s.storage.AppendMessage(ctx, chat.ID, assistantMessage); err != nil {
				s.logger.Error("failed to persist assistant message", err, logrus.Fields{"chat_id": chat.ID})
				emit(errorEvent(upstreamErrorNotice))
				return nil
			}
			if err := emit(doneEvent(assistantID, ev.Text)); err != nil {
				return err
			}

		case streaming.ResponseFailed:
			s.logger.Error("assistant stream failed", errors.New(ev.Response.Error), logrus.Fields{"chat_id": chat.ID})
			emit(errorEvent(upstreamErrorNotice))
			return nil

		default:
			// 其他事件不产生wire输出
		}
	}
}

func (s *Service) buildRequest(chat *store.Chat, card *store.LiveCard, user *store.User, history []store.Message, prompt string) botclient.ChatRequest {
	chatHistory := make([]*streaming.ChatMessage, 0, len(history))
	for _, m := range history {
		role := streaming.RoleAssistant
		if m.Role == "user" {
			role = streaming.RoleUser
		}
		chatHistory = append(chatHistory, streaming.NewChatMessage(role, m.Text))
	}

	category := card.Category
	if category == "" {
		category = "Information Tracker"
	}

	return botclient.ChatRequest{
		ChatID:             chat.ID,
		SessionID:          uuid.NewString(),
		BotID:              card.BotID,
		BotName:            card.BotName,
		UserName:           user.Name,
		FocusedCategory:    category,
		LiveCardTopic:      card.TopicTitle,
		LiveCardContent:    card.Content,
		ChatHistory:        chatHistory,
		UserInput:          streaming.NewChatMessage(streaming.RoleUser, prompt),
		MaxChatHistorySize: s.historyLimit,
	}
}

// StartResult 开始会话接口的返回体
type StartResult struct {
	ChatID           string `json:"chat_id"`
	LiveCardID       string `json:"live_card_id"`
	ChatType         string `json:"chat_type"`
	TopicTitle       string `json:"topic_title"`
	TopicDescription string `json:"topic_description"`
	TopicImageURL    string `json:"topic_image_url"`
	Created          bool   `json:"created"`
}

// StartChat 返回已有会话，或者为用户与live card创建新会话。
// 新会话会通过非流式补全生成一条欢迎消息；生成失败时退回固定文案。
func (s *Service) StartChat(ctx context.Context, user *store.User, chatID, liveCardID string) (*StartResult, error) {
	if chatID != "" && chatID != "-1" {
		chat, err := s.storage.GetChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if chat.UserID != user.ID {
			return nil, ErrForbidden
		}
		card, err := s.storage.GetLiveCard(ctx, chat.LiveCardID)
		if err != nil {
			return nil, err
		}
		return startResult(chat, card, false), nil
	}

	if liveCardID == "" {
		return nil, ErrBadRequest
	}

	card, err := s.storage.GetLiveCard(ctx, liveCardID)
	if err != nil {
		return nil, err
	}

	chat, err := s.storage.FindChatByLiveCardAndUser(ctx, liveCardID, user.ID)
	if err == nil {
		return startResult(chat, card, false), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	chat = &store.Chat{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		LiveCardID: card.ID,
		ChatType:   "live_card",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.storage.CreateChat(ctx, chat); err != nil {
		return nil, err
	}

	welcome := &store.Message{
		ID:       uuid.NewString(),
		SenderID: card.BotID,
		Role:     "assistant",
		Text:     s.welcomeText(ctx, chat, card, user),
	}
	if err := s.storage.AppendMessage(ctx, chat.ID, welcome); err != nil {
		return nil, err
	}

	return startResult(chat, card, true), nil
}

// welcomeText 请求上游生成欢迎语，失败时返回兜底文案
func (s *Service) welcomeText(ctx context.Context, chat *store.Chat, card *store.LiveCard, user *store.User) string {
	req := s.buildRequest(chat, card, user, nil, "")
	req.UserInput = nil
	req.Messages = []*streaming.ChatMessage{
		streaming.NewChatMessage(streaming.RoleUser, "请简短地打个招呼，并介绍一下这张卡片的话题。"),
	}

	messages, err := s.bot.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("welcome message generation failed, using fallback", logrus.Fields{
			"chat_id": chat.ID,
			"error":   err.Error(),
		})
		return welcomeFallback
	}

	for _, message := range messages {
		if m, ok := message.(*streaming.ChatMessage); ok && m.Text() != "" {
			return m.Text()
		}
	}
	return welcomeFallback
}

func startResult(chat *store.Chat, card *store.LiveCard, created bool) *StartResult {
	return &StartResult{
		ChatID:           chat.ID,
		LiveCardID:       card.ID,
		ChatType:         chat.ChatType,
		TopicTitle:       card.TopicTitle,
		TopicDescription: card.TopicDescription,
		TopicImageURL:    card.TopicImageURL,
		Created:          created,
	}
}

// History 返回会话最近的消息，映射为wire形式
func (s *Service) History(ctx context.Context, user *store.User, chatID string, limit int) ([]WireEvent, error) {
	chat, err := s.storage.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != user.ID {
		return nil, ErrForbidden
	}

	if limit <= 0 {
		limit = s.historyLimit
	}
	messages, err := s.storage.RecentMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}

	events := make([]WireEvent, 0, len(messages))
	for _, m := range messages {
		events = append(events, historyEvent(m.ID, m.Role, m.Text, m.CreatedAt.UTC().Format(time.RFC3339Nano)))
	}
	return events, nil
}
