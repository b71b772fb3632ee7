package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"livecard-chat/internal/botclient"
	"livecard-chat/internal/logger"
	"livecard-chat/internal/store"
	"livecard-chat/internal/streaming"

	"github.com/google/uuid"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(logger.LogConfig{Level: "error"})
}

type fakeStorage struct {
	chats map[string]*store.Chat
	cards map[string]*store.LiveCard

	history   []store.Message
	appended  []*store.Message
	created   []*store.Chat
	appendErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		chats: make(map[string]*store.Chat),
		cards: make(map[string]*store.LiveCard),
	}
}

func (f *fakeStorage) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	chat, ok := f.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeStorage) GetLiveCard(ctx context.Context, id string) (*store.LiveCard, error) {
	card, ok := f.cards[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return card, nil
}

func (f *fakeStorage) CreateChat(ctx context.Context, chat *store.Chat) error {
	f.chats[chat.ID] = chat
	f.created = append(f.created, chat)
	return nil
}

func (f *fakeStorage) FindChatByLiveCardAndUser(ctx context.Context, liveCardID, userID string) (*store.Chat, error) {
	for _, chat := range f.chats {
		if chat.LiveCardID == liveCardID && chat.UserID == userID {
			return chat, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStorage) AppendMessage(ctx context.Context, chatID string, message *store.Message) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, message)
	return nil
}

func (f *fakeStorage) RecentMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error) {
	return f.history, nil
}

type fakeUpstream struct {
	fixture          string
	streamErr        error
	lastRequest      *botclient.ChatRequest
	completeMessages []streaming.Message
	completeErr      error
}

func (f *fakeUpstream) Stream(ctx context.Context, req botclient.ChatRequest) (*botclient.EventStream, error) {
	f.lastRequest = &req
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return botclient.NewEventStream(io.NopCloser(strings.NewReader(f.fixture)), testLogger()), nil
}

func (f *fakeUpstream) Complete(ctx context.Context, req botclient.ChatRequest) ([]streaming.Message, error) {
	f.lastRequest = &req
	return f.completeMessages, f.completeErr
}

// assistantFixture 一段完整的上游回复事件流
func assistantFixture(text string, deltas ...string) string {
	responseID, messageID, itemID := uuid.New(), uuid.New(), uuid.New()

	var sb strings.Builder
	respond := func(payload string) {
		sb.WriteString("event: respond\ndata: ")
		sb.WriteString(payload)
		sb.WriteString("\n\n")
	}

	respond(fmt.Sprintf(`{"event_type":"response.created","response":{"id":"%s"}}`, responseID))
	respond(`{"event_type":"response.in_progress","response":{}}`)
	respond(fmt.Sprintf(`{"event_type":"response.chat_message.added","message_type":"chat","message":{"id":"%s","message":{"type":"chat","role":"assistant"}}}`, messageID))
	respond(fmt.Sprintf(`{"event_type":"response.chat_message.item.added","message_id":"%s","item_type":"text","item":{"id":"%s","content":{"content_type":"text","text":""}}}`, messageID, itemID))
	for _, delta := range deltas {
		respond(fmt.Sprintf(`{"event_type":"response.chat_message.item.output_text.delta","item_id":"%s","delta":"%s"}`, itemID, delta))
	}
	respond(fmt.Sprintf(`{"event_type":"response.chat_message.item.output_text.done","item_id":"%s","text":"%s"}`, itemID, text))
	respond(fmt.Sprintf(`{"event_type":"response.chat_message.done","message_type":"chat","message":{"id":"%s"},"finish_reason":"stop"}`, messageID))
	respond(`{"event_type":"response.completed","response":{}}`)
	sb.WriteString("event: done\ndata: \n\n")
	return sb.String()
}

func seedChat(storage *fakeStorage) (*store.User, *store.Chat) {
	user := &store.User{ID: "user-1", Name: "Alice"}
	card := &store.LiveCard{ID: "card-1", BotID: "bot-1", BotName: "Tracker", TopicTitle: "Go releases"}
	chat := &store.Chat{ID: "chat-1", UserID: user.ID, LiveCardID: card.ID, ChatType: "live_card"}
	storage.cards[card.ID] = card
	storage.chats[chat.ID] = chat
	return user, chat
}

func collectEvents(events *[]WireEvent) func(WireEvent) error {
	return func(event WireEvent) error {
		*events = append(*events, event)
		return nil
	}
}

func TestStreamTurnRelaysWireEvents(t *testing.T) {
	storage := newFakeStorage()
	user, _ := seedChat(storage)
	upstream := &fakeUpstream{fixture: assistantFixture("Hello there!", "Hello", " there!")}
	service := NewService(storage, upstream, 20, testLogger())

	var emitted []WireEvent
	err := service.StreamTurn(context.Background(), user, "chat-1", "hi", collectEvents(&emitted))
	if err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}

	// start, delta, delta, done
	if len(emitted) != 4 {
		t.Fatalf("Expected 4 wire events, got %d: %+v", len(emitted), emitted)
	}

	if emitted[0].StreamStatus != StreamStart || emitted[0].Role != "user" || emitted[0].MessageContent != "hi" {
		t.Errorf("Bad start event: %+v", emitted[0])
	}
	if emitted[1].StreamStatus != StreamDelta || emitted[1].Delta != "Hello" {
		t.Errorf("Bad first delta event: %+v", emitted[1])
	}
	if emitted[2].StreamStatus != StreamDelta || emitted[2].Delta != " there!" {
		t.Errorf("Bad second delta event: %+v", emitted[2])
	}
	if emitted[3].StreamStatus != StreamDone || emitted[3].MessageContent != "Hello there!" {
		t.Errorf("Bad done event: %+v", emitted[3])
	}

	// 所有助手事件共享同一个message_id
	if emitted[1].MessageID != emitted[3].MessageID {
		t.Errorf("Assistant events must share a message id: %s vs %s", emitted[1].MessageID, emitted[3].MessageID)
	}

	// 用户消息与助手消息都已落库
	if len(storage.appended) != 2 {
		t.Fatalf("Expected 2 persisted messages, got %d", len(storage.appended))
	}
	if storage.appended[0].Role != "user" || storage.appended[0].Text != "hi" {
		t.Errorf("Bad persisted user message: %+v", storage.appended[0])
	}
	if storage.appended[1].Role != "assistant" || storage.appended[1].Text != "Hello there!" {
		t.Errorf("Bad persisted assistant message: %+v", storage.appended[1])
	}
	if storage.appended[1].ID != emitted[3].MessageID {
		t.Errorf("Persisted assistant id must match wire id")
	}
}

func TestStreamTurnSendsHistory(t *testing.T) {
	storage := newFakeStorage()
	user, _ := seedChat(storage)
	storage.history = []store.Message{
		{ID: "m1", Role: "user", Text: "earlier question"},
		{ID: "m2", Role: "assistant", Text: "earlier answer"},
	}
	upstream := &fakeUpstream{fixture: assistantFixture("ok")}
	service := NewService(storage, upstream, 20, testLogger())

	var emitted []WireEvent
	if err := service.StreamTurn(context.Background(), user, "chat-1", "hi", collectEvents(&emitted)); err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}

	req := upstream.lastRequest
	if req == nil {
		t.Fatal("Upstream was never called")
	}
	if len(req.ChatHistory) != 2 {
		t.Fatalf("Expected 2 history messages, got %d", len(req.ChatHistory))
	}
	if req.ChatHistory[0].Role != streaming.RoleUser || req.ChatHistory[0].Text() != "earlier question" {
		t.Errorf("Bad first history message: %+v", req.ChatHistory[0])
	}
	if req.ChatHistory[1].Role != streaming.RoleAssistant {
		t.Errorf("Bad second history role: %s", req.ChatHistory[1].Role)
	}
	if req.UserInput == nil || req.UserInput.Text() != "hi" {
		t.Error("User input missing from upstream request")
	}
	if req.BotID != "bot-1" || req.LiveCardTopic != "Go releases" {
		t.Errorf("Live card context missing from request: %+v", req)
	}
}

func TestStreamTurnUpstreamFailure(t *testing.T) {
	storage := newFakeStorage()
	user, _ := seedChat(storage)

	// 上游返回无法解析的负载，事件流转为单个合成失败事件
	upstream := &fakeUpstream{fixture: "event: respond\ndata: not json\n\n"}
	service := NewService(storage, upstream, 20, testLogger())

	var emitted []WireEvent
	err := service.StreamTurn(context.Background(), user, "chat-1", "hi", collectEvents(&emitted))
	if err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}

	if len(emitted) != 2 {
		t.Fatalf("Expected start + error events, got %d: %+v", len(emitted), emitted)
	}
	if emitted[0].StreamStatus != StreamStart {
		t.Errorf("Expected start event first, got %+v", emitted[0])
	}
	if emitted[1].StreamStatus != StreamError {
		t.Errorf("Expected error event, got %+v", emitted[1])
	}

	// 错误信息不应泄露上游细节
	if strings.Contains(emitted[1].MessageContent, "json") {
		t.Errorf("Error event leaks upstream details: '%s'", emitted[1].MessageContent)
	}

	// 用户消息仍然保留，助手消息不落库
	if len(storage.appended) != 1 || storage.appended[0].Role != "user" {
		t.Errorf("Only the user message should be persisted, got %+v", storage.appended)
	}
}

func TestStreamTurnUnknownChat(t *testing.T) {
	storage := newFakeStorage()
	user, _ := seedChat(storage)
	service := NewService(storage, &fakeUpstream{}, 20, testLogger())

	var emitted []WireEvent
	err := service.StreamTurn(context.Background(), user, "missing", "hi", collectEvents(&emitted))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	// 解析失败发生在任何wire事件之前
	if len(emitted) != 0 {
		t.Errorf("No events should be emitted, got %d", len(emitted))
	}
	if len(storage.appended) != 0 {
		t.Errorf("Nothing should be persisted, got %d messages", len(storage.appended))
	}
}

func TestStreamTurnForbidden(t *testing.T) {
	storage := newFakeStorage()
	seedChat(storage)
	service := NewService(storage, &fakeUpstream{}, 20, testLogger())

	stranger := &store.User{ID: "user-2", Name: "Bob"}
	var emitted []WireEvent
	err := service.StreamTurn(context.Background(), stranger, "chat-1", "hi", collectEvents(&emitted))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}
	if len(emitted) != 0 {
		t.Errorf("No events should be emitted, got %d", len(emitted))
	}
}

func TestStreamTurnEmitFailureStopsRelay(t *testing.T) {
	storage := newFakeStorage()
	user, _ := seedChat(storage)
	upstream := &fakeUpstream{fixture: assistantFixture("Hello there!", "Hello", " there!")}
	service := NewService(storage, upstream, 20, testLogger())

	// 客户端在第二个delta时断开
	count := 0
	emitErr := errors.New("client gone")
	err := service.StreamTurn(context.Background(), user, "chat-1", "hi", func(event WireEvent) error {
		count++
		if count > 2 {
			return emitErr
		}
		return nil
	})
	if !errors.Is(err, emitErr) {
		t.Fatalf("Expected emit error to propagate, got %v", err)
	}
}

func TestStartChatCreatesChatWithWelcome(t *testing.T) {
	storage := newFakeStorage()
	card := &store.LiveCard{ID: "card-1", BotID: "bot-1", TopicTitle: "Go releases"}
	storage.cards[card.ID] = card
	user := &store.User{ID: "user-1", Name: "Alice"}

	upstream := &fakeUpstream{
		completeMessages: []streaming.Message{
			streaming.NewChatMessage(streaming.RoleAssistant, "Welcome aboard!"),
		},
	}
	service := NewService(storage, upstream, 20, testLogger())

	result, err := service.StartChat(context.Background(), user, "", "card-1")
	if err != nil {
		t.Fatalf("StartChat failed: %v", err)
	}
	if !result.Created {
		t.Error("Expected a newly created chat")
	}
	if len(storage.created) != 1 {
		t.Fatalf("Expected 1 created chat, got %d", len(storage.created))
	}
	if len(storage.appended) != 1 {
		t.Fatalf("Expected welcome message persisted, got %d messages", len(storage.appended))
	}
	if storage.appended[0].Text != "Welcome aboard!" || storage.appended[0].Role != "assistant" {
		t.Errorf("Bad welcome message: %+v", storage.appended[0])
	}
}

func TestStartChatWelcomeFallback(t *testing.T) {
	storage := newFakeStorage()
	storage.cards["card-1"] = &store.LiveCard{ID: "card-1", BotID: "bot-1"}
	user := &store.User{ID: "user-1"}

	upstream := &fakeUpstream{completeErr: errors.New("upstream down")}
	service := NewService(storage, upstream, 20, testLogger())

	if _, err := service.StartChat(context.Background(), user, "", "card-1"); err != nil {
		t.Fatalf("StartChat must not fail when welcome generation fails: %v", err)
	}
	if len(storage.appended) != 1 {
		t.Fatalf("Expected fallback welcome persisted, got %d messages", len(storage.appended))
	}
	if storage.appended[0].Text == "" {
		t.Error("Fallback welcome text must not be empty")
	}
}

func TestStartChatReturnsExistingChat(t *testing.T) {
	storage := newFakeStorage()
	user, chat := seedChat(storage)
	service := NewService(storage, &fakeUpstream{}, 20, testLogger())

	result, err := service.StartChat(context.Background(), user, "", chat.LiveCardID)
	if err != nil {
		t.Fatalf("StartChat failed: %v", err)
	}
	if result.Created {
		t.Error("Existing chat must not be recreated")
	}
	if result.ChatID != chat.ID {
		t.Errorf("Expected chat %s, got %s", chat.ID, result.ChatID)
	}
	if len(storage.appended) != 0 {
		t.Error("No welcome message for existing chats")
	}
}

func TestStartChatRequiresIdentifier(t *testing.T) {
	service := NewService(newFakeStorage(), &fakeUpstream{}, 20, testLogger())

	_, err := service.StartChat(context.Background(), &store.User{ID: "u"}, "", "")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("Expected ErrBadRequest, got %v", err)
	}
}

func TestHistoryMapsToWireEvents(t *testing.T) {
	storage := newFakeStorage()
	user, _ := seedChat(storage)
	storage.history = []store.Message{
		{ID: "m1", Role: "user", Text: "question"},
		{ID: "m2", Role: "assistant", Text: "answer"},
	}
	service := NewService(storage, &fakeUpstream{}, 20, testLogger())

	events, err := service.History(context.Background(), user, "chat-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].StreamStatus != StreamDefault || events[0].MessageContent != "question" {
		t.Errorf("Bad history event: %+v", events[0])
	}
	if events[1].Role != "assistant" {
		t.Errorf("Bad history role: %s", events[1].Role)
	}
}
