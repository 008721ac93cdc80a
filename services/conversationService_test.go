package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"socratic/db"
	"socratic/models"
	"socratic/services/catalog"
	"socratic/services/prompt"
	"socratic/services/tutor"
)

type scriptedModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (m *scriptedModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) setReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// brokenRepository fails every write and read.
type brokenRepository struct{}

var errStoreDown = errors.New("store unavailable")

func (brokenRepository) SaveConversation(context.Context, *models.ConversationRecord) error {
	return errStoreDown
}
func (brokenRepository) AppendMessage(context.Context, *models.MessageLogEntry) error {
	return errStoreDown
}
func (brokenRepository) GetConversationsByOwner(context.Context, string) ([]*models.ConversationRecord, error) {
	return nil, errStoreDown
}
func (brokenRepository) GetConversation(context.Context, string, string) (*models.ConversationRecord, error) {
	return nil, errStoreDown
}
func (brokenRepository) GetMessages(context.Context, string, string) ([]*models.MessageLogEntry, error) {
	return nil, errStoreDown
}
func (brokenRepository) Close() error { return nil }

func newTestService(repo db.ConversationRepository, maxTurns int) (*ConversationService, *scriptedModel) {
	model := &scriptedModel{reply: "What do you think happens next?"}
	registry := tutor.NewRegistry(tutor.RegistryConfig{
		LLM:         model,
		UseCases:    tutor.NewUseCaseGenerator(model, nil, 0.7),
		MaxTurns:    maxTurns,
		Temperature: 0.7,
	})
	evaluator := tutor.NewEvaluator(model, nil)
	return NewConversationService(catalog.Default(), registry, evaluator, repo, prompt.VariantEncouraging), model
}

func TestStartPredefined(t *testing.T) {
	repo := db.NewInMemoryConversationRepository()
	service, model := newTestService(repo, 6)
	ctx := context.Background()

	resp, err := service.StartPredefined(ctx, &models.StartPredefinedRequest{
		Category:  "Generative AI",
		Topic:     "Hallucinations in LLMs",
		UserEmail: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("StartPredefined() failed: %v", err)
	}
	if resp.SessionID == "" || !strings.Contains(resp.BotIntro, "Hallucinations in LLMs") {
		t.Errorf("StartPredefined() = %+v", resp)
	}
	if model.callCount() != 0 {
		t.Errorf("static opening made %d model calls", model.callCount())
	}

	record, err := repo.GetConversation(ctx, "ada@example.com", resp.SessionID)
	if err != nil {
		t.Fatalf("conversation not persisted at start: %v", err)
	}
	if record.Category != "Generative AI" || len(record.Turns) != 1 || record.Turns[0].Sender != models.SenderBot {
		t.Errorf("record = %+v", record)
	}
}

func TestStartPredefinedErrors(t *testing.T) {
	service, _ := newTestService(db.NewInMemoryConversationRepository(), 6)

	tests := []struct {
		name     string
		req      models.StartPredefinedRequest
		expected error
	}{
		{
			name:     "unknown category",
			req:      models.StartPredefinedRequest{Category: "Generative", Topic: "Prompt Engineering", UserEmail: "ada@example.com"},
			expected: catalog.ErrInvalidSelection,
		},
		{
			name:     "topic from another category",
			req:      models.StartPredefinedRequest{Category: "Generative AI", Topic: "Validation", UserEmail: "ada@example.com"},
			expected: catalog.ErrInvalidSelection,
		},
		{
			name:     "missing owner",
			req:      models.StartPredefinedRequest{Category: "Generative AI", Topic: "Prompt Engineering"},
			expected: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.StartPredefined(context.Background(), &tt.req)
			if !errors.Is(err, tt.expected) {
				t.Errorf("StartPredefined() error = %v, expected %v", err, tt.expected)
			}
		})
	}
}

func TestStartPredefinedProblemOpening(t *testing.T) {
	service, _ := newTestService(db.NewInMemoryConversationRepository(), 6)

	resp, err := service.StartPredefined(context.Background(), &models.StartPredefinedRequest{
		Category:  "LeetPrompt",
		Topic:     "Zero-Shot Basic Conversation",
		UserEmail: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("StartPredefined() failed: %v", err)
	}
	if !strings.HasPrefix(resp.BotIntro, "You're working on the LeetPrompt: **Zero-Shot Basic Conversation**") {
		t.Errorf("BotIntro = %q", resp.BotIntro)
	}
}

func TestStartCustom(t *testing.T) {
	service, _ := newTestService(db.NewInMemoryConversationRepository(), 6)
	ctx := context.Background()

	resp, err := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "  Rust ownership ", UserEmail: "ada@example.com"})
	if err != nil {
		t.Fatalf("StartCustom() failed: %v", err)
	}
	if resp.BotIntro != prompt.StaticOpening("Rust ownership") {
		t.Errorf("BotIntro = %q", resp.BotIntro)
	}

	if _, err := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "   ", UserEmail: "ada@example.com"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("StartCustom(blank) error = %v, expected ErrInvalidRequest", err)
	}
}

func TestSendMessagePersistsEachTurn(t *testing.T) {
	repo := db.NewInMemoryConversationRepository()
	service, model := newTestService(repo, 2)
	ctx := context.Background()

	start, err := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Caching", UserEmail: "ada@example.com"})
	if err != nil {
		t.Fatalf("StartCustom() failed: %v", err)
	}

	first, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{UserEmail: "ada@example.com", Message: "It stores things"})
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	if first.TurnCount != 1 || first.Finished || len(first.Conversation) != 2 {
		t.Errorf("first response = %+v", first)
	}

	model.setReply("Where would you put the cache?")
	second, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{UserEmail: "ada@example.com", Message: "Close to the reader"})
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	if second.TurnCount != 2 || !second.Finished {
		t.Errorf("second response = %+v", second)
	}

	// The session is at its limit; the closing message is returned and nothing new is stored.
	third, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{UserEmail: "ada@example.com", Message: "One more"})
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	if third.BotReply != prompt.ClosingMessage || third.TurnCount != 2 {
		t.Errorf("third response = %+v", third)
	}

	messages, err := service.GetMessages(ctx, "ada@example.com", start.SessionID)
	if err != nil {
		t.Fatalf("GetMessages() failed: %v", err)
	}
	if len(messages) != 2 || messages[1].BotText != "Where would you put the cache?" {
		t.Errorf("messages = %+v", messages)
	}

	record, err := service.GetConversation(ctx, "ada@example.com", start.SessionID)
	if err != nil {
		t.Fatalf("GetConversation() failed: %v", err)
	}
	if len(record.Turns) != 5 {
		t.Errorf("stored %d messages, expected 5", len(record.Turns))
	}
}

func TestConcurrentSendsAtLastTurnLogOnce(t *testing.T) {
	repo := db.NewInMemoryConversationRepository()
	service, _ := newTestService(repo, 1)
	ctx := context.Background()

	start, err := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Caching", UserEmail: "ada@example.com"})
	if err != nil {
		t.Fatalf("StartCustom() failed: %v", err)
	}

	const senders = 32
	replies := make(chan string, senders)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{Message: "It stores things"})
			if err != nil {
				t.Errorf("SendMessage() failed: %v", err)
				return
			}
			replies <- resp.BotReply
		}()
	}
	wg.Wait()
	close(replies)

	closing := 0
	for reply := range replies {
		if reply == prompt.ClosingMessage {
			closing++
		}
	}
	if closing != senders-1 {
		t.Errorf("%d senders got the closing message, expected %d", closing, senders-1)
	}

	messages, err := service.GetMessages(ctx, "ada@example.com", start.SessionID)
	if err != nil {
		t.Fatalf("GetMessages() failed: %v", err)
	}
	if len(messages) != 1 || messages[0].BotText == prompt.ClosingMessage {
		t.Errorf("message log = %+v, expected the single recorded exchange", messages)
	}
}

func TestSendMessageErrors(t *testing.T) {
	service, model := newTestService(db.NewInMemoryConversationRepository(), 6)
	ctx := context.Background()

	if _, err := service.SendMessage(ctx, "missing", &models.SendMessageRequest{Message: "hi"}); !errors.Is(err, tutor.ErrSessionNotFound) {
		t.Errorf("SendMessage(missing) error = %v, expected ErrSessionNotFound", err)
	}

	start, _ := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Caching", UserEmail: "ada@example.com"})

	if _, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{Message: "  "}); !errors.Is(err, tutor.ErrEmptyMessage) {
		t.Errorf("SendMessage(blank) error = %v, expected ErrEmptyMessage", err)
	}

	model.mu.Lock()
	model.err = errors.New("rate limited")
	model.mu.Unlock()
	if _, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{Message: "hello"}); !errors.Is(err, tutor.ErrUpstreamModel) {
		t.Errorf("SendMessage(model down) error = %v, expected ErrUpstreamModel", err)
	}
}

func TestPersistenceFailures(t *testing.T) {
	service, _ := newTestService(brokenRepository{}, 6)
	ctx := context.Background()

	_, err := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Caching", UserEmail: "ada@example.com"})
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errStoreDown) {
		t.Errorf("StartCustom() error = %v, expected ErrPersistence wrapping the store error", err)
	}

	if _, err := service.ListByOwner(ctx, "ada@example.com"); !errors.Is(err, ErrPersistence) {
		t.Errorf("ListByOwner() error = %v, expected ErrPersistence", err)
	}
	if _, err := service.GetConversation(ctx, "ada@example.com", "s1"); !errors.Is(err, ErrPersistence) {
		t.Errorf("GetConversation() error = %v, expected ErrPersistence", err)
	}
}

func TestEvaluate(t *testing.T) {
	repo := db.NewInMemoryConversationRepository()
	service, model := newTestService(repo, 6)
	ctx := context.Background()

	start, _ := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Caching", UserEmail: "ada@example.com"})

	if _, err := service.Evaluate(ctx, start.SessionID); !errors.Is(err, tutor.ErrEmptyTranscript) {
		t.Errorf("Evaluate(no turns) error = %v, expected ErrEmptyTranscript", err)
	}

	if _, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{Message: "It stores things"}); err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}

	rubric := []string{}
	for _, criterion := range models.RubricCriteria {
		rubric = append(rubric, criterion+": 4/5 - solid")
	}
	model.setReply(strings.Join(rubric, "\n"))
	callsBefore := model.callCount()

	first, err := service.Evaluate(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if len(first.Scores) != len(models.RubricCriteria) {
		t.Errorf("got %d scores, expected %d", len(first.Scores), len(models.RubricCriteria))
	}

	second, err := service.Evaluate(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("second Evaluate() failed: %v", err)
	}
	if second.Evaluation != first.Evaluation {
		t.Errorf("second evaluation differs from the first")
	}
	if calls := model.callCount() - callsBefore; calls != 1 {
		t.Errorf("evaluation made %d model calls, expected 1", calls)
	}

	record, _ := repo.GetConversation(ctx, "ada@example.com", start.SessionID)
	if record.Evaluation == nil || len(record.Evaluation.Scores) != len(models.RubricCriteria) {
		t.Errorf("evaluation not persisted: %+v", record.Evaluation)
	}

	reply, err := service.SendMessage(ctx, start.SessionID, &models.SendMessageRequest{Message: "more?"})
	if err != nil || reply.BotReply != prompt.ClosingMessage {
		t.Errorf("SendMessage after evaluation = %+v, %v", reply, err)
	}
}

func TestCloseAndHistory(t *testing.T) {
	service, _ := newTestService(db.NewInMemoryConversationRepository(), 6)
	ctx := context.Background()

	first, _ := service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Caching", UserEmail: "ada@example.com"})
	service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Queues", UserEmail: "ada@example.com"})
	service.StartCustom(ctx, &models.StartCustomRequest{CustomTopic: "Queues", UserEmail: "grace@example.com"})

	if err := service.Close(ctx, first.SessionID); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := service.Close(ctx, "missing"); !errors.Is(err, tutor.ErrSessionNotFound) {
		t.Errorf("Close(missing) error = %v, expected ErrSessionNotFound", err)
	}

	records, err := service.ListByOwner(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("ListByOwner() failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, expected 2", len(records))
	}

	none, err := service.ListByOwner(ctx, "nobody@example.com")
	if err != nil || len(none) != 0 {
		t.Errorf("ListByOwner(unknown) = %v, %v", none, err)
	}

	if _, err := service.GetConversation(ctx, "grace@example.com", first.SessionID); !errors.Is(err, db.ErrConversationNotFound) {
		t.Errorf("GetConversation(other owner) error = %v, expected ErrConversationNotFound", err)
	}
	if _, err := service.GetMessages(ctx, "ada@example.com", first.SessionID); !errors.Is(err, db.ErrConversationNotFound) {
		t.Errorf("GetMessages(no messages) error = %v, expected ErrConversationNotFound", err)
	}
}
