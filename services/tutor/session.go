package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/llms"

	"socratic/models"
	"socratic/services/prompt"
)

type State string

const (
	StateCreated   State = "created"
	StateOpen      State = "open"
	StateClosed    State = "closed"
	StateEvaluated State = "evaluated"
)

// Options describe a session at creation time. Everything here is fixed for
// the session's lifetime.
type Options struct {
	ID       string
	Topic    string
	Category string
	Owner    string
	Persona  prompt.Persona
	Problem  *prompt.Problem
	MaxTurns int
}

// Session is one student's conversation with the mentor. All mutating calls
// hold mu, including across the model call, so replies on one session queue up.
type Session struct {
	ID        string
	Topic     string
	Category  string
	Owner     string
	Persona   prompt.Persona
	CreatedAt time.Time

	llm         llms.Model
	useCases    *UseCaseGenerator
	problem     *prompt.Problem
	temperature float64

	mu           sync.Mutex
	systemPrompt string
	maxTurns     int
	turnCount    int
	history      []models.Turn
	closed       bool
	evaluation   *models.EvaluationResult
	revision     int64
	lastActive   time.Time

	// accessed is the last time a request fetched or changed the session, in
	// unix nanoseconds. It is read without mu so eviction never waits on a
	// model call.
	accessed atomic.Int64
}

func NewSession(opts Options, llm llms.Model, useCases *UseCaseGenerator, temperature float64) (*Session, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if llm == nil {
		return nil, fmt.Errorf("%w: language model is required", ErrInvalidSession)
	}

	now := time.Now()
	s := &Session{
		ID:           opts.ID,
		Topic:        strings.TrimSpace(opts.Topic),
		Category:     opts.Category,
		Owner:        opts.Owner,
		Persona:      opts.Persona,
		CreatedAt:    now,
		llm:          llm,
		useCases:     useCases,
		problem:      opts.Problem,
		temperature:  temperature,
		systemPrompt: prompt.Build(opts.Persona, strings.TrimSpace(opts.Topic), opts.Category),
		maxTurns:     opts.MaxTurns,
		lastActive:   now,
	}
	s.accessed.Store(now.UnixNano())
	return s, nil
}

func validateOptions(opts Options) error {
	if opts.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSession)
	}
	if strings.TrimSpace(opts.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidSession)
	}
	if opts.MaxTurns < 0 {
		return fmt.Errorf("%w: max turns cannot be negative", ErrInvalidSession)
	}
	if opts.Persona.Opening == prompt.OpeningProblem && opts.Problem == nil {
		return fmt.Errorf("%w: problem opening requires a problem", ErrInvalidSession)
	}
	return nil
}

// Start appends the opening turn and returns it. Once the session has history
// it returns "" and changes nothing.
func (s *Session) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) > 0 {
		return "", nil
	}

	opening := s.opening(ctx)
	s.history = append(s.history, models.Turn{UserText: "", BotText: opening})
	s.touch()

	log.Printf("[INFO] Session %s started on topic %q with %s opening", s.ID, s.Topic, s.Persona.Opening)
	return opening, nil
}

func (s *Session) opening(ctx context.Context) string {
	switch s.Persona.Opening {
	case prompt.OpeningProblem:
		return prompt.ProblemOpening(*s.problem)
	case prompt.OpeningUseCase:
		if s.useCases == nil {
			return prompt.StaticOpening(s.Topic)
		}
		scenario, err := s.useCases.Generate(ctx, s.Topic)
		if err != nil {
			log.Printf("[WARN] Use case generation failed for session %s, using static opening: %v", s.ID, err)
			return prompt.StaticOpening(s.Topic)
		}
		return scenario
	default:
		return prompt.StaticOpening(s.Topic)
	}
}

// Reply sends userText with the full history to the model and records the
// exchange. A finished session answers with the closing message and records nothing.
func (s *Session) Reply(ctx context.Context, userText string) (string, error) {
	reply, _, err := s.Exchange(ctx, userText)
	return reply, err
}

// Exchange is Reply that also reports whether a turn was recorded. The
// finished check and the append happen under the same lock.
func (s *Session) Exchange(ctx context.Context, userText string) (reply string, recorded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedLocked() {
		return prompt.ClosingMessage, false, nil
	}

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", false, ErrEmptyMessage
	}

	messages := s.buildMessages(userText)

	log.Printf("[INFO] Calling LLM for session %s turn %d", s.ID, s.turnCount+1)
	resp, err := s.llm.GenerateContent(ctx, messages, llms.WithTemperature(s.temperature))
	if err != nil {
		log.Printf("[ERROR] LLM call failed for session %s: %v", s.ID, err)
		return "", false, fmt.Errorf("%w: %w", ErrUpstreamModel, err)
	}
	if len(resp.Choices) == 0 {
		log.Printf("[ERROR] No choices in LLM response for session %s", s.ID)
		return "", false, fmt.Errorf("%w: no choices in response", ErrUpstreamModel)
	}

	reply = strings.TrimSpace(resp.Choices[0].Content)
	if reply == "" {
		log.Printf("[ERROR] Empty LLM reply for session %s", s.ID)
		return "", false, fmt.Errorf("%w: empty reply", ErrUpstreamModel)
	}

	s.history = append(s.history, models.Turn{UserText: userText, BotText: reply})
	s.turnCount++
	s.touch()

	log.Printf("[INFO] Session %s completed turn %d", s.ID, s.turnCount)
	return reply, true, nil
}

func (s *Session) buildMessages(userText string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(s.history)*2+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt))

	for _, turn := range s.history {
		if turn.UserText != "" {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, turn.UserText))
		}
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, turn.BotText))
	}

	outgoing := userText
	if s.Persona.Variant == prompt.VariantPromptCoach && s.problem != nil {
		outgoing = prompt.WrapCoachInput(*s.problem, userText)
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, outgoing))

	return messages
}

func (s *Session) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedLocked()
}

func (s *Session) finishedLocked() bool {
	if s.closed || s.evaluation != nil {
		return true
	}
	return s.maxTurns > 0 && s.turnCount >= s.maxTurns
}

// Transcript renders the history for evaluation, one numbered block per turn.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

func (s *Session) transcriptLocked() string {
	blocks := make([]string, 0, len(s.history))
	for i, turn := range s.history {
		blocks = append(blocks, fmt.Sprintf("Turn %d:\nYou: %s\n%s: %s", i+1, turn.UserText, prompt.MentorName, turn.BotText))
	}
	return strings.Join(blocks, "\n\n")
}

func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]models.Turn, len(s.history))
	copy(turns, s.history)
	return turns
}

func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

func (s *Session) MaxTurns() int {
	return s.maxTurns
}

// Close ends the session early. Further replies get the closing message.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.touch()
	log.Printf("[INFO] Session %s closed after %d turns", s.ID, s.turnCount)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.evaluation != nil:
		return StateEvaluated
	case s.finishedLocked():
		return StateClosed
	case len(s.history) == 0:
		return StateCreated
	default:
		return StateOpen
	}
}

// MarkEvaluated stores the evaluation and moves the session to its terminal state.
func (s *Session) MarkEvaluated(result *models.EvaluationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluation = result
	s.touch()
}

// Evaluate scores the session once. Later calls return the stored result with
// fresh set to false. The lock is held across the evaluator call, so
// concurrent requests share a single model call.
func (s *Session) Evaluate(ctx context.Context, e *Evaluator) (result *models.EvaluationResult, fresh bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evaluation != nil {
		return s.evaluation, false, nil
	}
	if s.turnCount == 0 {
		return nil, false, ErrEmptyTranscript
	}

	text, err := e.Evaluate(ctx, s.Topic, s.transcriptLocked())
	if err != nil {
		return nil, false, err
	}

	scores, err := ParseRubric(text, models.RubricCriteria)
	if err != nil {
		log.Printf("[WARN] Evaluation for session %s returned without parsed scores: %v", s.ID, err)
		scores = nil
	}

	s.evaluation = &models.EvaluationResult{
		Text:        text,
		Topic:       s.Topic,
		Scores:      scores,
		EvaluatedAt: time.Now(),
	}
	s.touch()

	return s.evaluation, true, nil
}

func (s *Session) Evaluation() *models.EvaluationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluation
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Record builds the persisted form of the session.
func (s *Session) Record() *models.ConversationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &models.ConversationRecord{
		SchemaVersion: models.RecordSchemaVersion,
		SessionID:     s.ID,
		Owner:         s.Owner,
		Topic:         s.Topic,
		Category:      s.Category,
		Variant:       string(s.Persona.Variant),
		Turns:         models.TurnsToMessages(s.history),
		Evaluation:    s.evaluation,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.lastActive,
	}
}

// markAccessed records that a request is using the session. It does not count
// as a change, so the revision stays put.
func (s *Session) markAccessed() {
	s.accessed.Store(time.Now().UnixNano())
}

func (s *Session) accessedAt() time.Time {
	return time.Unix(0, s.accessed.Load())
}

func (s *Session) touch() {
	s.revision++
	s.lastActive = time.Now()
	s.accessed.Store(s.lastActive.UnixNano())
}
