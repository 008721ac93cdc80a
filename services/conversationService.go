package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"socratic/db"
	"socratic/models"
	"socratic/services/catalog"
	"socratic/services/prompt"
	"socratic/services/tutor"
)

var (
	ErrPersistence    = errors.New("failed to persist conversation")
	ErrInvalidRequest = errors.New("invalid request")
)

type ConversationService struct {
	catalog        *catalog.Catalog
	registry       *tutor.Registry
	evaluator      *tutor.Evaluator
	repo           db.ConversationRepository
	defaultPersona prompt.Persona
}

func NewConversationService(cat *catalog.Catalog, registry *tutor.Registry, evaluator *tutor.Evaluator, repo db.ConversationRepository, defaultVariant prompt.Variant) *ConversationService {
	return &ConversationService{
		catalog:        cat,
		registry:       registry,
		evaluator:      evaluator,
		repo:           repo,
		defaultPersona: prompt.Persona{Variant: defaultVariant, Opening: prompt.OpeningStatic},
	}
}

func (s *ConversationService) Categories() map[string][]string {
	return s.catalog.Categories()
}

func (s *ConversationService) StartPredefined(ctx context.Context, req *models.StartPredefinedRequest) (*models.StartConversationResponse, error) {
	log.Printf("[INFO] Starting predefined conversation for %s on %q / %q", req.UserEmail, req.Category, req.Topic)

	if err := s.validateOwner(req.UserEmail); err != nil {
		log.Printf("[ERROR] Start predefined validation failed: %v", err)
		return nil, err
	}

	entry, err := s.catalog.Lookup(req.Category, req.Topic)
	if err != nil {
		log.Printf("[ERROR] Invalid selection: %v", err)
		return nil, err
	}

	return s.start(ctx, tutor.SessionSpec{
		Topic:    entry.Topic,
		Category: entry.Category,
		Owner:    req.UserEmail,
		Persona:  entry.Persona,
		Problem:  entry.Problem,
	})
}

func (s *ConversationService) StartCustom(ctx context.Context, req *models.StartCustomRequest) (*models.StartConversationResponse, error) {
	log.Printf("[INFO] Starting custom conversation for %s on %q", req.UserEmail, req.CustomTopic)

	if err := s.validateOwner(req.UserEmail); err != nil {
		log.Printf("[ERROR] Start custom validation failed: %v", err)
		return nil, err
	}

	topic := strings.TrimSpace(req.CustomTopic)
	if topic == "" {
		log.Printf("[ERROR] Custom topic is empty")
		return nil, fmt.Errorf("%w: custom_topic cannot be empty", ErrInvalidRequest)
	}

	return s.start(ctx, tutor.SessionSpec{
		Topic:   topic,
		Owner:   req.UserEmail,
		Persona: s.defaultPersona,
	})
}

func (s *ConversationService) start(ctx context.Context, spec tutor.SessionSpec) (*models.StartConversationResponse, error) {
	session, err := s.registry.Create(spec)
	if err != nil {
		log.Printf("[ERROR] Failed to create session: %v", err)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	opening, err := session.Start(ctx)
	if err != nil {
		log.Printf("[ERROR] Failed to start session %s: %v", session.ID, err)
		return nil, err
	}

	if err := s.persist(ctx, session, nil); err != nil {
		return nil, err
	}

	log.Printf("[INFO] Successfully started session %s", session.ID)
	return &models.StartConversationResponse{
		SessionID: session.ID,
		BotIntro:  opening,
	}, nil
}

// SendMessage forwards a message to the session and persists the exchange
// before returning it. When persistence fails the in-memory session has
// already advanced; the next successful save writes the full record.
func (s *ConversationService) SendMessage(ctx context.Context, sessionID string, req *models.SendMessageRequest) (*models.SendMessageResponse, error) {
	log.Printf("[INFO] Sending message to session %s", sessionID)

	session, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		log.Printf("[ERROR] Session lookup failed for %s: %v", sessionID, err)
		return nil, err
	}

	if req.UserEmail != "" && req.UserEmail != session.Owner {
		log.Printf("[WARN] Message for session %s sent as %s, owner is %s", sessionID, req.UserEmail, session.Owner)
	}

	reply, recorded, err := session.Exchange(ctx, req.Message)
	if err != nil {
		log.Printf("[ERROR] Reply failed for session %s: %v", sessionID, err)
		return nil, err
	}

	if recorded {
		entry := &models.MessageLogEntry{
			SessionID: session.ID,
			Owner:     session.Owner,
			UserText:  strings.TrimSpace(req.Message),
			BotText:   reply,
			Topic:     session.Topic,
			Category:  session.Category,
			Timestamp: time.Now(),
		}
		if err := s.persist(ctx, session, entry); err != nil {
			return nil, err
		}
	}

	turnCount := session.TurnCount()
	log.Printf("[INFO] Session %s at turn %d", sessionID, turnCount)
	return &models.SendMessageResponse{
		BotReply:     reply,
		Conversation: session.Turns(),
		TurnCount:    turnCount,
		Finished:     session.IsFinished(),
	}, nil
}

func (s *ConversationService) Close(ctx context.Context, sessionID string) error {
	log.Printf("[INFO] Closing session %s", sessionID)

	session, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		log.Printf("[ERROR] Session lookup failed for %s: %v", sessionID, err)
		return err
	}

	session.Close()
	return s.persist(ctx, session, nil)
}

// Evaluate scores a session once; repeated calls return the stored result.
func (s *ConversationService) Evaluate(ctx context.Context, sessionID string) (*models.EvaluateResponse, error) {
	log.Printf("[INFO] Evaluating session %s", sessionID)

	session, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		log.Printf("[ERROR] Session lookup failed for %s: %v", sessionID, err)
		return nil, err
	}

	result, fresh, err := session.Evaluate(ctx, s.evaluator)
	if err != nil {
		log.Printf("[ERROR] Evaluation failed for session %s: %v", sessionID, err)
		return nil, err
	}

	if fresh {
		if err := s.persist(ctx, session, nil); err != nil {
			return nil, err
		}
		log.Printf("[INFO] Successfully evaluated session %s (%d scores parsed)", sessionID, len(result.Scores))
	} else {
		log.Printf("[INFO] Returning stored evaluation for session %s", sessionID)
	}

	return &models.EvaluateResponse{
		Evaluation: result.Text,
		Scores:     result.Scores,
	}, nil
}

func (s *ConversationService) ListByOwner(ctx context.Context, owner string) ([]*models.ConversationRecord, error) {
	log.Printf("[INFO] Listing conversations for %s", owner)

	records, err := s.repo.GetConversationsByOwner(ctx, owner)
	if err != nil {
		log.Printf("[ERROR] Failed to list conversations for %s: %v", owner, err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	log.Printf("[INFO] Found %d conversations for %s", len(records), owner)
	return records, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, owner, sessionID string) (*models.ConversationRecord, error) {
	record, err := s.repo.GetConversation(ctx, owner, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrConversationNotFound) {
			return nil, err
		}
		log.Printf("[ERROR] Failed to get conversation %s: %v", sessionID, err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return record, nil
}

func (s *ConversationService) GetMessages(ctx context.Context, owner, sessionID string) ([]*models.MessageLogEntry, error) {
	entries, err := s.repo.GetMessages(ctx, owner, sessionID)
	if err != nil {
		log.Printf("[ERROR] Failed to get messages for %s: %v", sessionID, err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if len(entries) == 0 {
		return nil, db.ErrConversationNotFound
	}
	return entries, nil
}

func (s *ConversationService) validateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("%w: user_email is required", ErrInvalidRequest)
	}
	return nil
}

// persist writes the message log entry (if any) and the full record. Snapshot
// failures are logged only; the record store is the source of truth.
func (s *ConversationService) persist(ctx context.Context, session *tutor.Session, entry *models.MessageLogEntry) error {
	if entry != nil {
		if err := s.repo.AppendMessage(ctx, entry); err != nil {
			log.Printf("[ERROR] Failed to append message for session %s: %v", session.ID, err)
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}

	if err := s.repo.SaveConversation(ctx, session.Record()); err != nil {
		log.Printf("[ERROR] Failed to save conversation %s: %v", session.ID, err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := s.registry.Persist(ctx, session); err != nil {
		log.Printf("[WARN] Failed to snapshot session %s: %v", session.ID, err)
	}
	return nil
}
