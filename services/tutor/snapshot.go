package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/llms"

	"socratic/models"
	"socratic/services/prompt"
)

const (
	snapshotKeyPrefix  = "socratic:session:"
	defaultSnapshotTTL = 2 * time.Hour
)

// Snapshot is the serialized state of a Session.
type Snapshot struct {
	ID         string                   `json:"id"`
	Topic      string                   `json:"topic"`
	Category   string                   `json:"category,omitempty"`
	Owner      string                   `json:"owner"`
	Persona    prompt.Persona           `json:"persona"`
	Problem    *prompt.Problem          `json:"problem,omitempty"`
	MaxTurns   int                      `json:"max_turns"`
	TurnCount  int                      `json:"turn_count"`
	History    []models.Turn            `json:"history"`
	Closed     bool                     `json:"closed"`
	Evaluation *models.EvaluationResult `json:"evaluation,omitempty"`
	Revision   int64                    `json:"revision"`
	CreatedAt  time.Time                `json:"created_at"`
	LastActive time.Time                `json:"last_active"`
}

// SnapshotStore keeps session state outside the process so a restarted server
// can pick up live conversations.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Snapshot captures the session under its lock.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]models.Turn, len(s.history))
	copy(history, s.history)

	return &Snapshot{
		ID:         s.ID,
		Topic:      s.Topic,
		Category:   s.Category,
		Owner:      s.Owner,
		Persona:    s.Persona,
		Problem:    s.problem,
		MaxTurns:   s.maxTurns,
		TurnCount:  s.turnCount,
		History:    history,
		Closed:     s.closed,
		Evaluation: s.evaluation,
		Revision:   s.revision,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
}

// RestoreSession rebuilds a Session from a snapshot.
func RestoreSession(snap *Snapshot, llm llms.Model, useCases *UseCaseGenerator, temperature float64) (*Session, error) {
	s, err := NewSession(Options{
		ID:       snap.ID,
		Topic:    snap.Topic,
		Category: snap.Category,
		Owner:    snap.Owner,
		Persona:  snap.Persona,
		Problem:  snap.Problem,
		MaxTurns: snap.MaxTurns,
	}, llm, useCases, temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", snap.ID, err)
	}

	s.history = append([]models.Turn(nil), snap.History...)
	s.turnCount = snap.TurnCount
	s.closed = snap.Closed
	s.evaluation = snap.Evaluation
	s.revision = snap.Revision
	s.CreatedAt = snap.CreatedAt
	s.lastActive = snap.LastActive
	return s, nil
}

// RedisSnapshotStore stores snapshots as JSON with a sliding TTL. Writes are
// guarded with WATCH so an older revision never overwrites a newer one.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func (r *RedisSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	key := r.key(snap.ID)

	val, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snap.ID, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var stored Snapshot
			if err := json.Unmarshal([]byte(current), &stored); err == nil && stored.Revision > snap.Revision {
				return ErrStaleSnapshot
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, r.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Load returns ErrSessionNotFound when no snapshot exists. Reads refresh the TTL.
func (r *RedisSnapshotStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	key := r.key(id)

	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}

	_ = r.client.Expire(ctx, key, r.ttl).Err()
	return &snap, nil
}

func (r *RedisSnapshotStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *RedisSnapshotStore) key(id string) string {
	return snapshotKeyPrefix + id
}
