package tutor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"socratic/services/prompt"
)

const minJanitorInterval = time.Minute

// RegistryConfig wires what every session created by the registry shares.
type RegistryConfig struct {
	LLM         llms.Model
	UseCases    *UseCaseGenerator
	MaxTurns    int
	Temperature float64
	IdleTTL     time.Duration
	Snapshots   SnapshotStore
}

// SessionSpec is the per-session part of a new session.
type SessionSpec struct {
	Topic    string
	Category string
	Owner    string
	Persona  prompt.Persona
	Problem  *prompt.Problem
}

// Registry maps session ids to live sessions. When a SnapshotStore is set,
// sessions missing from memory are restored from it.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create builds a session under a fresh id and registers it.
func (r *Registry) Create(spec SessionSpec) (*Session, error) {
	s, err := NewSession(Options{
		ID:       uuid.NewString(),
		Topic:    spec.Topic,
		Category: spec.Category,
		Owner:    spec.Owner,
		Persona:  spec.Persona,
		Problem:  spec.Problem,
		MaxTurns: r.cfg.MaxTurns,
	}, r.cfg.LLM, r.cfg.UseCases, r.cfg.Temperature)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	log.Printf("[INFO] Registered session %s for owner %s", s.ID, s.Owner)
	return s, nil
}

// Get returns the live session for id and marks it accessed, so the janitor
// leaves it alone while the caller works with it.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	if ok {
		s.markAccessed()
	}
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	if r.cfg.Snapshots == nil {
		return nil, ErrSessionNotFound
	}

	snap, err := r.cfg.Snapshots.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			log.Printf("[ERROR] Failed to load snapshot for session %s: %v", id, err)
		}
		return nil, ErrSessionNotFound
	}

	restored, err := RestoreSession(snap, r.cfg.LLM, r.cfg.UseCases, r.cfg.Temperature)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have restored it first.
	if existing, ok := r.sessions[id]; ok {
		existing.markAccessed()
		return existing, nil
	}
	restored.markAccessed()
	r.sessions[id] = restored

	log.Printf("[INFO] Restored session %s from snapshot at turn %d", id, snap.TurnCount)
	return restored, nil
}

// Persist writes the session's snapshot when a store is configured.
func (r *Registry) Persist(ctx context.Context, s *Session) error {
	if r.cfg.Snapshots == nil {
		return nil
	}
	return r.cfg.Snapshots.Save(ctx, s.Snapshot())
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict drops sessions idle for longer than olderThan and reports how many went.
// A session whose lock is held is in use and stays. Snapshots are left to
// expire on their own TTL.
func (r *Registry) Evict(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	// Get marks sessions under the read lock, so nothing can be handed out
	// between the idle check and the delete.
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if !s.accessedAt().Before(cutoff) {
			continue
		}
		if !s.mu.TryLock() {
			continue
		}
		delete(r.sessions, id)
		s.mu.Unlock()
		evicted++
	}
	return evicted
}

// Run evicts idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.cfg.IdleTTL <= 0 {
		return
	}

	interval := r.cfg.IdleTTL / 4
	if interval < minJanitorInterval {
		interval = minJanitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(r.cfg.IdleTTL); n > 0 {
				log.Printf("[INFO] Evicted %d idle sessions, %d remaining", n, r.Len())
			}
		}
	}
}

// Clear drops every in-memory session.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Printf("[INFO] Clearing %d sessions", len(r.sessions))
	r.sessions = make(map[string]*Session)
}
