// Package conversation glues the context cache to the durable history store:
// every turn is persisted first, then cached (appending when warm, hydrating
// when cold), and the resulting bounded context is handed to the agent.
package conversation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gmorandi/membot/internal/agent"
	"github.com/gmorandi/membot/internal/history"
	"github.com/gmorandi/membot/internal/observability"
)

const (
	// DefaultHydrateWindow is how many durable turns warm a cold cache entry.
	// Deliberately wider than the cache's per-user bound: the first append
	// after hydration settles the entry to steady state.
	DefaultHydrateWindow = 50

	DefaultStoreTimeout = 5 * time.Second
	DefaultAgentTimeout = 60 * time.Second
)

// Options tunes the hydration policy and call deadlines.
type Options struct {
	HydrateWindow int
	StoreTimeout  time.Duration
	AgentTimeout  time.Duration
}

// Service orchestrates persist-before-cache turn handling for concurrent
// user sessions. Construct one per process and share it across handlers.
type Service struct {
	cache   *history.Cache
	store   history.Store
	invoker agent.Invoker
	metrics *observability.Metrics
	window  *observability.TurnStageWindow

	hydrateWindow int
	storeTimeout  time.Duration
	agentTimeout  time.Duration
}

// NewService wires the cache, store and invoker together. metrics and window
// may be nil (tests construct many services; Prometheus registration is
// process-global).
func NewService(
	cache *history.Cache,
	store history.Store,
	invoker agent.Invoker,
	metrics *observability.Metrics,
	window *observability.TurnStageWindow,
	opts Options,
) *Service {
	if opts.HydrateWindow <= 0 {
		opts.HydrateWindow = DefaultHydrateWindow
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = DefaultAgentTimeout
	}
	return &Service{
		cache:         cache,
		store:         store,
		invoker:       invoker,
		metrics:       metrics,
		window:        window,
		hydrateWindow: opts.HydrateWindow,
		storeTimeout:  opts.StoreTimeout,
		agentTimeout:  opts.AgentTimeout,
	}
}

// IsRegistered reports whether the user has a durable record. Store failures
// are logged and reported as unregistered so the caller can degrade.
func (s *Service) IsRegistered(ctx context.Context, userID string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	exists, err := s.store.Exists(ctx, userID)
	if err != nil {
		log.Printf("history exists failed for user %s: %v", userID, err)
		s.countStoreError("exists")
		return false
	}
	return exists
}

// HandleTurn persists the turn, updates the cache per the hydration policy,
// and returns the user's current context. On store failure it returns the
// prior cached (possibly stale) context instead of failing the interaction.
func (s *Service) HandleTurn(ctx context.Context, userID string, turn history.Turn) []history.Message {
	start := time.Now()
	defer func() {
		s.observeStage(observability.StageTurnTotal, time.Since(start))
		if s.metrics != nil {
			s.metrics.ObserveTurnDuration(time.Since(start))
		}
	}()
	return s.record(ctx, turn, history.Profile{})
}

// RegisterContact records a first-contact turn carrying the user's profile
// fields. Fields already stored keep their values.
func (s *Service) RegisterContact(ctx context.Context, userID string, profile history.Profile) []history.Message {
	turn := history.NewTurn(userID, history.RoleHuman, "Shared contact info", history.KindContact)
	return s.record(ctx, turn, profile)
}

// Converse handles one full inbound exchange: record the human turn, invoke
// the agent on the hydrated context, record the reply. An agent failure is
// returned to the caller and leaves no partial assistant turn behind.
func (s *Service) Converse(ctx context.Context, userID, content string, kind history.Kind) (string, []history.Message, error) {
	start := time.Now()
	defer func() {
		s.observeStage(observability.StageTurnTotal, time.Since(start))
		if s.metrics != nil {
			s.metrics.ObserveTurnDuration(time.Since(start))
		}
	}()

	prompt := s.record(ctx, history.NewTurn(userID, history.RoleHuman, content, kind), history.Profile{})

	agentStart := time.Now()
	invokeCtx, cancel := context.WithTimeout(ctx, s.agentTimeout)
	reply, err := s.invoker.Invoke(invokeCtx, userID, prompt)
	cancel()
	s.observeStage(observability.StageAgent, time.Since(agentStart))
	if err != nil {
		if s.metrics != nil {
			s.metrics.AgentFailures.Inc()
		}
		log.Printf("agent invocation failed for user %s: %v", userID, err)
		return "", prompt, fmt.Errorf("agent invocation: %w", err)
	}

	replyKind := history.KindText
	if kind == history.KindSearchQuery {
		replyKind = history.KindSearchResult
	}
	updated := s.record(ctx, history.NewTurn(userID, history.RoleAssistant, reply, replyKind), history.Profile{})
	return reply, updated, nil
}

// Context returns the user's current prompt context, hydrating the cache
// from the store when cold. Store failure degrades to an empty context.
func (s *Service) Context(ctx context.Context, userID string) []history.Message {
	if cached, ok := s.cache.Get(userID); ok {
		s.metricsHit()
		return cached
	}
	s.metricsMiss()

	readCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	msgs, err := s.store.ReadRecent(readCtx, userID, s.hydrateWindow)
	if err != nil {
		log.Printf("history hydrate failed for user %s: %v", userID, err)
		s.countStoreError("read_recent")
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	s.cache.Put(userID, msgs)
	if s.metrics != nil {
		s.metrics.CachedUsers.Set(float64(s.cache.Len()))
	}
	return msgs
}

// record implements the persist-before-cache policy for one turn.
func (s *Service) record(ctx context.Context, turn history.Turn, profile history.Profile) []history.Message {
	userID := turn.UserID

	persistStart := time.Now()
	appendCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.store.AppendTurn(appendCtx, turn, profile)
	cancel()
	s.observeStage(observability.StagePersist, time.Since(persistStart))
	if err != nil {
		// The durable write is the source of truth; without it the cache must
		// not advance. Serve whatever context was already warm.
		log.Printf("history append failed for user %s: %v", userID, err)
		s.countStoreError("append_turn")
		cached, _ := s.cache.Get(userID)
		return cached
	}

	if _, ok := s.cache.Get(userID); ok {
		s.metricsHit()
		s.cache.Append(userID, turn.Message())
	} else {
		s.metricsMiss()
		hydrateStart := time.Now()
		readCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		msgs, err := s.store.ReadRecent(readCtx, userID, s.hydrateWindow)
		cancel()
		s.observeStage(observability.StageHydrate, time.Since(hydrateStart))
		if err != nil {
			// Degraded: skip caching so the next interaction re-hydrates, and
			// answer from the turn we just persisted.
			log.Printf("history hydrate failed for user %s: %v", userID, err)
			s.countStoreError("read_recent")
			return []history.Message{turn.Message()}
		}
		s.cache.Put(userID, msgs)
	}

	if s.metrics != nil {
		s.metrics.CachedUsers.Set(float64(s.cache.Len()))
	}
	cached, _ := s.cache.Get(userID)
	return cached
}

func (s *Service) observeStage(stage string, d time.Duration) {
	if s.window != nil {
		s.window.Observe(stage, d)
	}
}

func (s *Service) metricsHit() {
	if s.metrics != nil {
		s.metrics.CacheHits.Inc()
	}
}

func (s *Service) metricsMiss() {
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}
}

func (s *Service) countStoreError(op string) {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}
