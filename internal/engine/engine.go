// Package engine drives multi-provider brainstorming sessions: it owns
// per-session orchestration state, sequences provider turns into rounds,
// tracks a running consensus signal and emits ordered lifecycle events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/synapsemind/backend/internal/config"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/provider"
)

var ErrAlreadyCompleted = errors.New("session already completed")

// finalConsensus is the percentage persisted at finalization. The source
// system pins this to 80 regardless of the running heuristic; the live
// heuristic still streams through ConsensusUpdate events.
const finalConsensus = 80.0

// Store is the slice of the persistence port the engine consumes.
type Store interface {
	GetSession(ctx context.Context, id string) (discussion.Session, error)
	Roster(ctx context.Context, sessionID string) ([]discussion.Provider, error)
	CreateMessage(ctx context.Context, m *discussion.Message) error
	CompleteSession(ctx context.Context, id string, rounds int, consensusPct float64, completedAt time.Time) error
}

// Notifier receives ordered lifecycle events for a session. Delivery is
// best-effort; a notifier must never block the engine indefinitely or
// return errors into it.
type Notifier interface {
	NewMessage(sessionID string, msg discussion.Message, p *discussion.Provider)
	Typing(sessionID string, p discussion.Provider)
	StoppedTyping(sessionID string, p discussion.Provider)
	RoundUpdate(sessionID string, current, max int, status string)
	ConsensusUpdate(sessionID string, pct float64, round, totalMessages int)
	SessionCompleted(sessionID, summary string, totalRounds, totalMessages int, pct float64)
}

// Engine coordinates any number of sessions; each active session is driven
// by its own goroutine, and turns within one session are strictly
// sequential.
type Engine struct {
	store    Store
	notifier Notifier
	clients  provider.Factory
	cfg      config.EngineConfig

	mu     sync.RWMutex
	active map[string]*session
}

// New wires an engine to its collaborators. clients defaults to
// provider.New when nil.
func New(store Store, notifier Notifier, clients provider.Factory, cfg config.EngineConfig) *Engine {
	if clients == nil {
		clients = provider.New
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		clients:  clients,
		cfg:      cfg,
		active:   make(map[string]*session),
	}
}

// Initialize loads a session's durable record and roster and installs a
// fresh orchestration state, replacing any previous one. Only enabled
// providers holding a credential make the speaking order; the check is not
// re-evaluated mid-run.
func (e *Engine) Initialize(ctx context.Context, sessionID string) error {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	roster, err := e.store.Roster(ctx, sessionID)
	if err != nil {
		return err
	}

	participants := make([]discussion.Provider, 0, len(roster))
	for _, p := range roster {
		if p.Eligible() {
			participants = append(participants, p)
		}
	}

	st := &session{
		id:           sessionID,
		topic:        sess.Topic,
		participants: participants,
		maxRounds:    sess.MaxRounds,
		temperature:  sess.Temperature,
		maxTokens:    sess.MaxTokens,
	}

	e.mu.Lock()
	e.active[sessionID] = st
	e.mu.Unlock()

	log.Printf("[engine] initialized session=%s participants=%d rounds=%d", sessionID, len(participants), sess.MaxRounds)
	return nil
}

// Start marks the session running, persists and announces the kickoff
// message, and launches the round driver. It returns once the start is
// accepted; rounds progress asynchronously.
func (e *Engine) Start(ctx context.Context, sessionID string) error {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsCompleted {
		return ErrAlreadyCompleted
	}

	st := e.lookup(sessionID)
	if st == nil {
		if err := e.Initialize(ctx, sessionID); err != nil {
			return err
		}
		st = e.lookup(sessionID)
	}

	if !st.start() {
		// Already running; a second start must not spawn a second driver.
		return nil
	}

	kickoff := &discussion.Message{
		SessionID: sessionID,
		Role:      discussion.RoleSystem,
		Content:   kickoffMessage(st.topic, st.participants, st.maxRounds),
	}
	if err := e.store.CreateMessage(ctx, kickoff); err != nil {
		st.halt()
		return fmt.Errorf("failed to persist kickoff message: %w", err)
	}
	e.notifier.NewMessage(sessionID, *kickoff, nil)

	go e.runRounds(st)
	return nil
}

// Stop clears the running flag, which the round driver observes at its
// next checkpoint, and finalizes the session immediately. Turns already
// taken in the current round are kept. Without active state it is a no-op.
// Finalization runs on a detached context so the summary and completion
// writes land even when the caller's request is already cancelled.
func (e *Engine) Stop(_ context.Context, sessionID string) {
	st := e.lookup(sessionID)
	if st == nil {
		return
	}
	st.halt()
	e.finalize(context.Background(), sessionID)
}

// AddUserMessage persists a user message, mirrors it into the transcript
// of an active session, and announces it. It never advances a turn.
func (e *Engine) AddUserMessage(ctx context.Context, sessionID, content string) (discussion.Message, error) {
	msg := &discussion.Message{
		SessionID: sessionID,
		Role:      discussion.RoleUser,
		Content:   content,
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return discussion.Message{}, err
	}

	if st := e.lookup(sessionID); st != nil {
		st.append(entry{role: discussion.RoleUser, content: content})
	}

	e.notifier.NewMessage(sessionID, *msg, nil)
	return *msg, nil
}

// IsRunning reports whether a session currently has running orchestration
// state.
func (e *Engine) IsRunning(sessionID string) bool {
	st := e.lookup(sessionID)
	return st != nil && st.isRunning()
}

func (e *Engine) lookup(sessionID string) *session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active[sessionID]
}

// runRounds is the per-session driver: one full pass over the speaking
// order per round, until the round budget is exhausted or the running flag
// is cleared.
func (e *Engine) runRounds(st *session) {
	ctx := context.Background()

	for {
		round := st.advanceRound()
		e.notifier.RoundUpdate(st.id, round, st.maxRounds, "started")

		for _, p := range st.participants {
			if !st.isRunning() {
				break
			}
			e.takeTurn(ctx, st, p)
			if e.cfg.TurnDelay > 0 {
				time.Sleep(e.cfg.TurnDelay)
			}
		}

		if len(st.participants) == 0 {
			// No speakers will ever join mid-run; one empty round is enough.
			break
		}
		if round < st.maxRounds && st.isRunning() {
			if e.cfg.RoundDelay > 0 {
				time.Sleep(e.cfg.RoundDelay)
			}
			continue
		}
		break
	}

	e.finalize(ctx, st.id)
}

// takeTurn runs one provider's generation-and-persist step. A failing
// provider yields a system message attributed to it and the round moves
// on; nothing here aborts the session.
func (e *Engine) takeTurn(ctx context.Context, st *session, p discussion.Provider) {
	e.notifier.Typing(st.id, p)

	messages := buildContext(st, p)

	client, err := e.clients(ctx, p)
	var resp *provider.Response
	if err == nil {
		resp, err = client.Generate(ctx, messages, provider.GenerateOptions{
			Temperature: st.temperature,
			MaxTokens:   st.maxTokens,
		})
	}
	if err != nil {
		e.notifier.StoppedTyping(st.id, p)
		log.Printf("[engine] session=%s provider=%s turn failed: %v", st.id, p.Name, err)
		failure := &discussion.Message{
			SessionID:  st.id,
			ProviderID: p.ID,
			Role:       discussion.RoleSystem,
			Content:    fmt.Sprintf("[%s encountered an error: %v]", p.DisplayName, err),
		}
		if perr := e.store.CreateMessage(ctx, failure); perr != nil {
			log.Printf("[engine] session=%s failed to persist error message: %v", st.id, perr)
		}
		return
	}

	msg := &discussion.Message{
		SessionID:       st.id,
		ProviderID:      p.ID,
		Role:            discussion.RoleAssistant,
		Content:         resp.Content,
		ThinkingContent: resp.ThinkingContent,
		TokensUsed:      resp.TokensUsed,
		ResponseTimeMS:  resp.ResponseTimeMS,
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		// Storage trouble is contained the same way a generation failure is.
		e.notifier.StoppedTyping(st.id, p)
		log.Printf("[engine] session=%s failed to persist message from %s: %v", st.id, p.Name, err)
		return
	}

	st.append(entry{role: discussion.RoleAssistant, speaker: p.DisplayName, content: resp.Content})

	e.notifier.StoppedTyping(st.id, p)
	e.notifier.NewMessage(st.id, *msg, &p)
	e.updateConsensus(st)
}

// updateConsensus recomputes the proportional heuristic after a successful
// turn: min(100, 100 * messages / (maxRounds * participants)), one decimal.
func (e *Engine) updateConsensus(st *session) {
	total := st.messageCount()
	if total == 0 || len(st.participants) == 0 {
		return
	}

	pct := 100 * float64(total) / float64(st.maxRounds*len(st.participants))
	if pct > 100 {
		pct = 100
	}
	pct = math.Round(pct*10) / 10

	e.notifier.ConsensusUpdate(st.id, pct, st.round(), total)
}

// finalize retires a session: it atomically removes the orchestration
// state (so a concurrent Stop and round driver cannot both complete the
// session), persists the summary, marks the durable record completed and
// announces completion. After finalize, the session must be re-initialized
// before any further turn can run.
func (e *Engine) finalize(ctx context.Context, sessionID string) {
	e.mu.Lock()
	st, ok := e.active[sessionID]
	if ok {
		delete(e.active, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	st.halt()

	summary := buildSummary(st)
	if err := e.store.CreateMessage(ctx, &discussion.Message{
		SessionID: sessionID,
		Role:      discussion.RoleSystem,
		Content:   summary,
	}); err != nil {
		log.Printf("[engine] session=%s failed to persist summary: %v", sessionID, err)
	}

	rounds := st.round()
	total := st.messageCount()
	if err := e.store.CompleteSession(ctx, sessionID, rounds, finalConsensus, time.Now().UTC()); err != nil {
		log.Printf("[engine] session=%s failed to mark completed: %v", sessionID, err)
	}

	e.notifier.SessionCompleted(sessionID, summary, rounds, total, finalConsensus)
	log.Printf("[engine] session=%s completed after %d rounds, %d messages", sessionID, rounds, total)
}
