package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/synapsemind/backend/internal/config"
	"github.com/synapsemind/backend/internal/engine"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/provider"
	"github.com/synapsemind/backend/internal/store"
)

type event struct {
	kind       string
	providerID string
	round      int
	pct        float64
	total      int
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) record(e event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) snapshot() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event(nil), n.events...)
}

func (n *recordingNotifier) NewMessage(sessionID string, msg discussion.Message, p *discussion.Provider) {
	n.record(event{kind: "new_message", providerID: msg.ProviderID})
}

func (n *recordingNotifier) Typing(sessionID string, p discussion.Provider) {
	n.record(event{kind: "typing", providerID: p.ID})
}

func (n *recordingNotifier) StoppedTyping(sessionID string, p discussion.Provider) {
	n.record(event{kind: "stopped_typing", providerID: p.ID})
}

func (n *recordingNotifier) RoundUpdate(sessionID string, current, max int, status string) {
	n.record(event{kind: "round_update", round: current})
}

func (n *recordingNotifier) ConsensusUpdate(sessionID string, pct float64, round, total int) {
	n.record(event{kind: "consensus_update", round: round, pct: pct, total: total})
}

func (n *recordingNotifier) SessionCompleted(sessionID, summary string, rounds, total int, pct float64) {
	n.record(event{kind: "session_completed", round: rounds, pct: pct, total: total})
}

type fakeClient struct {
	generate func(msgs []provider.Message) (*provider.Response, error)
}

func (c *fakeClient) Generate(_ context.Context, msgs []provider.Message, _ provider.GenerateOptions) (*provider.Response, error) {
	return c.generate(msgs)
}

func (c *fakeClient) Probe(context.Context) (float64, error) {
	return 1, nil
}

// fakeFactory resolves clients by provider name.
func fakeFactory(clients map[string]*fakeClient) provider.Factory {
	return func(_ context.Context, p discussion.Provider) (provider.Client, error) {
		c, ok := clients[p.Name]
		if !ok {
			return nil, fmt.Errorf("no client for %s", p.Name)
		}
		return c, nil
	}
}

func okClient(reply string) *fakeClient {
	return &fakeClient{generate: func([]provider.Message) (*provider.Response, error) {
		return &provider.Response{Content: reply, TokensUsed: 5, ResponseTimeMS: 1}, nil
	}}
}

func seedSession(t *testing.T, s *store.Memory, maxRounds int, providers ...discussion.Provider) string {
	t.Helper()
	ctx := context.Background()

	ids := make([]string, 0, len(providers))
	for i := range providers {
		if err := s.CreateProvider(ctx, &providers[i]); err != nil {
			t.Fatalf("CreateProvider err: %v", err)
		}
		ids = append(ids, providers[i].ID)
	}

	sess := discussion.Session{
		Title:       "test",
		Topic:       "the future of testing",
		MaxRounds:   maxRounds,
		Temperature: 0.7,
		MaxTokens:   256,
	}
	if err := s.CreateSession(ctx, &sess, ids); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	return sess.ID
}

func speaker(name string) discussion.Provider {
	return discussion.Provider{
		Name:        name,
		DisplayName: strings.ToUpper(name[:1]) + name[1:],
		Type:        "openai",
		ModelName:   "test-model",
		APIKey:      "test-key",
		Enabled:     true,
	}
}

func newEngine(s *store.Memory, n *recordingNotifier, factory provider.Factory, turnDelay time.Duration) *engine.Engine {
	return engine.New(s, n, factory, config.EngineConfig{
		TurnDelay:  turnDelay,
		RoundDelay: 0,
	})
}

// waitForCompletion blocks until the session_completed event has been
// emitted (the strictly last event of a run), then returns the durable
// record, which is updated before the event goes out.
func waitForCompletion(t *testing.T, s *store.Memory, n *recordingNotifier, sessionID string) discussion.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range n.snapshot() {
			if e.kind == "session_completed" {
				sess, err := s.GetSession(context.Background(), sessionID)
				if err != nil {
					t.Fatalf("GetSession err: %v", err)
				}
				if !sess.IsCompleted {
					t.Fatal("session_completed emitted before durable record was updated")
				}
				return sess
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("session did not complete in time")
	return discussion.Session{}
}

func TestFullRunProducesExpectedMessagesAndConsensus(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	factory := fakeFactory(map[string]*fakeClient{
		"alpha": okClient("alpha says hi"),
		"beta":  okClient("beta says hi"),
	})
	eng := newEngine(s, n, factory, 0)

	sessionID := seedSession(t, s, 3, speaker("alpha"), speaker("beta"))
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	sess := waitForCompletion(t, s, n, sessionID)

	if sess.CurrentRound != 3 {
		t.Fatalf("expected 3 rounds, got %d", sess.CurrentRound)
	}
	if sess.ConsensusPercentage != 80.0 {
		t.Fatalf("expected persisted consensus 80.0, got %v", sess.ConsensusPercentage)
	}
	if sess.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	// kickoff + 3 rounds x 2 speakers + summary
	messages, err := s.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(messages))
	}
	if messages[0].Role != discussion.RoleSystem {
		t.Fatalf("first message should be the kickoff, got role %s", messages[0].Role)
	}
	if messages[len(messages)-1].Role != discussion.RoleSystem {
		t.Fatalf("last message should be the summary, got role %s", messages[len(messages)-1].Role)
	}
	for _, m := range messages[1:7] {
		if m.Role != discussion.RoleAssistant {
			t.Fatalf("expected assistant message, got %s", m.Role)
		}
	}

	var consensus []event
	for _, e := range n.snapshot() {
		if e.kind == "consensus_update" {
			consensus = append(consensus, e)
		}
	}
	if len(consensus) != 6 {
		t.Fatalf("expected 6 consensus updates, got %d", len(consensus))
	}
	prev := 0.0
	for _, e := range consensus {
		if e.pct < prev {
			t.Fatalf("consensus went backwards: %v after %v", e.pct, prev)
		}
		if e.pct < 0 || e.pct > 100 {
			t.Fatalf("consensus out of range: %v", e.pct)
		}
		prev = e.pct
	}
	if last := consensus[len(consensus)-1]; last.pct != 100.0 || last.total != 6 {
		t.Fatalf("expected final consensus 100.0 over 6 messages, got %v over %d", last.pct, last.total)
	}
}

func TestEventOrderingWithinRun(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	factory := fakeFactory(map[string]*fakeClient{"alpha": okClient("hello")})
	eng := newEngine(s, n, factory, 0)

	sessionID := seedSession(t, s, 2, speaker("alpha"))
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	waitForCompletion(t, s, n, sessionID)

	events := n.snapshot()
	if events[len(events)-1].kind != "session_completed" {
		t.Fatalf("expected session_completed last, got %s", events[len(events)-1].kind)
	}

	// Per turn: typing, stopped_typing, new_message, consensus_update, with
	// the round_update announced before any turn event of that round.
	kinds := make([]string, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.kind)
	}
	want := []string{
		"new_message", // kickoff
		"round_update",
		"typing", "stopped_typing", "new_message", "consensus_update",
		"round_update",
		"typing", "stopped_typing", "new_message", "consensus_update",
		"session_completed",
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (%v)", i, want[i], kinds[i], kinds)
		}
	}
}

func TestProviderFailureDoesNotAbortRound(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	factory := fakeFactory(map[string]*fakeClient{
		"alpha": {generate: func([]provider.Message) (*provider.Response, error) {
			return nil, errors.New("quota exceeded")
		}},
		"beta": okClient("beta carries on"),
	})
	eng := newEngine(s, n, factory, 0)

	sessionID := seedSession(t, s, 1, speaker("alpha"), speaker("beta"))
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	waitForCompletion(t, s, n, sessionID)

	messages, err := s.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	// kickoff + alpha failure notice + beta turn + summary
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}

	failure := messages[1]
	if failure.Role != discussion.RoleSystem || failure.ProviderID == "" {
		t.Fatalf("expected attributed system failure message, got role=%s provider=%q", failure.Role, failure.ProviderID)
	}
	if !strings.Contains(failure.Content, "quota exceeded") {
		t.Fatalf("failure message should carry the error, got %q", failure.Content)
	}
	if messages[2].Role != discussion.RoleAssistant {
		t.Fatalf("beta should still have spoken, got role %s", messages[2].Role)
	}
}

func TestZeroEligibleParticipantsFinalizesAfterOneRound(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	eng := newEngine(s, n, fakeFactory(nil), 0)

	disabled := speaker("alpha")
	disabled.Enabled = false
	noKey := speaker("beta")
	noKey.APIKey = ""

	sessionID := seedSession(t, s, 5, disabled, noKey)
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	sess := waitForCompletion(t, s, n, sessionID)

	if sess.CurrentRound != 1 {
		t.Fatalf("expected exactly one round, got %d", sess.CurrentRound)
	}
	for _, e := range n.snapshot() {
		if e.kind == "typing" || e.kind == "stopped_typing" {
			t.Fatalf("no turn events expected, got %s", e.kind)
		}
	}

	messages, err := s.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	// kickoff + summary only
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
}

// ctxStore rejects writes once the supplied context is cancelled, the way
// a real database driver would.
type ctxStore struct {
	*store.Memory
}

func (s ctxStore) CreateMessage(ctx context.Context, m *discussion.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.CreateMessage(ctx, m)
}

func (s ctxStore) CompleteSession(ctx context.Context, id string, rounds int, pct float64, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.CompleteSession(ctx, id, rounds, pct, completedAt)
}

func TestStopPersistsCompletionAfterCallerContextCancelled(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	factory := fakeFactory(map[string]*fakeClient{"alpha": okClient("alpha speaks")})

	eng := engine.New(ctxStore{s}, n, factory, config.EngineConfig{
		TurnDelay: 250 * time.Millisecond,
	})

	sessionID := seedSession(t, s, 3, speaker("alpha"))
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	// Stop with a request context that is already dead; the summary and
	// completion writes must still land.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng.Stop(ctx, sessionID)

	sess := waitForCompletion(t, s, n, sessionID)
	if !sess.IsCompleted {
		t.Fatal("session should be completed after stop")
	}

	messages, err := s.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	foundSummary := false
	for _, m := range messages {
		if m.Role == discussion.RoleSystem && strings.Contains(m.Content, "Discussion Summary") {
			foundSummary = true
		}
	}
	if !foundSummary {
		t.Fatal("closing summary was not persisted")
	}
}

func TestStopMidRoundKeepsTakenTurns(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	factory := fakeFactory(map[string]*fakeClient{
		"alpha": okClient("alpha speaks"),
		"beta":  okClient("beta speaks"),
	})
	// A generous inter-turn delay opens a window to stop between speakers.
	eng := newEngine(s, n, factory, 250*time.Millisecond)

	sessionID := seedSession(t, s, 3, speaker("alpha"), speaker("beta"))
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	// Wait for alpha's second turn (round 2), then stop before beta speaks.
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("alpha never took its round-2 turn")
		}
		messages, err := s.ListMessages(ctx, sessionID)
		if err != nil {
			t.Fatalf("ListMessages err: %v", err)
		}
		assistant := 0
		for _, m := range messages {
			if m.Role == discussion.RoleAssistant {
				assistant++
			}
		}
		if assistant == 3 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	eng.Stop(ctx, sessionID)

	sess := waitForCompletion(t, s, n, sessionID)
	if sess.CurrentRound != 2 {
		t.Fatalf("expected stop during round 2, got round %d", sess.CurrentRound)
	}
	if eng.IsRunning(sessionID) {
		t.Fatal("session should not be running after stop")
	}

	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	// kickoff + round 1 (alpha, beta) + round 2 alpha + summary
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	betaTurns := 0
	for _, m := range messages {
		if m.Role == discussion.RoleAssistant && strings.Contains(m.Content, "beta") {
			betaTurns++
		}
	}
	if betaTurns != 1 {
		t.Fatalf("beta should have exactly its round-1 turn, got %d", betaTurns)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	eng := newEngine(s, n, fakeFactory(nil), 0)

	sessionID := seedSession(t, s, 3, speaker("alpha"))

	ctx := context.Background()
	if err := eng.Initialize(ctx, sessionID); err != nil {
		t.Fatalf("Initialize err: %v", err)
	}
	if err := eng.Initialize(ctx, sessionID); err != nil {
		t.Fatalf("second Initialize err: %v", err)
	}

	// Initialize alone never emits the kickoff or any other event.
	if len(n.snapshot()) != 0 {
		t.Fatalf("expected no events after initialize, got %d", len(n.snapshot()))
	}
	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages after initialize, got %d", len(messages))
	}
	if eng.IsRunning(sessionID) {
		t.Fatal("initialize must not mark the session running")
	}
}

func TestInitializeUnknownSession(t *testing.T) {
	eng := newEngine(store.NewMemory(), &recordingNotifier{}, fakeFactory(nil), 0)
	err := eng.Initialize(context.Background(), "missing")
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStartCompletedSession(t *testing.T) {
	s := store.NewMemory()
	eng := newEngine(s, &recordingNotifier{}, fakeFactory(nil), 0)

	sessionID := seedSession(t, s, 1, speaker("alpha"))
	if err := s.CompleteSession(context.Background(), sessionID, 1, 80.0, time.Now().UTC()); err != nil {
		t.Fatalf("CompleteSession err: %v", err)
	}

	err := eng.Start(context.Background(), sessionID)
	if !errors.Is(err, engine.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestUserMessageInjection(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}
	eng := newEngine(s, n, fakeFactory(nil), 0)

	sessionID := seedSession(t, s, 3, speaker("alpha"))

	msg, err := eng.AddUserMessage(context.Background(), sessionID, "please consider cost")
	if err != nil {
		t.Fatalf("AddUserMessage err: %v", err)
	}
	if msg.Role != discussion.RoleUser || msg.ID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	messages, err := s.ListMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	events := n.snapshot()
	if len(events) != 1 || events[0].kind != "new_message" {
		t.Fatalf("expected a single new_message event, got %v", events)
	}
}

func TestContextIncludesSpeakerNames(t *testing.T) {
	s := store.NewMemory()
	n := &recordingNotifier{}

	var mu sync.Mutex
	var captured [][]provider.Message
	capturing := &fakeClient{generate: func(msgs []provider.Message) (*provider.Response, error) {
		mu.Lock()
		captured = append(captured, msgs)
		mu.Unlock()
		return &provider.Response{Content: "noted"}, nil
	}}
	factory := fakeFactory(map[string]*fakeClient{"alpha": capturing, "beta": capturing})
	eng := newEngine(s, n, factory, 0)

	sessionID := seedSession(t, s, 1, speaker("alpha"), speaker("beta"))
	if err := eng.Start(context.Background(), sessionID); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	waitForCompletion(t, s, n, sessionID)

	mu.Lock()
	defer mu.Unlock()
	if len(captured) != 2 {
		t.Fatalf("expected 2 generation calls, got %d", len(captured))
	}

	// Beta's context: system prompt naming alpha, then alpha's prefixed turn.
	betaCtx := captured[1]
	if betaCtx[0].Role != "system" {
		t.Fatalf("expected system message first, got %s", betaCtx[0].Role)
	}
	if !strings.Contains(betaCtx[0].Content, "You are Beta") {
		t.Fatalf("system prompt should address the speaker, got %q", betaCtx[0].Content)
	}
	if !strings.Contains(betaCtx[0].Content, "Other participants: Alpha") {
		t.Fatalf("system prompt should name peers, got %q", betaCtx[0].Content)
	}
	if len(betaCtx) != 2 || !strings.HasPrefix(betaCtx[1].Content, "[Alpha]: ") {
		t.Fatalf("history should carry the speaker prefix, got %+v", betaCtx)
	}
}
