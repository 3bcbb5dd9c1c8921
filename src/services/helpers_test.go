package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"group-registry/src/apierr"
	"group-registry/src/lib"
	"group-registry/src/models"
	"group-registry/src/storage"
)

var testEpoch = time.Unix(1_700_000_000, 0)

type fakeVerifier struct {
	mu       sync.Mutex
	neurons  map[string][]models.Neuron // canister -> neurons
	balances map[string]*big.Int        // contract + "/" + owner -> balance
	failing  map[string]bool            // canister or contract
	calls    int
	block    chan struct{}
	entered  chan struct{}
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		neurons:  map[string][]models.Neuron{},
		balances: map[string]*big.Int{},
		failing:  map[string]bool{},
	}
}

// pause makes every call signal entered and wait for release.
func (v *fakeVerifier) pause() (entered <-chan struct{}, release func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.block = make(chan struct{})
	v.entered = make(chan struct{}, 16)
	block := v.block
	return v.entered, func() { close(block) }
}

func (v *fakeVerifier) wait(ctx context.Context) error {
	v.mu.Lock()
	v.calls++
	block, entered := v.block, v.entered
	v.mu.Unlock()
	if block == nil {
		return nil
	}
	entered <- struct{}{}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *fakeVerifier) ListNeurons(ctx context.Context, canister, _ string, _ int, _ string) (models.NeuronPage, error) {
	if err := v.wait(ctx); err != nil {
		return models.NeuronPage{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failing[canister] {
		return models.NeuronPage{}, errors.New("canister unreachable")
	}
	return models.NeuronPage{Neurons: v.neurons[canister]}, nil
}

func (v *fakeVerifier) BalanceOf(ctx context.Context, _ models.TokenStandard, contract, owner string) (*big.Int, error) {
	if err := v.wait(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failing[contract] {
		return nil, errors.New("contract unreachable")
	}
	if b, ok := v.balances[contract+"/"+owner]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (v *fakeVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *fakeNotifier) Enqueue(_ context.Context, notification models.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.sent = append(n.sent, notification)
	return notification.ID, nil
}

func (n *fakeNotifier) ofKind(kind models.NotificationKind) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, sent := range n.sent {
		if sent.Kind == kind {
			out = append(out, sent)
		}
	}
	return out
}

type fakeRewards struct {
	mu      sync.Mutex
	signals []models.RewardSignal
}

func (r *fakeRewards) Notify(_ context.Context, signal models.RewardSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

func (r *fakeRewards) count(kind models.RewardSignalKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type scheduledCall struct {
	at time.Time
	fn func()
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls map[string]scheduledCall
}

func (s *fakeScheduler) Schedule(key string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]scheduledCall{}
	}
	s.calls[key] = scheduledCall{at: at, fn: fn}
}

func (s *fakeScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calls[key]
	delete(s.calls, key)
	return ok
}

func (s *fakeScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calls[key]
	return ok
}

func (s *fakeScheduler) fire(key string) bool {
	s.mu.Lock()
	call, ok := s.calls[key]
	delete(s.calls, key)
	s.mu.Unlock()
	if ok {
		call.fn()
	}
	return ok
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc       *GroupService
	store     *storage.MemoryStore
	verifier  *fakeVerifier
	notifier  *fakeNotifier
	rewards   *fakeRewards
	scheduler *fakeScheduler
	clock     *testClock
	metrics   *lib.Metrics
	pubKey    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	privKey := nostr.GeneratePrivateKey()
	pubKey, err := nostr.GetPublicKey(privKey)
	if err != nil {
		t.Fatalf("GetPublicKey() error = %v", err)
	}

	env := &testEnv{
		store:     storage.NewMemoryStore(),
		verifier:  newFakeVerifier(),
		notifier:  &fakeNotifier{},
		rewards:   &fakeRewards{},
		scheduler: &fakeScheduler{},
		clock:     &testClock{now: testEpoch},
		metrics:   lib.NewMetrics(),
		pubKey:    pubKey,
	}
	env.svc = NewGroupService(GroupServiceConfig{
		Store:      env.store,
		Gatekeeper: NewGatekeeper(env.verifier, GatekeeperConfig{Concurrency: 4}, env.metrics, nil),
		History:    NewHistoryRecorder(env.store, pubKey, privKey, env.metrics),
		Notifier:   env.notifier,
		Rewards:    env.rewards,
		Scheduler:  env.scheduler,
		Metrics:    env.metrics,
		Now:        env.clock.Now,
	})
	return env
}

func (e *testEnv) register(t *testing.T, principals ...string) {
	t.Helper()
	for _, p := range principals {
		if _, err := e.svc.RegisterMember(context.Background(), p); err != nil {
			t.Fatalf("RegisterMember(%q) error = %v", p, err)
		}
	}
}

func (e *testEnv) createGroup(t *testing.T, owner, name string, privacy models.Privacy) models.Group {
	t.Helper()
	group, err := e.svc.AddGroup(context.Background(), owner, models.PostGroup{
		Name:        name,
		Description: "test group",
		Privacy:     privacy,
	})
	if err != nil {
		t.Fatalf("AddGroup(%q) error = %v", name, err)
	}
	return group
}

func (e *testEnv) member(t *testing.T, principal string) models.Member {
	t.Helper()
	m, err := e.store.GetMember(context.Background(), principal)
	if err != nil {
		t.Fatalf("GetMember(%q) error = %v", principal, err)
	}
	return m
}

// assertConsistent fails if any principal's member record and the group
// roster disagree.
func (e *testEnv) assertConsistent(t *testing.T, groupID uint64, principals ...string) {
	t.Helper()
	mismatches, err := e.svc.CheckRosterConsistency(context.Background(), groupID, principals...)
	if err != nil {
		t.Fatalf("CheckRosterConsistency() error = %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("roster mismatches = %+v, want none", mismatches)
	}
}

func wantCode(t *testing.T, err error, code apierr.Code) {
	t.Helper()
	if got := apierr.CodeOf(err); got != code {
		t.Fatalf("error = %v (code %q), want code %q", err, got, code)
	}
}

func public() models.Privacy { return models.Privacy{Kind: models.PrivacyPublic} }
func private() models.Privacy { return models.Privacy{Kind: models.PrivacyPrivate} }
func inviteOnly() models.Privacy { return models.Privacy{Kind: models.PrivacyInviteOnly} }

func tokenGate(required int, contracts ...string) models.Privacy {
	tokens := make([]models.TokenGated, 0, len(contracts))
	for _, c := range contracts {
		tokens = append(tokens, models.TokenGated{Contract: c, Standard: models.StandardICRC, Amount: 10})
	}
	return models.Privacy{Kind: models.PrivacyGated, Gated: &models.GatedType{
		Kind:              models.GatedToken,
		Tokens:            tokens,
		RequiredPassCount: required,
	}}
}
