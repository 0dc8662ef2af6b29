package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"gorm.io/gorm"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/events"
	"qline/internal/models"
	"qline/internal/sequencer"
	"qline/internal/storage/storagetest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var testPolicy = config.QueuePolicy{
	PerPersonMinutes:        2,
	MinWaitMinutes:          5,
	PositionNotifyThreshold: 3,
}

type sentMail struct {
	kind     string
	to       string
	queue    string
	position int
	code     string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) QueueJoined(_ context.Context, to, queueName string, position, _ int) {
	n.add(sentMail{kind: "joined", to: to, queue: queueName, position: position})
}

func (n *fakeNotifier) PositionUpdate(_ context.Context, to, queueName string, position, _ int) {
	n.add(sentMail{kind: "position", to: to, queue: queueName, position: position})
}

func (n *fakeNotifier) YourTurn(_ context.Context, to, queueName, code string) {
	n.add(sentMail{kind: "turn", to: to, queue: queueName, code: code})
}

func (n *fakeNotifier) add(m sentMail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
}

func (n *fakeNotifier) byKind(kind string) []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMail
	for _, m := range n.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	db         *gorm.DB
	seq        *sequencer.Sequencer
	notifier   *fakeNotifier
	pub        *fakePublisher
	admission  *AdmissionService
	transition *TransitionService
	lifecycle  *LifecycleService
	analytics  *AnalyticsService
	owner      *auth.Identity
	queue      *models.Queue
}

func newFixture(t *testing.T, policy config.QueuePolicy, fields ...models.CustomField) *fixture {
	t.Helper()
	db := storagetest.New(t)
	seq := sequencer.New(db)
	n := &fakeNotifier{}
	pub := &fakePublisher{}
	owner := storagetest.User(t, db, "owner")
	q := storagetest.Queue(t, db, owner, fields...)
	return &fixture{
		db:         db,
		seq:        seq,
		notifier:   n,
		pub:        pub,
		admission:  NewAdmissionService(seq, n, pub, policy, discard),
		transition: NewTransitionService(db, seq, n, pub, policy, discard),
		lifecycle:  NewLifecycleService(db, seq, pub, policy, discard),
		analytics:  NewAnalyticsService(db, policy),
		owner:      identityOf(owner),
		queue:      q,
	}
}

func identityOf(u *models.User) *auth.Identity {
	return &auth.Identity{UserID: u.ID, Email: u.Email, Name: u.Name}
}

func (f *fixture) user(t *testing.T, name string) *auth.Identity {
	t.Helper()
	return identityOf(storagetest.User(t, f.db, name))
}

func (f *fixture) join(t *testing.T, fields map[string]any, id *auth.Identity) *JoinResult {
	t.Helper()
	res, err := f.admission.Join(context.Background(), JoinRequest{QueueID: f.queue.ID, Fields: fields, Identity: id})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return res
}
