package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrezende/courier/internal/codec"
	"github.com/mrezende/courier/internal/convo"
	"github.com/mrezende/courier/internal/identity"
	"github.com/mrezende/courier/internal/profile"
	"github.com/mrezende/courier/internal/remote"
	"github.com/mrezende/courier/internal/thread"
	"go.uber.org/zap"
)

var sendTime = time.Date(2024, time.January, 7, 15, 4, 5, 0, time.UTC)

// flakyStore fails writes to chosen keys, for partial-failure scenarios.
type flakyStore struct {
	*remote.Memory
	failWrites map[string]bool
}

func (f *flakyStore) Write(ctx context.Context, key string, value any) error {
	if f.failWrites[key] {
		return errors.New("simulated write failure")
	}
	return f.Memory.Write(ctx, key, value)
}

func aliceSession() *profile.Session {
	return &profile.Session{Email: "a@x.com", DisplayName: "Alice Smith"}
}

func newOrchestrator(store remote.Store, session *profile.Session) (*Orchestrator, *convo.Index, *thread.Store) {
	logger := zap.NewNop()
	index := convo.NewIndex(store, logger)
	threads := thread.NewStore(store, logger)
	return NewOrchestrator(session, index, threads, logger), index, threads
}

func TestRequiresSession(t *testing.T) {
	o, _, _ := newOrchestrator(remote.NewMemory(), nil)
	ctx := context.Background()
	bob := identity.Canonicalize("b@y.com")

	if err := o.SendMessage(ctx, "conversation_x", bob, "Bob", codec.Message{}); !errors.Is(err, ErrIdentityMissing) {
		t.Errorf("SendMessage err = %v, want ErrIdentityMissing", err)
	}
	if _, err := o.CreateConversation(ctx, bob, "Bob", codec.Message{}); !errors.Is(err, ErrIdentityMissing) {
		t.Errorf("CreateConversation err = %v, want ErrIdentityMissing", err)
	}
	if _, err := o.NewOutgoing(bob, codec.Text("hi"), sendTime); !errors.Is(err, ErrIdentityMissing) {
		t.Errorf("NewOutgoing err = %v, want ErrIdentityMissing", err)
	}
}

// First text message from a@x.com to b@y.com: both identities canonicalize,
// the conversation id derives from the first message id, both indexes gain
// one summary, and the thread holds exactly the first message.
func TestFirstMessageScenario(t *testing.T) {
	store := remote.NewMemory()
	o, index, threads := newOrchestrator(store, aliceSession())
	ctx := context.Background()

	bob := identity.Canonicalize("b@y.com")
	if bob != "b-y-com" {
		t.Fatalf("canonicalize = %q", bob)
	}

	first, err := o.NewOutgoing(bob, codec.Text("hi"), sendTime)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(first.ID, "b-y-com_a-x-com_") {
		t.Errorf("message id = %q", first.ID)
	}

	id, err := o.CreateConversation(ctx, bob, "Bob Jones", first)
	if err != nil {
		t.Fatal(err)
	}
	if id != "conversation_"+first.ID {
		t.Errorf("conversation id = %q", id)
	}

	msgs, err := threads.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Kind != codec.Text("hi") {
		t.Errorf("thread = %+v, want single Text(hi)", msgs)
	}

	alice := identity.Canonicalize("a@x.com")
	mine, err := index.Load(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := index.Load(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || len(theirs) != 1 {
		t.Fatalf("index sizes = %d/%d, want 1/1", len(mine), len(theirs))
	}
	if mine[0].ID != id || theirs[0].ID != id {
		t.Errorf("summary ids = %q/%q, want %q", mine[0].ID, theirs[0].ID, id)
	}
	if mine[0].Counterpart != bob || mine[0].DisplayName != "Bob Jones" {
		t.Errorf("sender summary = %+v", mine[0])
	}
	// Counterpart's summary points back at the sender, under the sender's
	// own display name.
	if theirs[0].Counterpart != alice || theirs[0].DisplayName != "Alice Smith" {
		t.Errorf("counterpart summary = %+v", theirs[0])
	}
	if mine[0].Latest.Text != "hi" || theirs[0].Latest.Text != "hi" {
		t.Errorf("latest = %q/%q, want hi", mine[0].Latest.Text, theirs[0].Latest.Text)
	}
}

func TestSendMessageUpdatesThreadAndBothIndexes(t *testing.T) {
	store := remote.NewMemory()
	o, index, threads := newOrchestrator(store, aliceSession())
	ctx := context.Background()
	bob := identity.Canonicalize("b-y-com")

	first, _ := o.NewOutgoing(bob, codec.Text("hi"), sendTime)
	id, err := o.CreateConversation(ctx, bob, "Bob", first)
	if err != nil {
		t.Fatal(err)
	}

	next, _ := o.NewOutgoing(bob, codec.Text("how are you"), sendTime.Add(time.Minute))
	if err := o.SendMessage(ctx, id, bob, "Bob", next); err != nil {
		t.Fatal(err)
	}

	msgs, err := threads.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[len(msgs)-1].ID != next.ID {
		t.Errorf("thread = %+v, want new message last", msgs)
	}

	for _, owner := range []identity.Identity{"a-x-com", "b-y-com"} {
		summaries, err := index.Load(ctx, owner)
		if err != nil {
			t.Fatal(err)
		}
		if len(summaries) != 1 {
			t.Fatalf("%s has %d summaries, want 1", owner, len(summaries))
		}
		if summaries[0].Latest.Text != "how are you" {
			t.Errorf("%s latest = %q, want sent content", owner, summaries[0].Latest.Text)
		}
	}
}

func TestSendMessageFailsWithoutThread(t *testing.T) {
	store := remote.NewMemory()
	o, index, _ := newOrchestrator(store, aliceSession())
	ctx := context.Background()
	bob := identity.Canonicalize("b-y-com")

	m, _ := o.NewOutgoing(bob, codec.Text("hi"), sendTime)
	err := o.SendMessage(ctx, "conversation_nope", bob, "Bob", m)
	if !errors.Is(err, thread.ErrThreadMissing) {
		t.Fatalf("err = %v, want ErrThreadMissing", err)
	}

	// The failed append stops the sequence: no index writes happened.
	if _, err := index.Load(ctx, "a-x-com"); !errors.Is(err, convo.ErrNotFound) {
		t.Errorf("sender index err = %v, want ErrNotFound", err)
	}
}

func TestIndexFailuresAreBestEffort(t *testing.T) {
	bob := identity.Canonicalize("b-y-com")
	store := &flakyStore{
		Memory: remote.NewMemory(),
		failWrites: map[string]bool{
			bob.ConversationsKey(): true,
		},
	}
	o, index, _ := newOrchestrator(store, aliceSession())
	ctx := context.Background()

	first, _ := o.NewOutgoing(bob, codec.Text("hi"), sendTime)
	id, err := o.CreateConversation(ctx, bob, "Bob", first)
	if err != nil {
		t.Fatalf("create should succeed despite counterpart index failure: %v", err)
	}

	next, _ := o.NewOutgoing(bob, codec.Text("again"), sendTime.Add(time.Minute))
	if err := o.SendMessage(ctx, id, bob, "Bob", next); err != nil {
		t.Fatalf("send should succeed despite counterpart index failure: %v", err)
	}

	// Partially-applied state: the sender's index advanced, the
	// counterpart's never materialized.
	mine, err := index.Load(ctx, "a-x-com")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Latest.Text != "again" {
		t.Errorf("sender index = %+v", mine)
	}
	if _, err := index.Load(ctx, bob); !errors.Is(err, convo.ErrNotFound) {
		t.Errorf("counterpart index err = %v, want ErrNotFound", err)
	}
}

func TestCreateConversationThreadFailure(t *testing.T) {
	bob := identity.Canonicalize("b-y-com")
	store := &flakyStore{Memory: remote.NewMemory(), failWrites: map[string]bool{}}
	o, index, _ := newOrchestrator(store, aliceSession())
	ctx := context.Background()

	first, _ := o.NewOutgoing(bob, codec.Text("hi"), sendTime)
	store.failWrites[thread.MessagesKey(codec.ThreadID(first.ID))] = true

	id, err := o.CreateConversation(ctx, bob, "Bob", first)
	if err == nil {
		t.Fatal("expected error when thread write fails")
	}
	if id != codec.ThreadID(first.ID) {
		t.Errorf("id = %q, want derived id even on failure", id)
	}

	// No rollback: both summaries were already written.
	mine, err := index.Load(ctx, "a-x-com")
	if err != nil || len(mine) != 1 {
		t.Errorf("sender index = %+v, %v", mine, err)
	}
}
