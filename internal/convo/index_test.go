package convo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrezende/courier/internal/identity"
	"github.com/mrezende/courier/internal/remote"
	"go.uber.org/zap"
)

var (
	alice = identity.Canonicalize("a@x.com")
	bob   = identity.Canonicalize("b@y.com")
)

func testIndex() (*Index, *remote.Memory) {
	store := remote.NewMemory()
	return NewIndex(store, zap.NewNop()), store
}

func latest(text string) LatestMessage {
	return LatestMessage{Date: "Jan 7, 2024 at 3:04:05 PM UTC", Text: text, IsRead: false}
}

func TestLoadEmptyOwner(t *testing.T) {
	ix, _ := testIndex()
	_, err := ix.Load(context.Background(), alice)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertAppendsThenReplacesLatestOnly(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("hi")); err != nil {
		t.Fatal(err)
	}

	summaries, err := ix.Load(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].Counterpart != bob || summaries[0].DisplayName != "Bob" {
		t.Errorf("summary = %+v", summaries[0])
	}

	// Second upsert with a different display name must touch only the
	// latest message.
	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Robert", latest("again")); err != nil {
		t.Fatal(err)
	}
	summaries, err = ix.Load(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1 (no duplicate)", len(summaries))
	}
	if summaries[0].Latest.Text != "again" {
		t.Errorf("latest.Text = %q, want again", summaries[0].Latest.Text)
	}
	if summaries[0].DisplayName != "Bob" {
		t.Errorf("displayName = %q, want unchanged Bob", summaries[0].DisplayName)
	}
}

func TestUpsertPreservesOrderAndOtherSummaries(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	carol := identity.Canonicalize("c@z.org")
	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("one")); err != nil {
		t.Fatal(err)
	}
	if err := ix.UpsertSummary(ctx, alice, "conversation_m2", carol, "Carol", latest("two")); err != nil {
		t.Fatal(err)
	}
	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("three")); err != nil {
		t.Fatal(err)
	}

	summaries, err := ix.Load(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].ID != "conversation_m1" || summaries[1].ID != "conversation_m2" {
		t.Errorf("order changed: %q, %q", summaries[0].ID, summaries[1].ID)
	}
	if summaries[0].Latest.Text != "three" {
		t.Errorf("latest.Text = %q, want three", summaries[0].Latest.Text)
	}
}

func TestFindByCounterpart(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	if _, err := ix.FindByCounterpart(ctx, alice, bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty owner: err = %v, want ErrNotFound", err)
	}

	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("hi")); err != nil {
		t.Fatal(err)
	}

	// Raw address canonicalizes to the stored counterpart.
	id, err := ix.FindByCounterpart(ctx, alice, identity.Identity("b@y.com"))
	if err != nil {
		t.Fatal(err)
	}
	if id != "conversation_m1" {
		t.Errorf("id = %q, want conversation_m1", id)
	}

	if _, err := ix.FindByCounterpart(ctx, alice, identity.Canonicalize("nobody@z.org")); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown counterpart: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteIsOwnerLocal(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	// Both participants hold a summary for the same conversation.
	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("hi")); err != nil {
		t.Fatal(err)
	}
	if err := ix.UpsertSummary(ctx, bob, "conversation_m1", alice, "Alice", latest("hi")); err != nil {
		t.Fatal(err)
	}

	if err := ix.Delete(ctx, alice, "conversation_m1"); err != nil {
		t.Fatal(err)
	}

	summaries, err := ix.Load(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Errorf("owner still has %d summaries", len(summaries))
	}

	// Asymmetric by design: the counterpart keeps their summary.
	theirs, err := ix.Load(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 1 {
		t.Errorf("counterpart has %d summaries, want 1", len(theirs))
	}
}

func TestDeleteMissing(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	if err := ix.Delete(ctx, alice, "conversation_m1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("absent list: err = %v, want ErrNotFound", err)
	}

	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("hi")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Delete(ctx, alice, "conversation_nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestFetchLive(t *testing.T) {
	ix, _ := testIndex()
	ctx := context.Background()

	updates := make(chan []Summary, 8)
	sub := ix.Fetch(alice, func(s []Summary) { updates <- s })
	defer sub.Cancel()

	if err := ix.UpsertSummary(ctx, alice, "conversation_m1", bob, "Bob", latest("hi")); err != nil {
		t.Fatal(err)
	}

	select {
	case summaries := <-updates:
		if len(summaries) != 1 || summaries[0].ID != "conversation_m1" {
			t.Errorf("got %+v", summaries)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for index update")
	}
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	ix, store := testIndex()
	ctx := context.Background()

	raw := []map[string]any{
		{"id": "conversation_m1", "name": "Bob", "other_user_email": "b-y-com",
			"latest_message": map[string]any{"date": "d", "message": "hi", "is_read": false}},
		{"id": "conversation_bad"}, // missing fields
	}
	if err := store.Write(ctx, alice.ConversationsKey(), raw); err != nil {
		t.Fatal(err)
	}

	summaries, err := ix.Load(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].ID != "conversation_m1" {
		t.Errorf("got %+v, want the single well-formed summary", summaries)
	}
}
