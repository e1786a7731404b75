// Package convo maintains the per-user conversation index: the ordered list
// of conversation summaries each participant sees on their home screen.
package convo

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrezende/courier/internal/identity"
	"github.com/mrezende/courier/internal/remote"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an owner has no index yet or a summary id is
// absent. Callers treat it as an expected empty result, not a hard error.
var ErrNotFound = errors.New("conversation not found")

// LatestMessage is the denormalized preview of a conversation's newest
// message.
type LatestMessage struct {
	Date   string
	Text   string
	IsRead bool
}

// Summary is one entry in a user's conversation index.
type Summary struct {
	ID          string
	Counterpart identity.Identity
	DisplayName string
	Latest      LatestMessage
}

// Index reads and rewrites per-user summary lists. The wire format is a
// whole list per owner; summaries are keyed by conversation id in memory and
// translated to the list form only at this boundary.
type Index struct {
	store  remote.Store
	logger *zap.Logger
}

// NewIndex creates a conversation index store.
func NewIndex(store remote.Store, logger *zap.Logger) *Index {
	return &Index{store: store, logger: logger}
}

// Load returns the owner's current summaries. ErrNotFound when the owner has
// no index yet. Individually malformed records are skipped.
func (ix *Index) Load(ctx context.Context, owner identity.Identity) ([]Summary, error) {
	raw, err := ix.readRaw(ctx, owner)
	if err != nil {
		return nil, err
	}
	return ix.decodeAll(raw), nil
}

// Fetch observes the owner's index. fn receives the decoded summaries on
// every remote change, starting with the current state if one exists.
// Cancel the returned subscription when the owning screen is dismissed.
func (ix *Index) Fetch(owner identity.Identity, fn func([]Summary)) *remote.Subscription {
	key := owner.ConversationsKey()
	return ix.store.Subscribe(key, func(value any) {
		raw, ok := remote.List(value)
		if !ok {
			ix.logger.Warn("conversation index has unexpected shape", zap.String("key", key))
			return
		}
		fn(ix.decodeAll(raw))
	})
}

// UpsertSummary updates the owner's entry for conversationID: if present,
// only its latest message is replaced; otherwise a new summary is appended.
// This is a read-modify-write of the whole list; concurrent writers of the
// same owner can race and the last rewrite wins.
func (ix *Index) UpsertSummary(ctx context.Context, owner identity.Identity, conversationID string, counterpart identity.Identity, displayName string, latest LatestMessage) error {
	raw, err := ix.readRaw(ctx, owner)
	if errors.Is(err, ErrNotFound) {
		raw = nil
	} else if err != nil {
		return err
	}

	updated := false
	for _, rec := range raw {
		if rec["id"] == conversationID {
			rec["latest_message"] = encodeLatest(latest)
			updated = true
			break
		}
	}
	if !updated {
		raw = append(raw, encodeSummary(Summary{
			ID:          conversationID,
			Counterpart: counterpart,
			DisplayName: displayName,
			Latest:      latest,
		}))
	}

	if err := ix.store.Write(ctx, owner.ConversationsKey(), raw); err != nil {
		return fmt.Errorf("rewrite index for %s: %w", owner, err)
	}
	return nil
}

// Delete removes the summary with conversationID from the owner's list and
// rewrites it. The counterpart's index is untouched: deletes are local to
// the deleting user.
func (ix *Index) Delete(ctx context.Context, owner identity.Identity, conversationID string) error {
	raw, err := ix.readRaw(ctx, owner)
	if err != nil {
		return err
	}

	kept := make([]map[string]any, 0, len(raw))
	found := false
	for _, rec := range raw {
		if rec["id"] == conversationID {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return ErrNotFound
	}

	if err := ix.store.Write(ctx, owner.ConversationsKey(), kept); err != nil {
		return fmt.Errorf("rewrite index for %s: %w", owner, err)
	}
	return nil
}

// FindByCounterpart scans the owner's list for the unique summary whose
// counterpart canonicalizes equal to counterpart, returning its conversation
// id or ErrNotFound.
func (ix *Index) FindByCounterpart(ctx context.Context, owner, counterpart identity.Identity) (string, error) {
	raw, err := ix.readRaw(ctx, owner)
	if err != nil {
		return "", err
	}

	want := identity.Canonicalize(counterpart.String())
	for _, rec := range raw {
		other, ok := rec["other_user_email"].(string)
		if !ok {
			continue
		}
		if identity.Canonicalize(other) != want {
			continue
		}
		id, ok := rec["id"].(string)
		if !ok {
			return "", ErrNotFound
		}
		return id, nil
	}
	return "", ErrNotFound
}

// readRaw fetches the owner's list in wire form. Mutations operate on the
// raw records so fields this client does not understand survive rewrites.
func (ix *Index) readRaw(ctx context.Context, owner identity.Identity) ([]map[string]any, error) {
	value, err := ix.store.Read(ctx, owner.ConversationsKey())
	if errors.Is(err, remote.ErrAbsent) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read index for %s: %w", owner, err)
	}
	raw, ok := remote.List(value)
	if !ok {
		return nil, fmt.Errorf("index for %s has unexpected shape", owner)
	}
	return raw, nil
}

func (ix *Index) decodeAll(raw []map[string]any) []Summary {
	summaries := make([]Summary, 0, len(raw))
	for _, rec := range raw {
		s, ok := decodeSummary(rec)
		if !ok {
			ix.logger.Warn("skipping malformed conversation summary")
			continue
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func encodeSummary(s Summary) map[string]any {
	return map[string]any{
		"id":               s.ID,
		"name":             s.DisplayName,
		"other_user_email": s.Counterpart.String(),
		"latest_message":   encodeLatest(s.Latest),
	}
}

func encodeLatest(l LatestMessage) map[string]any {
	return map[string]any{
		"date":    l.Date,
		"message": l.Text,
		"is_read": l.IsRead,
	}
}

func decodeSummary(rec map[string]any) (Summary, bool) {
	id, ok := rec["id"].(string)
	if !ok {
		return Summary{}, false
	}
	name, ok := rec["name"].(string)
	if !ok {
		return Summary{}, false
	}
	other, ok := rec["other_user_email"].(string)
	if !ok {
		return Summary{}, false
	}
	latestRec, ok := remote.Doc(rec["latest_message"])
	if !ok {
		return Summary{}, false
	}
	date, ok := latestRec["date"].(string)
	if !ok {
		return Summary{}, false
	}
	text, ok := latestRec["message"].(string)
	if !ok {
		return Summary{}, false
	}
	isRead, ok := latestRec["is_read"].(bool)
	if !ok {
		return Summary{}, false
	}
	return Summary{
		ID:          id,
		Counterpart: identity.Identity(other),
		DisplayName: name,
		Latest:      LatestMessage{Date: date, Text: text, IsRead: isRead},
	}, true
}
