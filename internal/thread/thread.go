// Package thread maintains per-conversation message lists: append-only in
// principle, rewritten whole on every write at the store boundary.
package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrezende/courier/internal/codec"
	"github.com/mrezende/courier/internal/remote"
	"go.uber.org/zap"
)

// ErrThreadMissing is returned by Append when the conversation has no
// message list yet. Threads are created only through CreateThread.
var ErrThreadMissing = errors.New("thread does not exist")

// MessagesKey returns the store key of a conversation's message list.
func MessagesKey(conversationID string) string {
	return conversationID + "/messages"
}

// Store reads and rewrites conversation message lists.
type Store struct {
	store  remote.Store
	logger *zap.Logger
}

// NewStore creates a message thread store.
func NewStore(store remote.Store, logger *zap.Logger) *Store {
	return &Store{store: store, logger: logger}
}

// Append adds a message to an existing thread and rewrites the whole list.
// The thread must pre-exist; conversation creation is a separate path.
func (s *Store) Append(ctx context.Context, conversationID string, m codec.Message, displayName string) error {
	key := MessagesKey(conversationID)
	value, err := s.store.Read(ctx, key)
	if errors.Is(err, remote.ErrAbsent) {
		return ErrThreadMissing
	}
	if err != nil {
		return fmt.Errorf("read thread %s: %w", conversationID, err)
	}
	raw, ok := remote.List(value)
	if !ok {
		return fmt.Errorf("thread %s has unexpected shape", conversationID)
	}

	raw = append(raw, codec.Encode(m, displayName))
	if err := s.store.Write(ctx, key, raw); err != nil {
		return fmt.Errorf("rewrite thread %s: %w", conversationID, err)
	}
	return nil
}

// CreateThread writes a brand-new single-element message list for the
// conversation. Existence is not checked: a concurrent creation is resolved
// by last write wins.
func (s *Store) CreateThread(ctx context.Context, conversationID string, first codec.Message, displayName string) error {
	list := []map[string]any{codec.Encode(first, displayName)}
	if err := s.store.Write(ctx, MessagesKey(conversationID), list); err != nil {
		return fmt.Errorf("create thread %s: %w", conversationID, err)
	}
	return nil
}

// Load returns the thread's current messages, skipping individually
// malformed records. ErrThreadMissing when the conversation has no list.
func (s *Store) Load(ctx context.Context, conversationID string) ([]codec.Message, error) {
	value, err := s.store.Read(ctx, MessagesKey(conversationID))
	if errors.Is(err, remote.ErrAbsent) {
		return nil, ErrThreadMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read thread %s: %w", conversationID, err)
	}
	raw, ok := remote.List(value)
	if !ok {
		return nil, fmt.Errorf("thread %s has unexpected shape", conversationID)
	}
	return s.decodeAll(conversationID, raw), nil
}

// FetchAll observes the thread. On every remote change fn receives the
// decoded messages; records that fail to decode are skipped rather than
// failing the emission. Empty emissions are suppressed so a transient empty
// read never clears a populated screen; the flip side is that a legitimately
// emptied thread never visibly updates. Cancel the subscription when the
// owning screen is dismissed.
func (s *Store) FetchAll(conversationID string, fn func([]codec.Message)) *remote.Subscription {
	key := MessagesKey(conversationID)
	return s.store.Subscribe(key, func(value any) {
		raw, ok := remote.List(value)
		if !ok {
			s.logger.Warn("thread has unexpected shape", zap.String("conversation_id", conversationID))
			return
		}
		msgs := s.decodeAll(conversationID, raw)
		if len(msgs) == 0 {
			return
		}
		fn(msgs)
	})
}

func (s *Store) decodeAll(conversationID string, raw []map[string]any) []codec.Message {
	msgs := make([]codec.Message, 0, len(raw))
	for _, rec := range raw {
		m, err := codec.Decode(rec)
		if err != nil {
			s.logger.Warn("skipping malformed message record",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}
