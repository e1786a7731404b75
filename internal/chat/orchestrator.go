// Package chat composes the conversation index and message thread stores
// into the two top-level send paths: messaging an existing conversation and
// creating a conversation from its first message.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/mrezende/courier/internal/codec"
	"github.com/mrezende/courier/internal/convo"
	"github.com/mrezende/courier/internal/identity"
	"github.com/mrezende/courier/internal/profile"
	"github.com/mrezende/courier/internal/thread"
	"go.uber.org/zap"
)

// ErrIdentityMissing is returned when no user is signed in. Surfaced to the
// UI as "must be logged in".
var ErrIdentityMissing = errors.New("must be logged in")

// Orchestrator drives multi-step sends. Steps within one call run strictly
// in sequence with no rollback: a failure partway leaves the system
// partially applied, and there is no ordering between concurrent calls.
type Orchestrator struct {
	session *profile.Session
	index   *convo.Index
	threads *thread.Store
	logger  *zap.Logger
}

// NewOrchestrator creates an orchestrator acting as the given session's user.
func NewOrchestrator(session *profile.Session, index *convo.Index, threads *thread.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		session: session,
		index:   index,
		threads: threads,
		logger:  logger,
	}
}

// NewOutgoing builds a message authored by the signed-in user, with the id
// format {counterpart}_{sender}_{formattedTimestamp}.
func (o *Orchestrator) NewOutgoing(counterpart identity.Identity, kind codec.Kind, at time.Time) (codec.Message, error) {
	if o.session == nil || o.session.Email == "" {
		return codec.Message{}, ErrIdentityMissing
	}
	sender := o.session.Identity()
	return codec.Message{
		ID:       codec.NewMessageID(counterpart, sender, at),
		Sender:   sender,
		SentDate: at,
		Kind:     kind,
	}, nil
}

// SendMessage appends m to an existing conversation, then refreshes both
// participants' summaries. The append is the success criterion; the two
// index updates are best-effort and their failures are logged, not
// surfaced.
func (o *Orchestrator) SendMessage(ctx context.Context, conversationID string, counterpart identity.Identity, displayName string, m codec.Message) error {
	if o.session == nil || o.session.Email == "" {
		return ErrIdentityMissing
	}
	sender := o.session.Identity()

	if err := o.threads.Append(ctx, conversationID, m, displayName); err != nil {
		// The send did not happen; nothing to compensate.
		return err
	}

	latest := convo.LatestMessage{
		Date:   codec.FormatDate(m.SentDate),
		Text:   codec.Content(m.Kind),
		IsRead: false,
	}
	if err := o.index.UpsertSummary(ctx, sender, conversationID, counterpart, displayName, latest); err != nil {
		o.logger.Warn("sender index update failed after send",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	if err := o.index.UpsertSummary(ctx, counterpart, conversationID, sender, o.session.DisplayName, latest); err != nil {
		o.logger.Warn("counterpart index update failed after send",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// CreateConversation derives a conversation id from the first message,
// writes both participants' new summaries, then creates the thread. Success
// is the thread write; the summary writes are best-effort. Returns the new
// conversation id either way so the caller can retry against it.
func (o *Orchestrator) CreateConversation(ctx context.Context, counterpart identity.Identity, displayName string, first codec.Message) (string, error) {
	if o.session == nil || o.session.Email == "" {
		return "", ErrIdentityMissing
	}
	sender := o.session.Identity()
	conversationID := codec.ThreadID(first.ID)

	latest := convo.LatestMessage{
		Date:   codec.FormatDate(first.SentDate),
		Text:   codec.Content(first.Kind),
		IsRead: false,
	}
	if err := o.index.UpsertSummary(ctx, counterpart, conversationID, sender, o.session.DisplayName, latest); err != nil {
		o.logger.Warn("counterpart index write failed during conversation create",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	if err := o.index.UpsertSummary(ctx, sender, conversationID, counterpart, displayName, latest); err != nil {
		o.logger.Warn("sender index write failed during conversation create",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	if err := o.threads.CreateThread(ctx, conversationID, first, displayName); err != nil {
		return conversationID, err
	}
	return conversationID, nil
}
