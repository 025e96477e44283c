package models

import (
	"context"

	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/session"
)

// ChatThreadFields declares the chat_thread table: one row per distinct
// conversation, looked up by its external subject_key (e.g. a support
// ticket id or a DM pair's canonical key) rather than by primary key, since
// callers don't know the thread exists yet when a message first arrives.
func ChatThreadFields() *field.Registry {
	return field.NewRegistry("chat_thread",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("subject_key", 255, field.WithRequired(true), field.WithUnique(true)),
		field.Boolean("closed", field.WithDefault(false)),
	)
}

// ChatMessageFields declares the chat_message table: every message belongs
// to a thread and was sent by a user.
func ChatMessageFields() *field.Registry {
	return field.NewRegistry("chat_message",
		field.Integer("id", field.WithPrimaryKey()),
		field.Many2one("thread", "chat_thread", "thread_id", field.WithRelationNull(false)),
		field.Many2one("sender", "user", "sender_id"),
		field.Text("body", field.WithRequired(true)),
		field.Datetime("sent_at"),
	)
}

// ChatThreads wraps the chat_thread table with the race-free lookup two
// concurrent first messages on the same subject both need, so neither
// request creates a duplicate thread.
type ChatThreads struct {
	Dialect dialect.Dialect
}

// NewChatThreads pairs the resolution helper with the dialect its SQL is
// rendered for.
func NewChatThreads(d dialect.Dialect) *ChatThreads {
	return &ChatThreads{Dialect: d}
}

// FindOrCreateThread returns the chat_thread row for subjectKey, creating
// it if this is the first message on that subject. tx must already be in
// a transaction: GetOrCreateRow's SELECT ... FOR UPDATE SKIP LOCKED only
// prevents the race between concurrent transactions.
func (t *ChatThreads) FindOrCreateThread(ctx context.Context, tx *session.TransactionalSession, subjectKey string) (map[string]any, error) {
	return session.GetOrCreateRow(ctx, tx, t.Dialect, "chat_thread", "subject_key", subjectKey, map[string]any{
		"closed": false,
	})
}
