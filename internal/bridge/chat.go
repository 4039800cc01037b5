package bridge

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNotAThread is returned when the chat platform resolves the id to a
// plain channel instead of a thread.
var ErrNotAThread = errors.New("bridge: channel is not a thread")

// Thread is the chat-side conversation handle.
type Thread struct {
	ID       string
	ParentID string
	Name     string
	IsThread bool
}

// ChatPlatform is the narrow capability handle the bridge needs from the
// chat client. The real client is injected at wiring time; handlers never
// reach for a global.
type ChatPlatform interface {
	FetchThread(ctx context.Context, threadID string) (*Thread, error)
	SendMessage(ctx context.Context, threadID, content string) error
	AddMember(ctx context.Context, threadID, userID string) error
}

// LogOnlyChat is a stand-in used when no chat client is configured: every
// action is logged and succeeds. Useful for local runs and soak tests of
// the consumer pipeline.
type LogOnlyChat struct{}

func (LogOnlyChat) FetchThread(_ context.Context, threadID string) (*Thread, error) {
	log.Debug().Str("thread_id", threadID).Msg("log-only chat: fetch thread")
	return &Thread{ID: threadID, IsThread: true}, nil
}

func (LogOnlyChat) SendMessage(_ context.Context, threadID, content string) error {
	log.Info().Str("thread_id", threadID).Int("content_len", len(content)).Msg("log-only chat: send message")
	return nil
}

func (LogOnlyChat) AddMember(_ context.Context, threadID, userID string) error {
	log.Info().Str("thread_id", threadID).Str("user_id", userID).Msg("log-only chat: add member")
	return nil
}
