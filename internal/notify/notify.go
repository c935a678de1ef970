// Package notify delivers job results back to the originating chat.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// FileKind selects how an artifact is presented in the chat.
type FileKind string

const (
	FileDocument FileKind = "document"
	FileAudio    FileKind = "audio"
	FilePhoto    FileKind = "photo"
)

// Sender is the chat transport collaborator. The core only needs these two
// calls; the transport's internals (API, formatting, retries) live behind it.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, kind FileKind, path, caption string) error
}

// Notifier wraps a Sender with the delivery contract job bodies rely on:
// delivery failures are logged, never propagated. Once the underlying work
// has succeeded, a chat outage must not turn the job into a failure; cleanup
// of temporary artifacts stays the job's responsibility either way.
type Notifier struct {
	sender Sender
	logger *zap.Logger
}

// New creates a Notifier.
func New(sender Sender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, logger: logger}
}

// Text delivers a message to the chat, best-effort.
func (n *Notifier) Text(ctx context.Context, chatID int64, message string) {
	if err := n.sender.SendText(ctx, chatID, message); err != nil {
		n.logger.Error("chat delivery failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

// File delivers an artifact to the chat, best-effort. The file at path must
// still exist when File is called; deleting it afterwards is the caller's job.
func (n *Notifier) File(ctx context.Context, chatID int64, path string, kind FileKind, caption string) {
	if err := n.sender.SendFile(ctx, chatID, kind, path, caption); err != nil {
		n.logger.Error("chat file delivery failed",
			zap.Int64("chat_id", chatID),
			zap.String("path", path),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
