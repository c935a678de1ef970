// Package bot is the interactive process: it turns chat messages into
// preference changes and job envelopes.
//
// Handlers never do heavy work inline. Anything touching documents, models or
// external services becomes an envelope on the queue; the only synchronous
// answers are preference reads and writes, validation rejections and the
// acknowledgement that a job was accepted.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/k0luchiy/LumeNote/internal/generate"
	"github.com/k0luchiy/LumeNote/internal/ingest"
	"github.com/k0luchiy/LumeNote/internal/job"
	"github.com/k0luchiy/LumeNote/internal/namespace"
	"github.com/k0luchiy/LumeNote/internal/prefs"
	"github.com/k0luchiy/LumeNote/internal/telegram"
)

// Transport is the chat surface the bot runs on. *telegram.Client satisfies
// it; tests use a fake.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendText(ctx context.Context, chatID int64, text string) error
	DownloadFile(ctx context.Context, fileID, dir, fileName string) (string, error)
}

// Enqueuer accepts job envelopes. *job.Queue satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, env *job.Envelope) (string, error)
}

// ProjectLister reports a user's existing projects.
type ProjectLister interface {
	ListProjects(ctx context.Context, userID int64) []string
}

// maxUploadBytes rejects oversized documents before download.
const maxUploadBytes = 20 << 20

// Config carries the bot's collaborators.
type Config struct {
	Transport Transport
	Queue     Enqueuer
	Prefs     prefs.Store
	Projects  ProjectLister
	Logger    *zap.Logger

	// UploadDir stages downloaded documents until the ingestion job consumes
	// them. Must be reachable by the worker process.
	UploadDir string

	// PollTimeout bounds one getUpdates long poll.
	PollTimeout time.Duration
}

// Bot is the interactive update loop.
type Bot struct {
	transport   Transport
	queue       Enqueuer
	prefs       prefs.Store
	projects    ProjectLister
	logger      *zap.Logger
	uploadDir   string
	pollTimeout time.Duration
}

// New creates a bot.
func New(cfg Config) (*Bot, error) {
	switch {
	case cfg.Transport == nil:
		return nil, fmt.Errorf("bot: transport is required")
	case cfg.Queue == nil:
		return nil, fmt.Errorf("bot: queue is required")
	case cfg.Prefs == nil:
		return nil, fmt.Errorf("bot: preference store is required")
	case cfg.Projects == nil:
		return nil, fmt.Errorf("bot: project lister is required")
	case cfg.UploadDir == "":
		return nil, fmt.Errorf("bot: upload directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		return nil, fmt.Errorf("bot: creating upload directory: %w", err)
	}
	return &Bot{
		transport:   cfg.Transport,
		queue:       cfg.Queue,
		prefs:       cfg.Prefs,
		projects:    cfg.Projects,
		logger:      cfg.Logger,
		uploadDir:   cfg.UploadDir,
		pollTimeout: cfg.PollTimeout,
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := b.transport.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("polling updates failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			b.HandleMessage(ctx, u.Message)
		}
	}
}

// HandleMessage dispatches one incoming message.
func (b *Bot) HandleMessage(ctx context.Context, m *telegram.Message) {
	switch {
	case m.Document != nil:
		b.handleUpload(ctx, m)
	case strings.HasPrefix(m.Text, "/"):
		b.handleCommand(ctx, m)
	case strings.TrimSpace(m.Text) != "":
		b.handleQuestion(ctx, m)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.transport.SendText(ctx, chatID, text); err != nil {
		b.logger.Error("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *telegram.Message) {
	cmd, args, _ := strings.Cut(m.Text, " ")
	// Strip the @botname suffix of group commands.
	cmd, _, _ = strings.Cut(cmd, "@")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/start":
		b.reply(ctx, m.Chat.ID, startMessage)
	case "/help":
		b.reply(ctx, m.Chat.ID, helpMessage)
	case "/status":
		b.handleStatus(ctx, m)
	case "/newproject":
		b.handleNewProject(ctx, m, args)
	case "/listprojects":
		b.handleListProjects(ctx, m)
	case "/switchproject":
		b.handleSwitchProject(ctx, m, args)
	case "/lang":
		b.handleLanguage(ctx, m, args)
	case "/discover":
		b.handleDiscover(ctx, m, args)
	case "/addsource":
		b.handleAddSource(ctx, m, args)
	case "/podcast":
		b.handleTopicJob(ctx, m, args, job.KindAudioDigest,
			"Generating your audio digest, this can take a few minutes...")
	case "/mindmap":
		b.handleTopicJob(ctx, m, args, job.KindConceptGraph,
			"Drawing your mind map, one moment...")
	default:
		b.reply(ctx, m.Chat.ID, "Unknown command. Send /help to see what I can do.")
	}
}

func (b *Bot) handleStatus(ctx context.Context, m *telegram.Message) {
	rec := b.prefs.Get(ctx, m.From.ID)
	b.reply(ctx, m.Chat.ID, fmt.Sprintf(
		"Active project: %s\nLanguage: %s\nSend /listprojects to see all your projects.",
		rec.ActiveProject, generate.LanguageName(rec.Language)))
}

func (b *Bot) handleNewProject(ctx context.Context, m *telegram.Message, name string) {
	slug := namespace.Slug(name)
	if slug == "" {
		b.reply(ctx, m.Chat.ID, "Please give the project a name: /newproject Biology Notes")
		return
	}

	// The project name doubles as the initial research topic, so /podcast and
	// /mindmap work without arguments right after creation.
	if err := b.prefs.Set(ctx, m.From.ID, prefs.Update{
		ActiveProject: prefs.String(slug),
		MainTopic:     prefs.String(name),
	}); err != nil {
		b.logger.Error("saving active project failed", zap.Int64("user_id", m.From.ID), zap.Error(err))
		b.reply(ctx, m.Chat.ID, "Sorry, I couldn't save that. Please try again.")
		return
	}

	b.reply(ctx, m.Chat.ID, fmt.Sprintf(
		"Project %q is now active. Upload documents or use /discover to fill it.", slug))
}

func (b *Bot) handleListProjects(ctx context.Context, m *telegram.Message) {
	projects := b.projects.ListProjects(ctx, m.From.ID)
	if len(projects) == 0 {
		b.reply(ctx, m.Chat.ID, "You have no projects yet. Create one with /newproject <name>.")
		return
	}

	rec := b.prefs.Get(ctx, m.From.ID)
	var sb strings.Builder
	sb.WriteString("Your projects:\n")
	for _, p := range projects {
		if p == rec.ActiveProject {
			fmt.Fprintf(&sb, "- %s (active)\n", p)
		} else {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	b.reply(ctx, m.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) handleSwitchProject(ctx context.Context, m *telegram.Message, name string) {
	slug := namespace.Slug(name)
	if slug == "" {
		b.reply(ctx, m.Chat.ID, "Which project? /switchproject <name>")
		return
	}

	known := false
	for _, p := range b.projects.ListProjects(ctx, m.From.ID) {
		if p == slug {
			known = true
			break
		}
	}
	if !known && slug != prefs.NoProject {
		b.reply(ctx, m.Chat.ID, fmt.Sprintf(
			"No project named %q. Send /listprojects to see your projects or /newproject to create one.", slug))
		return
	}

	if err := b.prefs.Set(ctx, m.From.ID, prefs.Update{ActiveProject: prefs.String(slug)}); err != nil {
		b.logger.Error("switching project failed", zap.Int64("user_id", m.From.ID), zap.Error(err))
		b.reply(ctx, m.Chat.ID, "Sorry, I couldn't switch projects. Please try again.")
		return
	}
	b.reply(ctx, m.Chat.ID, fmt.Sprintf("Switched to project %q.", slug))
}

func (b *Bot) handleLanguage(ctx context.Context, m *telegram.Message, code string) {
	code = strings.ToLower(code)
	if !generate.SupportedLanguage(code) {
		b.reply(ctx, m.Chat.ID, fmt.Sprintf(
			"I can speak: %s. Example: /lang ru", strings.Join(generate.SupportedCodes(), ", ")))
		return
	}

	if err := b.prefs.Set(ctx, m.From.ID, prefs.Update{Language: prefs.String(code)}); err != nil {
		b.logger.Error("saving language failed", zap.Int64("user_id", m.From.ID), zap.Error(err))
		b.reply(ctx, m.Chat.ID, "Sorry, I couldn't save that. Please try again.")
		return
	}
	b.reply(ctx, m.Chat.ID, fmt.Sprintf("I'll reply in %s from now on.", generate.LanguageName(code)))
}

func (b *Bot) handleDiscover(ctx context.Context, m *telegram.Message, topic string) {
	if topic == "" {
		b.reply(ctx, m.Chat.ID, "What should I research? /discover photosynthesis")
		return
	}

	rec, ok := b.requireProject(ctx, m)
	if !ok {
		return
	}
	if err := b.prefs.Set(ctx, m.From.ID, prefs.Update{MainTopic: prefs.String(topic)}); err != nil {
		b.logger.Warn("saving main topic failed", zap.Int64("user_id", m.From.ID), zap.Error(err))
	}

	b.enqueue(ctx, m, rec, &job.Envelope{
		Kind:    job.KindIngestDiscovered,
		Payload: job.Payload{Topic: topic},
	}, fmt.Sprintf("Researching %q, I'll let you know when the sources are in.", topic))
}

func (b *Bot) handleAddSource(ctx context.Context, m *telegram.Message, rawURL string) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		b.reply(ctx, m.Chat.ID, "Please give me a full link: /addsource https://example.com/article")
		return
	}

	rec, ok := b.requireProject(ctx, m)
	if !ok {
		return
	}
	b.enqueue(ctx, m, rec, &job.Envelope{
		Kind:    job.KindIngestDiscovered,
		Payload: job.Payload{Topic: rawURL},
	}, "Fetching that page, I'll add it to your project shortly.")
}

func (b *Bot) handleTopicJob(ctx context.Context, m *telegram.Message, topic string, kind job.Kind, ack string) {
	rec, ok := b.requireProject(ctx, m)
	if !ok {
		return
	}
	if topic == "" {
		topic = rec.MainTopic
	}
	if topic == "" {
		b.reply(ctx, m.Chat.ID, "What topic? Add it to the command, e.g. /podcast photosynthesis")
		return
	}

	b.enqueue(ctx, m, rec, &job.Envelope{
		Kind:    kind,
		Payload: job.Payload{Topic: topic},
	}, ack)
}

func (b *Bot) handleQuestion(ctx context.Context, m *telegram.Message) {
	rec, ok := b.requireProject(ctx, m)
	if !ok {
		return
	}
	b.enqueue(ctx, m, rec, &job.Envelope{
		Kind:    job.KindAnswerQuestion,
		Payload: job.Payload{Question: strings.TrimSpace(m.Text)},
	}, "")
}

// handleUpload validates and stages a document, then enqueues its ingestion.
// Unsupported or oversized files are rejected here, before anything is
// downloaded or queued.
func (b *Bot) handleUpload(ctx context.Context, m *telegram.Message) {
	doc := m.Document

	fileType := ingest.FileTypeOf(doc.FileName)
	if !ingest.SupportedType(fileType) {
		b.reply(ctx, m.Chat.ID, fmt.Sprintf(
			"I can only read %s files. %q isn't one of those.",
			strings.Join(ingest.SupportedTypes, ", "), doc.FileName))
		return
	}
	if doc.FileSize > maxUploadBytes {
		b.reply(ctx, m.Chat.ID, "That file is too large. Please keep uploads under 20 MB.")
		return
	}

	rec, ok := b.requireProject(ctx, m)
	if !ok {
		return
	}

	path, err := b.transport.DownloadFile(ctx, doc.FileID, b.uploadDir, doc.FileName)
	if err != nil {
		b.logger.Error("staging upload failed",
			zap.Int64("user_id", m.From.ID),
			zap.String("file", doc.FileName),
			zap.Error(err),
		)
		b.reply(ctx, m.Chat.ID, "Sorry, I couldn't download that file. Please try again.")
		return
	}

	b.enqueue(ctx, m, rec, &job.Envelope{
		Kind: job.KindIngestDocument,
		Payload: job.Payload{
			FilePath: path,
			FileType: fileType,
			FileName: doc.FileName,
		},
	}, fmt.Sprintf("Got %q, adding it to project %q...", doc.FileName, rec.ActiveProject))
}

// requireProject loads the user's record and checks that a real project is
// active. Uploads, questions and generation all write to or read from a
// partition, so without a chosen project they are rejected here instead of
// silently landing in the "default" sentinel.
func (b *Bot) requireProject(ctx context.Context, m *telegram.Message) (prefs.Record, bool) {
	rec := b.prefs.Get(ctx, m.From.ID)
	if !rec.HasProject() {
		b.reply(ctx, m.Chat.ID, "You don't have a project yet. Create one first: /newproject <name>")
		return rec, false
	}
	return rec, true
}

// enqueue stamps the envelope with the chat, user and current preferences,
// publishes it and sends the acknowledgement.
func (b *Bot) enqueue(ctx context.Context, m *telegram.Message, rec prefs.Record, env *job.Envelope, ack string) {
	env.ChatID = m.Chat.ID
	env.UserID = m.From.ID
	env.Project = rec.ActiveProject
	env.Language = rec.Language

	if _, err := b.queue.Enqueue(ctx, env); err != nil {
		b.logger.Error("enqueue failed",
			zap.String("kind", string(env.Kind)),
			zap.Int64("user_id", env.UserID),
			zap.Error(err),
		)
		if errors.Is(err, job.ErrInvalidEnvelope) {
			b.reply(ctx, m.Chat.ID, "I couldn't make sense of that request.")
			return
		}
		b.reply(ctx, m.Chat.ID, "Sorry, I couldn't queue that right now. Please try again in a moment.")
		return
	}

	if ack != "" {
		b.reply(ctx, m.Chat.ID, ack)
	}
}

const startMessage = `Hi! I'm your notebook assistant.

Upload pdf, txt or md documents and I'll remember them. Then:
- ask me anything about them in plain text
- /podcast <topic> for a spoken digest
- /mindmap <topic> for a concept map

Send /help for the full command list.`

const helpMessage = `Commands:
/newproject <name> - create a project and make it active
/listprojects - list your projects
/switchproject <name> - change the active project
/status - show active project and language
/lang <en|ru|de> - set my reply language
/discover <topic> - research a topic and add sources
/addsource <url> - add one web page as a source
/podcast [topic] - generate an audio digest
/mindmap [topic] - generate a concept map

Upload a pdf, txt or md file to add it to the active project.
Any other message is treated as a question about your documents.`
