// Package worker executes job envelopes pulled from the durable queue.
//
// The pool runs one durable consumer per job kind with a configurable number
// of parallel slots. Every envelope produces exactly one chat notification:
// the body delivers the result on success, the pool delivers a failure notice
// on error. Acknowledgement happens after the body finishes either way, so a
// handled failure is terminal and never redelivered.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/k0luchiy/LumeNote/internal/discover"
	"github.com/k0luchiy/LumeNote/internal/generate"
	"github.com/k0luchiy/LumeNote/internal/ingest"
	"github.com/k0luchiy/LumeNote/internal/job"
	"github.com/k0luchiy/LumeNote/internal/notify"
	"github.com/k0luchiy/LumeNote/internal/partition"
	"github.com/k0luchiy/LumeNote/internal/render"
	"github.com/k0luchiy/LumeNote/internal/speech"
)

// fetchWait bounds one idle pull from the broker.
const fetchWait = 2 * time.Second

// PartitionStore is the slice of the partition service job bodies need.
type PartitionStore interface {
	Add(ctx context.Context, userID int64, project string, chunks []partition.Chunk) (int, error)
	Retrieve(ctx context.Context, userID int64, project string, query string, k int) ([]partition.Chunk, error)
}

// PageFetcher retrieves one web page as a plain-text source.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (discover.Source, error)
}

// Config carries the worker pool's collaborators.
type Config struct {
	Queue       *job.Queue
	Partitions  PartitionStore
	Generator   generate.Generator
	Synthesizer speech.Synthesizer
	Renderer    render.Renderer
	Searcher    discover.Searcher
	Fetcher     PageFetcher
	Notifier    *notify.Notifier
	Logger      *zap.Logger

	// Policies overrides the per-kind execution policy. Missing kinds fall
	// back to DefaultPolicies.
	Policies map[job.Kind]job.Policy

	// TempDir is where generated artifacts are staged. Default os.TempDir().
	TempDir string
}

// DefaultPolicies returns the per-kind execution policy the pool ships with.
// Timeouts bound the slowest external call in each body; every kind stays at
// MaxDeliver 1 because bodies report their own failures.
func DefaultPolicies() map[job.Kind]job.Policy {
	return map[job.Kind]job.Policy{
		job.KindIngestDocument:   {Timeout: 5 * time.Minute},
		job.KindIngestDiscovered: {Timeout: 10 * time.Minute},
		job.KindAnswerQuestion:   {Timeout: 2 * time.Minute},
		job.KindAudioDigest:      {Timeout: 10 * time.Minute},
		job.KindConceptGraph:     {Timeout: 5 * time.Minute},
	}
}

// Worker is the job execution pool.
type Worker struct {
	queue       *job.Queue
	partitions  PartitionStore
	generator   generate.Generator
	synthesizer speech.Synthesizer
	renderer    render.Renderer
	searcher    discover.Searcher
	fetcher     PageFetcher
	notifier    *notify.Notifier
	logger      *zap.Logger
	policies    map[job.Kind]job.Policy
	tempDir     string
}

// New creates a worker pool. All collaborators except Fetcher and Searcher
// are required; kinds whose collaborator is missing fail their jobs cleanly.
func New(cfg Config) (*Worker, error) {
	switch {
	case cfg.Queue == nil:
		return nil, fmt.Errorf("worker: queue is required")
	case cfg.Partitions == nil:
		return nil, fmt.Errorf("worker: partition store is required")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("worker: generator is required")
	case cfg.Notifier == nil:
		return nil, fmt.Errorf("worker: notifier is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	// Per-field merge so a partial override keeps the defaults it left unset.
	policies := DefaultPolicies()
	for kind, p := range cfg.Policies {
		base := policies[kind]
		if p.MaxDeliver != 0 {
			base.MaxDeliver = p.MaxDeliver
		}
		if p.AckWait != 0 {
			base.AckWait = p.AckWait
		}
		if p.Timeout != 0 {
			base.Timeout = p.Timeout
		}
		if p.Slots != 0 {
			base.Slots = p.Slots
		}
		policies[kind] = base
	}

	return &Worker{
		queue:       cfg.Queue,
		partitions:  cfg.Partitions,
		generator:   cfg.Generator,
		synthesizer: cfg.Synthesizer,
		renderer:    cfg.Renderer,
		searcher:    cfg.Searcher,
		fetcher:     cfg.Fetcher,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		policies:    policies,
		tempDir:     cfg.TempDir,
	}, nil
}

func (w *Worker) policy(kind job.Kind) job.Policy {
	p := w.policies[kind]
	p.ApplyDefaults()
	return p
}

// Run starts the pool and blocks until ctx is cancelled. Envelopes in flight
// when shutdown begins finish their bodies before the pool returns.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, kind := range job.Kinds {
		policy := w.policy(kind)

		sub, err := w.queue.PullSubscribe(kind, policy)
		if err != nil {
			return err
		}

		w.logger.Info("worker slots started",
			zap.String("kind", string(kind)),
			zap.Int("slots", policy.Slots),
		)

		for i := 0; i < policy.Slots; i++ {
			g.Go(func() error {
				return w.consume(ctx, kind, sub)
			})
		}
	}

	return g.Wait()
}

// consume is one worker slot: pull, execute, ack, repeat.
func (w *Worker) consume(ctx context.Context, kind job.Kind, sub *nats.Subscription) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("fetch failed", zap.String("kind", string(kind)), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			env, err := job.Decode(msg.Data)
			if err != nil {
				// Undecodable envelopes can never execute; drop them.
				w.logger.Error("dropping undecodable envelope",
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
				_ = msg.Term()
				continue
			}

			w.process(ctx, env)

			if err := msg.AckSync(); err != nil {
				w.logger.Error("ack failed",
					zap.String("job_id", env.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// process runs one envelope under its kind's policy and delivers the failure
// notice when the body errors. Success notifications are the body's job.
func (w *Worker) process(parent context.Context, env *job.Envelope) {
	policy := w.policy(env.Kind)

	ctx := parent
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, policy.Timeout)
		defer cancel()
	}

	log := w.logger.With(
		zap.String("job_id", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.Int64("user_id", env.UserID),
		zap.String("project", env.Project),
	)
	log.Info("job started")

	start := time.Now()
	err := w.execute(ctx, env)
	jobDuration.WithLabelValues(string(env.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		jobsFailed.WithLabelValues(string(env.Kind)).Inc()
		log.Error("job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		w.notifier.Text(parent, env.ChatID,
			fmt.Sprintf("%s\n\nDetails: %v", failureMessage(env.Kind), err))
		return
	}

	jobsProcessed.WithLabelValues(string(env.Kind)).Inc()
	log.Info("job done", zap.Duration("took", time.Since(start)))
}

func (w *Worker) execute(ctx context.Context, env *job.Envelope) error {
	switch env.Kind {
	case job.KindIngestDocument:
		return w.ingestDocument(ctx, env)
	case job.KindIngestDiscovered:
		return w.ingestDiscovered(ctx, env)
	case job.KindAnswerQuestion:
		return w.answerQuestion(ctx, env)
	case job.KindAudioDigest:
		return w.audioDigest(ctx, env)
	case job.KindConceptGraph:
		return w.conceptGraph(ctx, env)
	default:
		return fmt.Errorf("%w: %q", job.ErrUnknownKind, env.Kind)
	}
}

// failureMessage is the user-facing apology for a failed kind; the error
// detail is appended to it on delivery.
func failureMessage(kind job.Kind) string {
	switch kind {
	case job.KindIngestDocument:
		return "Sorry, I couldn't process that document. Please check the file and try again."
	case job.KindIngestDiscovered:
		return "Sorry, I couldn't gather sources for that topic. Please try a different topic."
	case job.KindAnswerQuestion:
		return "Sorry, I couldn't answer that question right now. Please try again."
	case job.KindAudioDigest:
		return "Sorry, I couldn't generate the audio digest. Please try again."
	case job.KindConceptGraph:
		return "Sorry, I couldn't generate the mind map. Please try again."
	default:
		return "Sorry, something went wrong processing your request."
	}
}

// ingestDocument loads an uploaded file into the user's partition. The staged
// upload is removed whether or not ingestion succeeds.
func (w *Worker) ingestDocument(ctx context.Context, env *job.Envelope) error {
	defer func() {
		if err := os.Remove(env.Payload.FilePath); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("removing staged upload failed",
				zap.String("path", env.Payload.FilePath),
				zap.Error(err),
			)
		}
	}()

	name := env.Payload.FileName
	if name == "" {
		name = filepath.Base(env.Payload.FilePath)
	}

	chunks, err := ingest.LoadFile(ctx, env.Payload.FilePath, env.Payload.FileType, name, name)
	if err != nil {
		return err
	}

	n, err := w.partitions.Add(ctx, env.UserID, env.Project, chunks)
	if err != nil {
		return err
	}

	w.notifier.Text(ctx, env.ChatID,
		fmt.Sprintf("Added %q to project %q (%d chunks). You can ask questions about it now.", name, env.Project, n))
	return nil
}

// ingestDiscovered researches a topic and ingests the discovered sources. A
// topic that is itself a URL is ingested directly instead of searched.
func (w *Worker) ingestDiscovered(ctx context.Context, env *job.Envelope) error {
	topic := env.Payload.Topic

	var (
		sources []discover.Source
		err     error
	)
	if isURL(topic) {
		if w.fetcher == nil {
			return fmt.Errorf("page fetching is not configured")
		}
		var src discover.Source
		if src, err = w.fetcher.Fetch(ctx, topic); err != nil {
			return err
		}
		sources = []discover.Source{src}
	} else {
		if w.searcher == nil {
			return fmt.Errorf("source discovery is not configured")
		}
		if sources, err = w.searcher.Search(ctx, topic); err != nil {
			return err
		}
	}

	added, total := 0, 0
	for _, src := range sources {
		src := w.expand(ctx, src)

		chunks, err := ingest.SplitText(src.Content, src.URL, src.Title)
		if err != nil {
			w.logger.Warn("skipping source",
				zap.String("url", src.URL),
				zap.Error(err),
			)
			continue
		}

		n, err := w.partitions.Add(ctx, env.UserID, env.Project, chunks)
		if err != nil {
			return err
		}
		added++
		total += n
	}

	if added == 0 {
		return fmt.Errorf("no usable sources for %q", topic)
	}

	w.notifier.Text(ctx, env.ChatID,
		fmt.Sprintf("Added %d sources (%d chunks) about %q to project %q.", added, total, topic, env.Project))
	return nil
}

// expand replaces a search snippet with the full page text when the page is
// fetchable. Best-effort; the snippet stands in when fetching fails.
func (w *Worker) expand(ctx context.Context, src discover.Source) discover.Source {
	if w.fetcher == nil || src.URL == "" {
		return src
	}
	full, err := w.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		w.logger.Debug("falling back to search snippet",
			zap.String("url", src.URL),
			zap.Error(err),
		)
		return src
	}
	if full.Title == "" {
		full.Title = src.Title
	}
	return full
}

// answerQuestion retrieves context and delivers a generated answer. An empty
// partition is not an error; the generator answers from nothing.
func (w *Worker) answerQuestion(ctx context.Context, env *job.Envelope) error {
	chunks, err := w.partitions.Retrieve(ctx, env.UserID, env.Project, env.Payload.Question, partition.DefaultTopK)
	if err != nil {
		return err
	}

	answer, err := w.generator.Answer(ctx, env.Payload.Question, chunkTexts(chunks), env.Language)
	if err != nil {
		return err
	}

	w.notifier.Text(ctx, env.ChatID, answer)
	return nil
}

// audioDigest generates a spoken digest and delivers it as an audio file. The
// staged artifact is removed once delivery has been attempted.
func (w *Worker) audioDigest(ctx context.Context, env *job.Envelope) error {
	if w.synthesizer == nil {
		return fmt.Errorf("speech synthesis is not configured")
	}

	chunks, err := w.partitions.Retrieve(ctx, env.UserID, env.Project, env.Payload.Topic, partition.DefaultTopK)
	if err != nil {
		return err
	}

	script, err := w.generator.DigestScript(ctx, env.Payload.Topic, chunkTexts(chunks), env.Language)
	if err != nil {
		return err
	}

	audio, err := w.synthesizer.Synthesize(ctx, script, env.Language)
	if err != nil {
		return err
	}

	path := filepath.Join(w.tempDir, uuid.New().String()+".wav")
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return fmt.Errorf("staging audio artifact: %w", err)
	}
	defer w.removeArtifact(path)

	w.notifier.File(ctx, env.ChatID, path, notify.FileAudio,
		fmt.Sprintf("Audio digest: %s", env.Payload.Topic))
	return nil
}

// conceptGraph generates a DOT description, validates it, renders a PNG and
// delivers it. Invalid model output fails before any artifact exists.
func (w *Worker) conceptGraph(ctx context.Context, env *job.Envelope) error {
	if w.renderer == nil {
		return fmt.Errorf("graph rendering is not configured")
	}

	chunks, err := w.partitions.Retrieve(ctx, env.UserID, env.Project, env.Payload.Topic, partition.DefaultTopK)
	if err != nil {
		return err
	}

	desc, err := w.generator.GraphDescription(ctx, env.Payload.Topic, chunkTexts(chunks), env.Language)
	if err != nil {
		return err
	}

	dot := render.Unfence(desc)
	if err := render.Validate(dot); err != nil {
		return err
	}

	path := filepath.Join(w.tempDir, uuid.New().String()+".png")
	defer w.removeArtifact(path)

	if err := w.renderer.RenderPNG(ctx, dot, path); err != nil {
		return err
	}

	w.notifier.File(ctx, env.ChatID, path, notify.FilePhoto,
		fmt.Sprintf("Mind map: %s", env.Payload.Topic))
	return nil
}

func (w *Worker) removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("removing artifact failed", zap.String("path", path), zap.Error(err))
	}
}

func chunkTexts(chunks []partition.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
