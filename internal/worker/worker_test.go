package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0luchiy/LumeNote/internal/discover"
	"github.com/k0luchiy/LumeNote/internal/job"
	"github.com/k0luchiy/LumeNote/internal/notify"
	"github.com/k0luchiy/LumeNote/internal/partition"
)

// startTestNATSServer starts an embedded NATS server with JetStream.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

// fakePartitions is an in-memory PartitionStore.
type fakePartitions struct {
	mu      sync.Mutex
	chunks  map[string][]partition.Chunk
	addErr  error
	results []partition.Chunk
}

func newFakePartitions() *fakePartitions {
	return &fakePartitions{chunks: make(map[string][]partition.Chunk)}
}

func (f *fakePartitions) key(userID int64, project string) string {
	return fmt.Sprintf("%d/%s", userID, project)
}

func (f *fakePartitions) Add(_ context.Context, userID int64, project string, chunks []partition.Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return 0, f.addErr
	}
	k := f.key(userID, project)
	f.chunks[k] = append(f.chunks[k], chunks...)
	return len(chunks), nil
}

func (f *fakePartitions) Retrieve(_ context.Context, _ int64, _ string, _ string, _ int) ([]partition.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results, nil
}

func (f *fakePartitions) stored(userID int64, project string) []partition.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]partition.Chunk(nil), f.chunks[f.key(userID, project)]...)
}

// fakeGenerator returns canned text or a canned error.
type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	script   string
	graph    string
	err      error
	contexts []string
}

func (g *fakeGenerator) record(contexts []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contexts = append([]string(nil), contexts...)
}

func (g *fakeGenerator) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contexts
}

func (g *fakeGenerator) Answer(_ context.Context, _ string, contexts []string, _ string) (string, error) {
	g.record(contexts)
	return g.answer, g.err
}

func (g *fakeGenerator) DigestScript(_ context.Context, _ string, contexts []string, _ string) (string, error) {
	g.record(contexts)
	return g.script, g.err
}

func (g *fakeGenerator) GraphDescription(_ context.Context, _ string, contexts []string, _ string) (string, error) {
	g.record(contexts)
	return g.graph, g.err
}

// fakeSynthesizer returns fixed audio bytes.
type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (s *fakeSynthesizer) Synthesize(context.Context, string, string) ([]byte, error) {
	return s.audio, s.err
}

// fakeRenderer writes a marker file; records whether it ran.
type fakeRenderer struct {
	mu     sync.Mutex
	called bool
	err    error
}

func (r *fakeRenderer) RenderPNG(_ context.Context, _ string, outPath string) error {
	r.mu.Lock()
	r.called = true
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(outPath, []byte("png"), 0o600)
}

func (r *fakeRenderer) wasCalled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.called
}

// fakeSearcher returns canned sources.
type fakeSearcher struct {
	sources []discover.Source
	err     error
}

func (s *fakeSearcher) Search(context.Context, string) ([]discover.Source, error) {
	return s.sources, s.err
}

// delivery is one recorded chat notification.
type delivery struct {
	chatID  int64
	text    string
	path    string
	kind    notify.FileKind
	caption string
	// existed records whether the artifact was on disk at delivery time.
	existed bool
}

// recordingSender captures notifications for assertions.
type recordingSender struct {
	mu   sync.Mutex
	sent []delivery
}

func (s *recordingSender) SendText(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, delivery{chatID: chatID, text: text})
	return nil
}

func (s *recordingSender) SendFile(_ context.Context, chatID int64, kind notify.FileKind, path, caption string) error {
	_, statErr := os.Stat(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, delivery{
		chatID:  chatID,
		path:    path,
		kind:    kind,
		caption: caption,
		existed: statErr == nil,
	})
	return nil
}

func (s *recordingSender) deliveries() []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery(nil), s.sent...)
}

type testHarness struct {
	nc         *nats.Conn
	queue      *job.Queue
	partitions *fakePartitions
	// parts is what the worker actually uses; defaults to the fake, tests may
	// swap in a real partition service.
	parts     PartitionStore
	generator *fakeGenerator
	synth     *fakeSynthesizer
	renderer  *fakeRenderer
	searcher  *fakeSearcher
	sender    *recordingSender
	tempDir   string
}

// startWorker wires a pool over an embedded broker and runs it for the test's
// lifetime.
func startWorker(t *testing.T, configure func(*testHarness)) *testHarness {
	t.Helper()

	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	q, err := job.NewQueue(nc, nil)
	require.NoError(t, err)

	h := &testHarness{
		nc:         nc,
		queue:      q,
		partitions: newFakePartitions(),
		generator:  &fakeGenerator{answer: "an answer", script: "Speaker 1: hi", graph: "digraph G { a -> b; }"},
		synth:      &fakeSynthesizer{audio: []byte("RIFFwav")},
		renderer:   &fakeRenderer{},
		searcher:   &fakeSearcher{},
		sender:     &recordingSender{},
		tempDir:    t.TempDir(),
	}
	h.parts = h.partitions
	if configure != nil {
		configure(h)
	}

	w, err := New(Config{
		Queue:       h.queue,
		Partitions:  h.parts,
		Generator:   h.generator,
		Synthesizer: h.synth,
		Renderer:    h.renderer,
		Searcher:    h.searcher,
		Notifier:    notify.New(h.sender, nil),
		TempDir:     h.tempDir,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Log("worker did not stop in time")
		}
	})

	return h
}

func enqueue(t *testing.T, h *testHarness, env *job.Envelope) {
	t.Helper()
	_, err := h.queue.Enqueue(context.Background(), env)
	require.NoError(t, err)
}

func waitForDeliveries(t *testing.T, h *testHarness, n int) []delivery {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.sender.deliveries()) >= n
	}, 15*time.Second, 50*time.Millisecond)
	return h.sender.deliveries()
}

func TestIngestDocument(t *testing.T) {
	h := startWorker(t, nil)

	path := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("photosynthesis converts light. ", 20)), 0o600))

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindIngestDocument,
		ChatID:   100,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{FilePath: path, FileType: "txt", FileName: "notes.txt"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Contains(t, sent[0].text, `"notes.txt"`)
	assert.Contains(t, sent[0].text, "biology")
	assert.Equal(t, int64(100), sent[0].chatID)

	stored := h.partitions.stored(7, "biology")
	require.NotEmpty(t, stored)
	assert.Equal(t, "notes.txt", stored[0].Source)

	// Staged upload is cleaned up after ingestion.
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestIngestDocumentMissingFileReportsFailure(t *testing.T) {
	h := startWorker(t, nil)

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindIngestDocument,
		ChatID:   100,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{FilePath: "/nonexistent/upload.txt", FileType: "txt"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Contains(t, sent[0].text, "couldn't process that document")
	assert.Empty(t, h.partitions.stored(7, "biology"))
}

func TestAnswerQuestion(t *testing.T) {
	h := startWorker(t, func(h *testHarness) {
		h.partitions.results = []partition.Chunk{
			{Text: "chloroplasts capture light", Source: "notes.txt"},
		}
	})

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindAnswerQuestion,
		ChatID:   200,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{Question: "what captures light?"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Equal(t, "an answer", sent[0].text)
	assert.Equal(t, []string{"chloroplasts capture light"}, h.generator.seen())
}

func TestAnswerQuestionBeforeAnyIngestion(t *testing.T) {
	h := startWorker(t, nil)

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindAnswerQuestion,
		ChatID:   200,
		UserID:   7,
		Project:  "default",
		Language: "en",
		Payload:  job.Payload{Question: "anything there?"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Equal(t, "an answer", sent[0].text)
	assert.Empty(t, h.generator.seen())
}

func TestAnswerQuestionGeneratorFailure(t *testing.T) {
	h := startWorker(t, func(h *testHarness) {
		h.generator.err = errors.New("model unavailable")
	})

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindAnswerQuestion,
		ChatID:   200,
		UserID:   7,
		Project:  "default",
		Language: "en",
		Payload:  job.Payload{Question: "hello?"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Contains(t, sent[0].text, "couldn't answer")

	// Exactly one notification per envelope, even on failure.
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, h.sender.deliveries(), 1)
}

func TestAudioDigest(t *testing.T) {
	h := startWorker(t, nil)

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindAudioDigest,
		ChatID:   300,
		UserID:   7,
		Project:  "biology",
		Language: "ru",
		Payload:  job.Payload{Topic: "photosynthesis"},
	})

	sent := waitForDeliveries(t, h, 1)
	require.Equal(t, notify.FileAudio, sent[0].kind)
	assert.True(t, sent[0].existed, "artifact must exist at delivery time")
	assert.Contains(t, sent[0].caption, "photosynthesis")
	assert.True(t, strings.HasSuffix(sent[0].path, ".wav"))

	// Artifact is removed after delivery.
	require.Eventually(t, func() bool {
		_, err := os.Stat(sent[0].path)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConceptGraph(t *testing.T) {
	h := startWorker(t, func(h *testHarness) {
		h.generator.graph = "```dot\ndigraph G { light -> sugar; }\n```"
	})

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindConceptGraph,
		ChatID:   400,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{Topic: "photosynthesis"},
	})

	sent := waitForDeliveries(t, h, 1)
	require.Equal(t, notify.FilePhoto, sent[0].kind)
	assert.True(t, sent[0].existed)
	assert.True(t, h.renderer.wasCalled())

	require.Eventually(t, func() bool {
		_, err := os.Stat(sent[0].path)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConceptGraphInvalidModelOutput(t *testing.T) {
	h := startWorker(t, func(h *testHarness) {
		h.generator.graph = "Sorry, I can't draw graphs."
	})

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindConceptGraph,
		ChatID:   400,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{Topic: "photosynthesis"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Contains(t, sent[0].text, "couldn't generate the mind map")
	assert.False(t, h.renderer.wasCalled(), "invalid output must fail before rendering")

	// No stray artifacts left behind.
	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestDiscoveredSources(t *testing.T) {
	h := startWorker(t, func(h *testHarness) {
		h.searcher.sources = []discover.Source{
			{URL: "https://example.com/a", Title: "A", Content: strings.Repeat("light reactions. ", 10)},
			{URL: "https://example.com/b", Title: "B", Content: strings.Repeat("dark reactions. ", 10)},
		}
	})

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindIngestDiscovered,
		ChatID:   500,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{Topic: "photosynthesis"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Contains(t, sent[0].text, "Added 2 sources")

	stored := h.partitions.stored(7, "biology")
	require.NotEmpty(t, stored)
	sources := map[string]bool{}
	for _, c := range stored {
		sources[c.Source] = true
	}
	assert.True(t, sources["https://example.com/a"])
	assert.True(t, sources["https://example.com/b"])
}

func TestIngestDiscoveredSearchFailure(t *testing.T) {
	h := startWorker(t, func(h *testHarness) {
		h.searcher.err = discover.ErrNoSources
	})

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindIngestDiscovered,
		ChatID:   500,
		UserID:   7,
		Project:  "biology",
		Language: "en",
		Payload:  job.Payload{Topic: "nonsense topic"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Contains(t, sent[0].text, "couldn't gather sources")
}

func TestUndecodableEnvelopeIsDropped(t *testing.T) {
	h := startWorker(t, nil)

	// Garbage published straight to the subject, then a valid envelope behind
	// it. The pool must drop the garbage and still process the envelope.
	js, err := h.nc.JetStream()
	require.NoError(t, err)
	_, err = js.Publish(job.Subject(job.KindAnswerQuestion), []byte("{not json"))
	require.NoError(t, err)

	enqueue(t, h, &job.Envelope{
		Kind:     job.KindAnswerQuestion,
		ChatID:   600,
		UserID:   7,
		Project:  "default",
		Language: "en",
		Payload:  job.Payload{Question: "still alive?"},
	})

	sent := waitForDeliveries(t, h, 1)
	assert.Equal(t, "an answer", sent[0].text)
	assert.Equal(t, int64(600), sent[0].chatID)
}

func TestFailureMessagesCoverEveryKind(t *testing.T) {
	for _, kind := range job.Kinds {
		assert.NotEmpty(t, failureMessage(kind))
		assert.NotEqual(t, failureMessage("bogus"), failureMessage(kind))
	}
}

func TestNewValidatesRequiredCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
