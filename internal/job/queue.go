package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamName is the JetStream stream holding all job envelopes.
	StreamName = "LUMENOTE_JOBS"

	// subjectPrefix namespaces job subjects: jobs.<kind>.
	subjectPrefix = "jobs"
)

// Subject returns the broker subject for a job kind.
func Subject(kind Kind) string {
	return subjectPrefix + "." + string(kind)
}

// DurableName returns the per-kind durable consumer name shared by the
// worker pool. NATS durable names cannot contain dots.
func DurableName(kind Kind) string {
	return "workers-" + strings.ReplaceAll(string(kind), ".", "-")
}

// Policy is the explicit per-kind execution policy.
//
// The defaults encode the system's contract: a handled failure is terminal
// (the body reports it and the envelope is acked), so redelivery only matters
// for worker crashes. MaxDeliver 1 disables even that; kinds whose bodies are
// safe to re-run can raise it.
type Policy struct {
	// MaxDeliver is the broker's delivery cap for one envelope. 1 = never
	// redeliver.
	MaxDeliver int

	// AckWait is how long the broker waits for an ack before considering
	// the delivery lost.
	AckWait time.Duration

	// Timeout bounds one body execution. 0 = no deadline; a hung external
	// call then occupies the worker slot indefinitely.
	Timeout time.Duration

	// Slots is the number of parallel worker slots for the kind.
	Slots int
}

// ApplyDefaults fills unset policy fields.
func (p *Policy) ApplyDefaults() {
	if p.MaxDeliver == 0 {
		p.MaxDeliver = 1
	}
	if p.AckWait == 0 {
		p.AckWait = 5 * time.Minute
	}
	if p.Slots == 0 {
		p.Slots = 1
	}
}

// Queue is the durable job queue over NATS JetStream.
//
// Producers call Enqueue and return immediately; delivery to the worker pool
// is at-least-once from the broker's perspective (a crash between delivery
// and ack causes redelivery, subject to the kind's Policy).
type Queue struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewQueue creates the queue and ensures the underlying stream exists.
// Safe to call from both process roles; stream creation is idempotent.
func NewQueue(nc *nats.Conn, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("checking stream %s: %w", StreamName, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{subjectPrefix + ".>"},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("creating stream %s: %w", StreamName, err)
		}
		logger.Info("job stream created", zap.String("stream", StreamName))
	}

	return &Queue{js: js, logger: logger}, nil
}

// Enqueue validates and publishes an envelope, returning its ID. The ID is
// assigned here if the caller left it empty. Non-blocking beyond the publish
// round trip; the envelope is immutable once accepted.
func (q *Queue) Enqueue(ctx context.Context, env *Envelope) (string, error) {
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if err := env.Validate(); err != nil {
		return "", err
	}

	data, err := env.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}

	if _, err := q.js.Publish(Subject(env.Kind), data, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("publishing %s job: %w", env.Kind, err)
	}

	q.logger.Info("job enqueued",
		zap.String("job_id", env.ID),
		zap.String("kind", string(env.Kind)),
		zap.Int64("user_id", env.UserID),
		zap.String("project", env.Project),
	)

	return env.ID, nil
}

// PullSubscribe binds a durable pull consumer for one job kind, configured
// from the kind's Policy. Worker slots share the durable, so each envelope
// goes to exactly one slot.
func (q *Queue) PullSubscribe(kind Kind, policy Policy) (*nats.Subscription, error) {
	policy.ApplyDefaults()

	sub, err := q.js.PullSubscribe(Subject(kind), DurableName(kind),
		nats.BindStream(StreamName),
		nats.AckExplicit(),
		nats.AckWait(policy.AckWait),
		nats.MaxDeliver(policy.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s jobs: %w", kind, err)
	}
	return sub, nil
}
