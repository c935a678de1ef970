// Package job defines the background work envelope and the durable queue
// that carries it from the interactive process to the worker pool.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a unit of background work.
type Kind string

const (
	KindIngestDocument   Kind = "ingest-document"
	KindIngestDiscovered Kind = "ingest-discovered-sources"
	KindAnswerQuestion   Kind = "answer-question"
	KindAudioDigest      Kind = "generate-audio-digest"
	KindConceptGraph     Kind = "generate-concept-graph"
)

// Kinds lists every job kind, in a stable order.
var Kinds = []Kind{
	KindIngestDocument,
	KindIngestDiscovered,
	KindAnswerQuestion,
	KindAudioDigest,
	KindConceptGraph,
}

// Sentinel errors for envelope validation.
var (
	ErrUnknownKind     = errors.New("unknown job kind")
	ErrInvalidEnvelope = errors.New("invalid job envelope")
)

// Payload carries the kind-specific inputs. Exactly the fields a body needs;
// unused fields stay empty and are omitted on the wire.
type Payload struct {
	// FilePath is the worker-visible path of an uploaded document
	// (ingest-document).
	FilePath string `json:"file_path,omitempty"`

	// FileType is the declared extension: pdf, txt or md (ingest-document).
	FileType string `json:"file_type,omitempty"`

	// FileName is the original upload name, used as chunk source
	// (ingest-document).
	FileName string `json:"file_name,omitempty"`

	// Topic drives discovery and generation kinds.
	Topic string `json:"topic,omitempty"`

	// Question is the free-text question (answer-question).
	Question string `json:"question,omitempty"`
}

// Envelope is a self-contained description of one unit of background work.
//
// Envelopes are immutable once enqueued and carry everything needed to
// execute: the producer and the executing worker may be different processes,
// restarted in between.
type Envelope struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	ChatID   int64   `json:"chat_id"`
	UserID   int64   `json:"user_id"`
	Project  string  `json:"project_id"`
	Language string  `json:"language"`
	Payload  Payload `json:"payload"`
}

// Validate checks that the envelope is executable for its kind.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindIngestDocument:
		if e.Payload.FilePath == "" || e.Payload.FileType == "" {
			return fmt.Errorf("%w: ingest-document requires file_path and file_type", ErrInvalidEnvelope)
		}
	case KindIngestDiscovered:
		if e.Payload.Topic == "" {
			return fmt.Errorf("%w: ingest-discovered-sources requires topic", ErrInvalidEnvelope)
		}
	case KindAnswerQuestion:
		if e.Payload.Question == "" {
			return fmt.Errorf("%w: answer-question requires question", ErrInvalidEnvelope)
		}
	case KindAudioDigest, KindConceptGraph:
		if e.Payload.Topic == "" {
			return fmt.Errorf("%w: %s requires topic", ErrInvalidEnvelope, e.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	if e.ChatID == 0 {
		return fmt.Errorf("%w: chat_id is required", ErrInvalidEnvelope)
	}
	if e.UserID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEnvelope)
	}
	if e.Project == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidEnvelope)
	}
	return nil
}

// Encode marshals the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals an envelope from the wire.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return &e, nil
}
