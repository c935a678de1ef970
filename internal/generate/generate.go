// Package generate wraps the external text-generation service.
//
// The core treats generation as an opaque collaborator: a context block plus
// an instruction goes in, text comes out. The Gemini implementation lives
// here; job bodies only see the Generator interface.
package generate

import "context"

// Generator produces text from retrieved context.
type Generator interface {
	// Answer answers a question from the context chunks, in the given
	// language.
	Answer(ctx context.Context, question string, contexts []string, language string) (string, error)

	// DigestScript writes a short two-speaker spoken-digest script about
	// the topic from the context chunks.
	DigestScript(ctx context.Context, topic string, contexts []string, language string) (string, error)

	// GraphDescription produces a DOT directed-graph description of the
	// topic's key concepts. Output is raw model text; callers sanity-check
	// and unfence it before rendering.
	GraphDescription(ctx context.Context, topic string, contexts []string, language string) (string, error)
}
