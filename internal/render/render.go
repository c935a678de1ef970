// Package render turns DOT graph descriptions into images.
//
// Rendering itself is an external collaborator (graphviz); this package adds
// the structural sanity check that stands between model output and the
// renderer: a description that is not a DOT digraph is rejected before any
// artifact is produced.
package render

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrInvalidGraph is returned when generated output is not a DOT digraph.
var ErrInvalidGraph = errors.New("generated output is not a valid DOT graph")

// Renderer renders a validated DOT description to an image file.
type Renderer interface {
	// RenderPNG writes the graph as a PNG at outPath.
	RenderPNG(ctx context.Context, dot string, outPath string) error
}

// Unfence extracts DOT source from model output, stripping a surrounding
// ```dot ... ``` (or plain ```) code fence when present.
func Unfence(s string) string {
	s = strings.TrimSpace(s)

	for _, fence := range []string{"```dot", "```"} {
		if rest, ok := strings.CutPrefix(s, fence); ok {
			if body, _, found := strings.Cut(rest, "```"); found {
				return strings.TrimSpace(body)
			}
			return strings.TrimSpace(rest)
		}
	}

	// Fenced block somewhere inside surrounding prose.
	if _, rest, ok := strings.Cut(s, "```dot"); ok {
		if body, _, found := strings.Cut(rest, "```"); found {
			return strings.TrimSpace(body)
		}
	}

	return s
}

// Validate checks the structural sanity of a DOT description.
func Validate(dot string) error {
	if !strings.HasPrefix(strings.TrimSpace(dot), "digraph") {
		return ErrInvalidGraph
	}
	return nil
}

// Graphviz renders via the graphviz `dot` binary.
type Graphviz struct {
	// Binary is the dot executable. Default "dot".
	Binary string
}

var _ Renderer = (*Graphviz)(nil)

// NewGraphviz creates a renderer using the dot binary on PATH.
func NewGraphviz() *Graphviz {
	return &Graphviz{Binary: "dot"}
}

// RenderPNG implements Renderer. The DOT source is validated again here so a
// renderer can never be handed arbitrary text.
func (g *Graphviz) RenderPNG(ctx context.Context, dot string, outPath string) error {
	if err := Validate(dot); err != nil {
		return err
	}

	bin := g.Binary
	if bin == "" {
		bin = "dot"
	}

	cmd := exec.CommandContext(ctx, bin, "-Tpng", "-o", outPath)
	cmd.Stdin = strings.NewReader(dot)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("graphviz render failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
