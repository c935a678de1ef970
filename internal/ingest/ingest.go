// Package ingest turns uploaded documents into partition chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/k0luchiy/LumeNote/internal/partition"
)

// Chunking bounds. Boundaries are not stable across re-ingestion of the same
// document; re-adding duplicates chunks.
const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// ErrUnsupportedType is returned for file types outside pdf/txt/md. Callers
// reject such uploads before any job is enqueued.
var ErrUnsupportedType = errors.New("unsupported file type")

// SupportedTypes lists the accepted file extensions, for user-facing messages.
var SupportedTypes = []string{"pdf", "txt", "md"}

// SupportedType reports whether a declared file extension is ingestible.
func SupportedType(fileType string) bool {
	switch strings.ToLower(fileType) {
	case "pdf", "txt", "md":
		return true
	}
	return false
}

// FileTypeOf extracts the lowercase extension from a declared file name.
func FileTypeOf(fileName string) string {
	idx := strings.LastIndexByte(fileName, '.')
	if idx < 0 || idx == len(fileName)-1 {
		return ""
	}
	return strings.ToLower(fileName[idx+1:])
}

// LoadFile reads a document from disk by its declared type and splits it into
// bounded, overlapping chunks tagged with the given source and title.
func LoadFile(ctx context.Context, path, fileType, source, title string) ([]partition.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var loader documentloaders.Loader
	switch strings.ToLower(fileType) {
	case "pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		loader = documentloaders.NewPDF(f, info.Size())
	case "txt", "md":
		loader = documentloaders.NewText(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
	)

	docs, err := loader.LoadAndSplit(ctx, splitter)
	if err != nil {
		return nil, fmt.Errorf("loading %s document: %w", fileType, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document %s produced no content", source)
	}

	chunks := make([]partition.Chunk, 0, len(docs))
	for _, doc := range docs {
		text := strings.TrimSpace(doc.PageContent)
		if text == "" {
			continue
		}
		chunks = append(chunks, partition.Chunk{
			Text:   text,
			Source: source,
			Title:  title,
		})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s produced no content", source)
	}
	return chunks, nil
}

// SplitText chunks an in-memory text (discovered web sources) the same way
// LoadFile chunks files.
func SplitText(text, source, title string) ([]partition.Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
	)

	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text from %s: %w", source, err)
	}

	chunks := make([]partition.Chunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, partition.Chunk{Text: p, Source: source, Title: title})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("source %s produced no content", source)
	}
	return chunks, nil
}
