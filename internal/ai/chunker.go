package ai

import (
	"strings"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 100000

// ChunkOptions configures how a table is split into chunks.
type ChunkOptions struct {
	MaxChunkSize int
	// MaxRows caps the rows per chunk; zero means no cap.
	MaxRows int
}

// ChunkTable renders a table as tab separated text split into chunks that
// fit a model's input limit. Chunks break only between rows, and every chunk
// starts with the header line so it can be read on its own. A single row
// longer than the limit becomes a chunk of its own.
func ChunkTable(headers []string, rows [][]string, opts ChunkOptions) []string {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultChunkSize
	}

	header := strings.Join(headers, "\t") + "\n"
	if len(rows) == 0 {
		return []string{header}
	}

	var (
		chunks []string
		b      strings.Builder
		count  int
	)
	flush := func() {
		if count > 0 {
			chunks = append(chunks, b.String())
		}
		b.Reset()
		count = 0
	}

	for _, row := range rows {
		line := strings.Join(row, "\t") + "\n"
		full := opts.MaxRows > 0 && count >= opts.MaxRows
		if count > 0 && (full || b.Len()+len(line) > opts.MaxChunkSize) {
			flush()
		}
		if count == 0 {
			b.WriteString(header)
		}
		b.WriteString(line)
		count++
	}
	flush()

	return chunks
}
