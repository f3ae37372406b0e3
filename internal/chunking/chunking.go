// Package chunking splits document text into fixed windows of code points.
package chunking

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/google/uuid"
)

// DefaultWindowSize is the number of code points per chunk.
const DefaultWindowSize = 500

// maxControlRatio is the share of control runes above which text is treated
// as binary content rather than prose.
const maxControlRatio = 0.1

var chunkNamespace = uuid.MustParse("6f1c7c1e-3a52-4c1b-9a43-5c2d7d0e8b11")

// Split cuts text into windows of at most window code points, with no
// overlap. The last window may be shorter. Joining the windows in order
// gives back text exactly. Empty text yields no windows.
func Split(text string, window int) []string {
	if text == "" {
		return nil
	}
	if window <= 0 {
		window = DefaultWindowSize
	}

	chunks := make([]string, 0, utf8.RuneCountInString(text)/window+1)
	start, count := 0, 0
	for i := range text {
		if count == window {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	chunks = append(chunks, text[start:])

	return chunks
}

// BuildChunks splits the document and assigns each window a stable ID
// derived from the owner, the document ID and its sequence index, so
// re-indexing the same document produces the same chunk IDs.
func BuildChunks(doc *domain.Document, window int) []domain.Chunk {
	parts := Split(doc.RawText, window)
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, text := range parts {
		chunks = append(chunks, domain.Chunk{
			ID:            ChunkID(doc.OwnerID, doc.ID, i),
			DocumentID:    doc.ID,
			OwnerID:       doc.OwnerID,
			SequenceIndex: i,
			Text:          text,
		})
	}
	return chunks
}

// ChunkID returns the deterministic ID of a document's i-th chunk. Document
// IDs are only unique per owner, so the owner is part of the name.
func ChunkID(ownerID, documentID string, sequenceIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%s:%d", ownerID, documentID, sequenceIndex))).String()
}

// ValidateText rejects content that is not text: invalid UTF-8, NUL bytes,
// or a high share of control characters.
func ValidateText(text string) error {
	if !utf8.ValidString(text) {
		return domain.ErrInvalidInput.Wrap(fmt.Errorf("text is not valid UTF-8"))
	}

	var total, control int
	for _, r := range text {
		total++
		if r == 0 {
			return domain.ErrInvalidInput.Wrap(fmt.Errorf("text contains NUL bytes"))
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			control++
		}
	}
	if total > 0 && float64(control)/float64(total) > maxControlRatio {
		return domain.ErrInvalidInput.Wrap(fmt.Errorf("text looks like binary content (%d of %d runes are control characters)", control, total))
	}

	return nil
}
