package embedding

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	HashingModelName         = "hashing-v1"
	DefaultHashingDimensions = 1536

	trigramWeight = 0.5
)

// HashingModel is a deterministic, dependency-free embedding model based on
// the hashing trick. Word tokens and their character trigrams are hashed into
// signed buckets, which keeps related inflections of a word close in any
// script. It is meant for offline use and tests, not for semantic quality.
type HashingModel struct {
	dims int
}

// NewHashingModel creates a HashingModel with the given dimension.
func NewHashingModel(dims int) *HashingModel {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingModel{dims: dims}
}

// HashingLoader returns a Loader for a HashingModel.
func HashingLoader(dims int) Loader {
	return LoaderFunc(func(ctx context.Context) (Model, error) {
		return NewHashingModel(dims), nil
	})
}

func (m *HashingModel) Name() string    { return HashingModelName }
func (m *HashingModel) Dimensions() int { return m.dims }

func (m *HashingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *HashingModel) vector(text string) []float32 {
	v := make([]float32, m.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		// Punctuation-only text still gets a stable vector from its runes.
		for _, r := range text {
			if !unicode.IsSpace(r) {
				m.add(v, "r:"+string(r), 1)
			}
		}
		return v
	}
	for _, tok := range tokens {
		m.add(v, "w:"+tok, 1)
		runes := []rune(tok)
		if len(runes) < 3 {
			continue
		}
		for i := 0; i+3 <= len(runes); i++ {
			m.add(v, "t:"+string(runes[i:i+3]), trigramWeight)
		}
	}
	return v
}

func (m *HashingModel) add(v []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(m.dims)
	if h&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	})
	return fields
}

// String implements fmt.Stringer.
func (m *HashingModel) String() string {
	return fmt.Sprintf("%s(%d)", HashingModelName, m.dims)
}
