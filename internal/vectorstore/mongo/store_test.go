package mongo

import (
	"testing"
	"time"

	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSearchPipeline(t *testing.T) {
	q := []float32{0.6, 0.8}
	p := SearchPipeline("vector_index", "alice", q, 5, 150)
	require.Len(t, p, 2)

	stage := p[0].Map()
	vs, ok := stage["$vectorSearch"].(bson.D)
	require.True(t, ok)
	m := vs.Map()
	assert.Equal(t, "vector_index", m["index"])
	assert.Equal(t, "embedding", m["path"])
	assert.Equal(t, q, m["queryVector"])
	assert.Equal(t, 150, m["numCandidates"])
	assert.Equal(t, 5, m["limit"])
	assert.Equal(t, bson.D{{Key: "userId", Value: bson.D{{Key: "$eq", Value: "alice"}}}}, m["filter"])

	proj := p[1].Map()["$project"].(bson.D).Map()
	assert.NotContains(t, proj, "embedding")
	assert.Equal(t, bson.D{{Key: "$meta", Value: "vectorSearchScore"}}, proj["score"])
}

func TestSearchPipeline_CapsCandidates(t *testing.T) {
	p := SearchPipeline("idx", "alice", []float32{1}, 5, 50000)
	m := p[0].Map()["$vectorSearch"].(bson.D).Map()
	assert.Equal(t, maxCandidates, m["numCandidates"])
}

func TestDocumentRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 2, 8, 30, 0, 0, time.FixedZone("BDT", 6*3600))
	r := domain.Record{
		ChunkID:       "c1",
		OwnerID:       "alice",
		DocumentID:    "d1",
		SequenceIndex: 2,
		Text:          "সিলেটের চা বাগান",
		Vector:        []float32{1, 0},
		Title:         "Sylhet",
		CreatedAt:     created,
	}

	raw, err := bson.Marshal(fromRecord(r))
	require.NoError(t, err)

	var stored bson.M
	require.NoError(t, bson.Unmarshal(raw, &stored))
	assert.Equal(t, "c1", stored["_id"])
	assert.Equal(t, "alice", stored["userId"])
	assert.Equal(t, "d1", stored["pdfId"])
	assert.Equal(t, "সিলেটের চা বাগান", stored["textChunk"])
	assert.Contains(t, stored, "embedding")
	assert.Equal(t, "Sylhet", bson.Raw(raw).Lookup("metadata", "title").StringValue())

	var doc storyEmbedding
	require.NoError(t, bson.Unmarshal(raw, &doc))
	doc.Score = 0.75
	hit := doc.hit()
	assert.Equal(t, "d1", hit.DocumentID)
	assert.Equal(t, 2, hit.SequenceIndex)
	assert.True(t, hit.CreatedAt.Equal(created))
	assert.InDelta(t, 0.5, hit.Score, 1e-6)
}

func TestIndexDefinition(t *testing.T) {
	def := IndexDefinition(1536)
	fields := def.Map()["fields"].(bson.A)
	require.Len(t, fields, 3)
	vector := fields[0].(bson.D).Map()
	assert.Equal(t, 1536, vector["numDimensions"])
	assert.Equal(t, "cosine", vector["similarity"])
}
