package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/storyrag/internal/chunking"
	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/cloo-solutions/storyrag/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTopK              = 5
	DefaultNumCandidates     = 150
	DefaultIngestConcurrency = 1
	DefaultWriteTimeout      = 10 * time.Second
	DefaultSearchTimeout     = 5 * time.Second
)

// Embedder turns text into a unit vector. Init loads the model once; a
// failed load makes every later call fail with domain.ErrModelUnavailable.
type Embedder interface {
	Init(ctx context.Context) error
	IsReady() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the owner-scoped record store.
type VectorStore interface {
	Write(ctx context.Context, record domain.Record) error
	Delete(ctx context.Context, ownerID, documentID string) (int64, error)
	Search(ctx context.Context, ownerID string, query []float32, k, numCandidates int) ([]domain.SearchHit, error)
}

// QueryRouter decides whether a question needs personal context. It never
// fails; errors and timeouts answer false.
type QueryRouter interface {
	Classify(ctx context.Context, question string) bool
}

type RetrievalConfig struct {
	ChunkSize     int
	TopK          int
	NumCandidates int
	// IngestConcurrency bounds how many chunks are embedded and written at
	// once. 1 processes chunks strictly in sequence order.
	IngestConcurrency int
	WriteTimeout      time.Duration
	SearchTimeout     time.Duration
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		ChunkSize:         chunking.DefaultWindowSize,
		TopK:              DefaultTopK,
		NumCandidates:     DefaultNumCandidates,
		IngestConcurrency: DefaultIngestConcurrency,
		WriteTimeout:      DefaultWriteTimeout,
		SearchTimeout:     DefaultSearchTimeout,
	}
}

func (c RetrievalConfig) withDefaults() RetrievalConfig {
	d := DefaultRetrievalConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.NumCandidates < c.TopK {
		c.NumCandidates = d.NumCandidates
		if c.NumCandidates < c.TopK {
			c.NumCandidates = c.TopK
		}
	}
	if c.IngestConcurrency <= 0 {
		c.IngestConcurrency = d.IngestConcurrency
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	return c
}

// RetrievalService coordinates ingestion and question answering over one
// embedder, one vector store and one query router.
type RetrievalService struct {
	embedder Embedder
	store    VectorStore
	router   QueryRouter
	cfg      RetrievalConfig
	log      *logger.Logger
}

func NewRetrievalService(embedder Embedder, store VectorStore, router QueryRouter, cfg RetrievalConfig, log *logger.Logger) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		store:    store,
		router:   router,
		cfg:      cfg.withDefaults(),
		log:      logger.OrNop(log).With("component", "retrieval"),
	}
}

// Ingest chunks, embeds and stores doc. Invalid input is rejected before any
// work starts. Per-chunk failures are recorded in the result and do not fail
// the document.
//
// If ctx ends first, Ingest returns its error at once. Chunks already being
// processed run to completion; no further chunk is started.
func (s *RetrievalService) Ingest(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}
	if err := chunking.ValidateText(doc.RawText); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Ingest", telemetry.SpanAttributes{
		OwnerID:    doc.OwnerID,
		DocumentID: doc.ID,
		Operation:  "ingest",
	})
	defer span.End()

	done := make(chan *domain.IngestResult, 1)
	go func() {
		done <- s.ingest(ctx, doc)
	}()

	select {
	case res := <-done:
		span.SetData("status", string(res.Status))
		return res, nil
	case <-ctx.Done():
		return nil, domain.FromContextError(ctx.Err())
	}
}

func (s *RetrievalService) ingest(ctx context.Context, doc *domain.Document) *domain.IngestResult {
	log := s.log.With("document_id", doc.ID, "owner_id", doc.OwnerID)
	tracker := domain.NewIngestTracker(doc.ID)
	res := &domain.IngestResult{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Status:     domain.IngestStatusPending,
	}

	finish := func(status domain.IngestStatus) *domain.IngestResult {
		if err := tracker.Transition(status); err != nil {
			log.Error("invalid ingest transition", "error", err)
		}
		res.Status = tracker.Status()
		return res
	}
	fail := func(reason string, cause error) *domain.IngestResult {
		res.Reason = reason
		res.Cause = cause
		finish(domain.IngestStatusFailed)
		log.Error("ingest failed", "reason", reason, "error", cause)
		telemetry.CaptureError(ctx, res.Err())
		return res
	}

	_ = tracker.Transition(domain.IngestStatusChunking)
	chunks := indexable(chunking.BuildChunks(doc, s.cfg.ChunkSize))
	res.ChunksTotal = len(chunks)
	if len(chunks) == 0 {
		return fail("document produced no chunks", nil)
	}

	if err := s.embedder.Init(ctx); err != nil {
		return fail("embedding model unavailable", err)
	}

	// In-flight chunk work must outlive the caller.
	work := context.WithoutCancel(ctx)

	dctx, cancel := s.writeCtx(work)
	removed, err := s.store.Delete(dctx, doc.OwnerID, doc.ID)
	cancel()
	if err != nil {
		return fail("failed to clear previous records", err)
	}
	if removed > 0 {
		log.Info("cleared previous records", "removed", removed)
	}

	var (
		mu      sync.Mutex
		g       errgroup.Group
		started int
	)
	g.SetLimit(s.cfg.IngestConcurrency)
	skip := func(i int, err error) {
		mu.Lock()
		res.Skipped = append(res.Skipped, domain.SkippedChunk{SequenceIndex: i, Err: err})
		mu.Unlock()
	}

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		chunk := chunk
		started++
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				skip(chunk.SequenceIndex, domain.ErrPartialIngest.Wrap(domain.FromContextError(err)))
				return nil
			}
			if err := tracker.Embedding(chunk.SequenceIndex); err != nil {
				skip(chunk.SequenceIndex, err)
				return nil
			}
			if err := s.indexChunk(work, doc, chunk); err != nil {
				log.Warn("skipping chunk", "sequence_index", chunk.SequenceIndex, "error", err)
				skip(chunk.SequenceIndex, domain.ErrPartialIngest.Wrap(err))
				return nil
			}
			mu.Lock()
			res.ChunksIndexed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := started; i < len(chunks); i++ {
		skip(chunks[i].SequenceIndex, domain.ErrPartialIngest.Wrap(domain.FromContextError(ctx.Err())))
	}
	sort.Slice(res.Skipped, func(a, b int) bool {
		return res.Skipped[a].SequenceIndex < res.Skipped[b].SequenceIndex
	})

	switch {
	case res.ChunksIndexed == len(chunks):
		log.Info("document indexed", "chunks", res.ChunksIndexed)
		return finish(domain.IngestStatusPersisted)
	case res.ChunksIndexed == 0:
		return fail("no chunk could be indexed", res.Skipped[0].Err)
	default:
		log.Warn("document partially indexed", "chunks", res.ChunksIndexed, "skipped", len(res.Skipped))
		return finish(domain.IngestStatusPartiallyPersisted)
	}
}

// indexable drops windows that hold only whitespace. They carry nothing to
// search for, and the remaining chunks keep their sequence indexes.
func indexable(chunks []domain.Chunk) []domain.Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *RetrievalService) indexChunk(ctx context.Context, doc *domain.Document, chunk domain.Chunk) error {
	vec, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return err
	}
	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	return s.store.Write(wctx, domain.NewRecord(doc, chunk, vec))
}

func (s *RetrievalService) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.WriteTimeout)
}

// Query answers whether question can be backed by ownerID's own documents
// and, if so, assembles the context block. NoContext is a normal result,
// not an error.
func (s *RetrievalService) Query(ctx context.Context, ownerID, question string) (*domain.QueryResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrMissingRequiredField.Wrap(fmt.Errorf("owner ID is required"))
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrInvalidInput.Wrap(fmt.Errorf("question is empty"))
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Query", telemetry.SpanAttributes{
		OwnerID:   ownerID,
		Operation: "query",
	})
	defer span.End()
	log := s.log.With("owner_id", ownerID)

	if !s.router.Classify(ctx, question) {
		log.Debug("general question, no personal context")
		return domain.NoContext(domain.NoContextGeneral), nil
	}

	qv, err := s.embedder.Embed(ctx, question)
	if err != nil {
		log.Warn("could not embed question, answering without personal context", "error", err)
		return domain.NoContext(domain.NoContextModelUnavailable), nil
	}

	hits, err := s.search(ctx, ownerID, qv, s.cfg.TopK)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(hits) == 0 {
		return domain.NoContext(domain.NoContextNoMatches), nil
	}

	span.SetData("hits", len(hits))
	return &domain.QueryResult{
		Kind:    domain.ContextKindPersonal,
		Context: AssembleContext(hits),
		Hits:    hits,
	}, nil
}

// Search embeds query and returns ownerID's k closest records without
// consulting the router. k <= 0 uses the configured top k.
func (s *RetrievalService) Search(ctx context.Context, ownerID, query string, k int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrMissingRequiredField.Wrap(fmt.Errorf("owner ID is required"))
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Search", telemetry.SpanAttributes{
		OwnerID:   ownerID,
		Operation: "search",
	})
	defer span.End()

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, ownerID, qv, k)
}

func (s *RetrievalService) search(ctx context.Context, ownerID string, qv []float32, k int) ([]domain.SearchHit, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}

	numCandidates := s.cfg.NumCandidates
	if numCandidates < k {
		numCandidates = k
	}
	hits, err := s.store.Search(ctx, ownerID, qv, k, numCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}

	scoped := hits[:0]
	for _, h := range hits {
		if h.OwnerID != ownerID {
			err := fmt.Errorf("store returned chunk %s of owner %s for owner %s", h.ChunkID, h.OwnerID, ownerID)
			s.log.Error("owner isolation violated, dropping hit", "error", err)
			telemetry.CaptureError(ctx, err)
			continue
		}
		scoped = append(scoped, h)
	}
	return scoped, nil
}

// Delete retracts every record of a document.
func (s *RetrievalService) Delete(ctx context.Context, ownerID, documentID string) (int64, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(documentID) == "" {
		return 0, domain.ErrMissingRequiredField.Wrap(fmt.Errorf("owner ID and document ID are required"))
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Delete", telemetry.SpanAttributes{
		OwnerID:    ownerID,
		DocumentID: documentID,
		Operation:  "delete",
	})
	defer span.End()

	n, err := s.store.Delete(ctx, ownerID, documentID)
	if err != nil {
		span.SetError(err)
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	s.log.Info("document records deleted", "owner_id", ownerID, "document_id", documentID, "removed", n)
	return n, nil
}

// AssembleContext renders hits, most similar first, as paragraphs that each
// start with a "Source: <title> (<createdAt>)" line.
func AssembleContext(hits []domain.SearchHit) string {
	ordered := make([]domain.SearchHit, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Score > ordered[b].Score })

	paragraphs := make([]string, 0, len(ordered))
	for _, h := range ordered {
		paragraphs = append(paragraphs, fmt.Sprintf("Source: %s (%s)\n%s",
			h.Title, h.CreatedAt.UTC().Format(time.RFC3339), h.Text))
	}
	return strings.Join(paragraphs, "\n\n")
}
