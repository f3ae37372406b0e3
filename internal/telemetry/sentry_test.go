package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "RetrievalService.Ingest", SpanAttributes{
		OwnerID:    "alice",
		DocumentID: "doc-1",
		Operation:  "ingest",
	})
	defer parent.End()

	assert.Equal(t, "alice", parent.inner.Tags["owner_id"])
	assert.Equal(t, "doc-1", parent.inner.Tags["document_id"])
	assert.Equal(t, "ingest", parent.inner.Data["operation"])

	_, child := StartSpan(ctx, "IndexWorker.processJob", SpanAttributes{JobID: "job-1"})
	defer child.End()

	assert.Equal(t, parent.inner.TraceID, child.inner.TraceID)
	assert.Equal(t, parent.inner.SpanID, child.inner.ParentSpanID)
	assert.Equal(t, "job-1", child.inner.Tags["job_id"])
}

func TestSpan_SetErrorAndData(t *testing.T) {
	_, span := StartSpan(context.Background(), "RetrievalService.Query", SpanAttributes{})
	span.SetData("hits", 3)
	span.SetError(errors.New("store offline"))
	span.End()

	assert.Equal(t, 3, span.inner.Data["hits"])
	assert.Equal(t, sentry.SpanStatusInternalError, span.inner.Status)
}

func TestSpan_ZeroValueIsSafe(t *testing.T) {
	var span Span
	span.SetData("k", "v")
	span.SetStatus(sentry.SpanStatusOK)
	span.SetError(errors.New("boom"))
	span.End()
	assert.NotNil(t, span.Context())

	CaptureError(context.Background(), errors.New("no client configured"))
	AddBreadcrumb(context.Background(), "ingest", "chunk skipped")
}
