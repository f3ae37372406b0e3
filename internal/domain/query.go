package domain

// ContextKind tells the generation step whether personal context was found.
type ContextKind string

const (
	ContextKindPersonal ContextKind = "context"
	ContextKindNone     ContextKind = "no_context"
)

// NoContextReason explains why a query produced no personal context.
type NoContextReason string

const (
	NoContextGeneral          NoContextReason = "general_question"
	NoContextModelUnavailable NoContextReason = "model_unavailable"
	NoContextNoMatches        NoContextReason = "no_matches"
)

// QueryResult is either an assembled context block or NoContext.
type QueryResult struct {
	Kind    ContextKind
	Context string
	Hits    []SearchHit
	Reason  NoContextReason
}

// NoContext builds a NoContext result with the given reason.
func NoContext(reason NoContextReason) *QueryResult {
	return &QueryResult{Kind: ContextKindNone, Reason: reason}
}

// HasContext reports whether personal context was assembled.
func (r *QueryResult) HasContext() bool {
	return r != nil && r.Kind == ContextKindPersonal
}
