// Package chat routes a user prompt through throttling, caching, intent
// classification, and the matching retrieval pipeline.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/EASONTAN03/zus-api-deployment/internal/intent"
	"github.com/EASONTAN03/zus-api-deployment/internal/outlets"
	"github.com/EASONTAN03/zus-api-deployment/internal/products"
	"github.com/EASONTAN03/zus-api-deployment/internal/query"
)

var (
	// ErrEmptyQuery is returned when the prompt is blank.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrUnclassified is returned when the prompt maps to neither pipeline.
	ErrUnclassified = errors.New("ask me about ZUS Coffee products or outlet locations")
)

// Resolver maps an Authorization header to a throttling identity.
type Resolver interface {
	Resolve(authHeader string) string
}

// Limiter admits or rejects a request for an identity.
type Limiter interface {
	Allow(identity string) error
}

// Classifier labels a prompt with an intent.
type Classifier interface {
	Classify(ctx context.Context, q string) intent.Intent
}

// ProductSearcher is the product retrieval pipeline.
type ProductSearcher interface {
	Search(ctx context.Context, q string, topK int) (products.Result, error)
}

// OutletQuerier is the outlet text-to-SQL pipeline.
type OutletQuerier interface {
	Query(ctx context.Context, question string, topK int) (outlets.Result, error)
}

// Cache stores serialized responses keyed by the exact prompt string.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Response is the unified chat answer. Product answers carry
// retrieved_products; outlet answers carry sql_query and
// executed_sql_result. The pipelines return non-nil (possibly empty) slices,
// so a nil slice here marks the field as belonging to the other path.
type Response struct {
	Summary           string           `json:"summary"`
	RetrievedProducts []products.Match `json:"retrieved_products"`
	SQLQuery          string           `json:"sql_query"`
	ExecutedSQLResult []map[string]any `json:"executed_sql_result"`
}

// MarshalJSON emits only the dispatched pipeline's fields. An empty result
// list serializes as [], never disappears.
func (r Response) MarshalJSON() ([]byte, error) {
	out := map[string]any{"summary": r.Summary}
	if r.RetrievedProducts != nil {
		out["retrieved_products"] = r.RetrievedProducts
	}
	if r.ExecutedSQLResult != nil {
		out["sql_query"] = r.SQLQuery
		out["executed_sql_result"] = r.ExecutedSQLResult
	}
	return json.Marshal(out)
}

// Orchestrator composes the chat flow. Identical prompts arriving
// concurrently share one pipeline run via singleflight, so a burst of the
// same question costs one set of provider calls.
type Orchestrator struct {
	resolver   Resolver
	limiter    Limiter
	classifier Classifier
	prods      ProductSearcher
	outs       OutletQuerier
	cache      Cache

	group singleflight.Group
}

// New creates an Orchestrator.
func New(resolver Resolver, limiter Limiter, classifier Classifier, prods ProductSearcher, outs OutletQuerier, cache Cache) *Orchestrator {
	return &Orchestrator{
		resolver:   resolver,
		limiter:    limiter,
		classifier: classifier,
		prods:      prods,
		outs:       outs,
		cache:      cache,
	}
}

// Chat handles one prompt. Rate limiting is checked before the cache so a
// throttled caller cannot probe cached answers for free.
func (o *Orchestrator) Chat(ctx context.Context, authHeader, prompt string) (Response, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Response{}, ErrEmptyQuery
	}

	identity := o.resolver.Resolve(authHeader)
	if err := o.limiter.Allow(identity); err != nil {
		return Response{}, err
	}

	key := cacheKey(prompt)
	if data, ok := o.cache.Get(ctx, key); ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			slog.Debug("cache hit", "identity", identity)
			return resp, nil
		}
		slog.Warn("discarding undecodable cache entry", "key", key)
	}

	// The computation is shared by every coalesced waiter, so it must not die
	// with the leader's request context.
	v, err, shared := o.group.Do(key, func() (any, error) {
		return o.dispatch(context.WithoutCancel(ctx), prompt)
	})
	if err != nil {
		return Response{}, err
	}
	resp := v.(Response)
	if shared {
		slog.Debug("coalesced duplicate prompt", "identity", identity)
	}

	if data, err := json.Marshal(resp); err == nil {
		o.cache.Set(ctx, key, data)
	}
	return resp, nil
}

// dispatch classifies the prompt and runs the matching pipeline.
func (o *Orchestrator) dispatch(ctx context.Context, prompt string) (Response, error) {
	topK := query.TopK(prompt)

	switch o.classifier.Classify(ctx, prompt) {
	case intent.Product:
		res, err := o.prods.Search(ctx, prompt, topK)
		if err != nil {
			return Response{}, fmt.Errorf("product search: %w", err)
		}
		return Response{Summary: res.Summary, RetrievedProducts: res.Matches}, nil

	case intent.Outlet:
		res, err := o.outs.Query(ctx, prompt, topK)
		if err != nil {
			return Response{}, fmt.Errorf("outlet query: %w", err)
		}
		return Response{Summary: res.Summary, SQLQuery: res.SQL, ExecutedSQLResult: res.Rows}, nil

	default:
		return Response{}, ErrUnclassified
	}
}

// cacheKey namespaces the prompt verbatim. Keys are exact-match: the same
// question with different casing or spacing is a different entry.
func cacheKey(prompt string) string {
	return "chat:" + prompt
}
