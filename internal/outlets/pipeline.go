package outlets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/EASONTAN03/zus-api-deployment/internal/openai"
	"github.com/EASONTAN03/zus-api-deployment/internal/query"
)

// NoResultsMessage is returned when the generated query matches zero rows.
const NoResultsMessage = "I couldn't find any relevant outlets based on your query. Please try a different query."

const outletSummaryPrompt = `You are a helpful assistant for ZUS Coffee. Based on the SQL query results, provide a concise and informative summary that answers the user's question.`

// Executor is the read-only store interface the pipeline runs against.
type Executor interface {
	Columns(ctx context.Context) ([]string, error)
	ExecuteSelect(ctx context.Context, stmt string) ([]map[string]any, error)
}

// Result is the outlet pipeline output.
type Result struct {
	Summary string           `json:"summary"`
	SQL     string           `json:"sql_query"`
	Rows    []map[string]any `json:"executed_sql_result"`
}

// Pipeline turns a free-text outlet question into a validated SQL query, its
// result rows, and a natural-language summary.
type Pipeline struct {
	gen   *Generator
	store Executor
	llm   Chatter
}

// NewPipeline creates an outlet retrieval Pipeline.
func NewPipeline(gen *Generator, store Executor, llm Chatter) *Pipeline {
	return &Pipeline{gen: gen, store: store, llm: llm}
}

// Query runs the full text-to-SQL path. Validation and execution failures
// degrade to zero rows rather than propagating a database error; zero rows
// short-circuit to NoResultsMessage without a summarization call.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) (Result, error) {
	columns, err := p.store.Columns(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("introspecting schema: %w", err)
	}

	generated, err := p.gen.Generate(ctx, question, topK, columns)
	if err != nil {
		return Result{}, err
	}

	var rows []map[string]any
	stmt, err := ValidateSelect(generated, columns, topK)
	if err != nil {
		slog.Warn("rejected generated SQL", "sql", generated, "error", err)
		stmt = generated
	} else {
		rows, err = p.store.ExecuteSelect(ctx, stmt)
		if err != nil {
			slog.Warn("generated SQL failed to execute", "sql", stmt, "error", err)
			rows = nil
		}
	}

	if len(rows) == 0 {
		return Result{Summary: NoResultsMessage, SQL: stmt, Rows: []map[string]any{}}, nil
	}

	raw, err := p.llm.Chat(ctx, summaryMessages(question, stmt, rows))
	if err != nil {
		return Result{}, fmt.Errorf("summarizing results: %w", err)
	}

	return Result{Summary: query.CleanAnswer(raw), SQL: stmt, Rows: rows}, nil
}

func summaryMessages(question, stmt string, rows []map[string]any) []openai.Message {
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		rowsJSON = []byte("[]")
	}

	content := fmt.Sprintf("User Question: %s\nSQL Query: %s\nQuery Results: %s", question, stmt, rowsJSON)
	return []openai.Message{
		{Role: "system", Content: outletSummaryPrompt},
		{Role: "user", Content: content},
	}
}
