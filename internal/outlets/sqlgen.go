package outlets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/EASONTAN03/zus-api-deployment/internal/openai"
)

const sqlSystemPrompt = `You are a SQL expert. Generate a SQL query to find ZUS Coffee outlets based on the user's question.

Given an input question, create a syntactically correct %s SQL query to help find the answer. Unless the user specifies a specific number of results, always limit your query to at most %d results using LIMIT.

IMPORTANT:
- Return your answer ONLY as a SQL query, "SELECT ...".
- Do not add markdown blocks around the SQL query.
- Do not include commentary or explanation.
- Always use pattern matching with LIKE and wrap values in %%.
- Use only these tables and columns:

%s

NOTES:
- The opens_at column contains weekly opening hours in a comma-separated text format, e.g.:
  "Monday, 8am–9:40pm, Tuesday, 8am–9:40pm, ..."
- For time-based questions (e.g. outlets open after 9pm), check for the time pattern (e.g. '%%–9:%%pm%%' or '%%–1%%pm%%') in the opens_at column, not per day.
- For Selangor, use address LIKE '%%Selangor%%'.
- Use LOWER(column) for case-insensitive checks if needed.
- Be careful not to use columns that don't exist.

EXAMPLE:
- For "Which outlets in Selangor open after 9pm?":
  SELECT * FROM outlets WHERE address LIKE '%%Selangor%%' AND (opens_at LIKE '%%–9:%%pm%%' OR opens_at LIKE '%%–1%%pm%%') LIMIT %d;`

// Chatter is the chat completion interface the generator depends on.
type Chatter interface {
	Chat(ctx context.Context, messages []openai.Message) (string, error)
}

// Generator produces a bounded SELECT statement from a natural-language
// question using a single chat completion call.
type Generator struct {
	client  Chatter
	dialect string
}

// NewGenerator creates a Generator targeting the given SQL dialect name
// (informational, passed to the model).
func NewGenerator(client Chatter, dialect string) *Generator {
	return &Generator{client: client, dialect: dialect}
}

// Generate asks the model for a SELECT statement answering the question over
// the given columns. The raw output is stripped of markdown fencing but NOT
// validated; callers must pass it through ValidateSelect before execution.
func (g *Generator) Generate(ctx context.Context, question string, topK int, columns []string) (string, error) {
	tableInfo := "outlets(" + strings.Join(columns, ", ") + ")"
	system := fmt.Sprintf(sqlSystemPrompt, g.dialect, topK, tableInfo, topK)

	raw, err := g.client.Chat(ctx, []openai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	})
	if err != nil {
		return "", fmt.Errorf("generating SQL: %w", err)
	}

	return stripFences(raw), nil
}

// stripFences removes markdown code fencing the model may wrap around SQL.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Keywords and bare functions permitted in generated statements, beyond the
// table's own column names. Anything else is rejected.
var allowedWords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"not": true, "like": true, "in": true, "between": true, "is": true,
	"null": true, "limit": true, "offset": true, "order": true, "by": true,
	"asc": true, "desc": true, "distinct": true, "as": true, "group": true,
	"having": true, "count": true, "sum": true, "avg": true, "min": true,
	"max": true, "lower": true, "upper": true, "outlets": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
}

var (
	selectRe = regexp.MustCompile(`(?is)^\s*select\b`)
	// Strings first so their contents never reach the identifier check.
	stringRe = regexp.MustCompile(`'(?:[^']|'')*'`)
	identRe  = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	limitRe  = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)
)

// ValidateSelect treats a model-generated statement as untrusted input. It
// enforces: exactly one statement, SELECT only, identifiers restricted to the
// allow-list plus the given column names, and a LIMIT no greater than
// maxLimit (appended or clamped as needed). Returns the statement safe to
// execute, or an error describing the rejection.
func ValidateSelect(stmt string, columns []string, maxLimit int) (string, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if s == "" {
		return "", fmt.Errorf("empty statement")
	}
	if strings.Contains(s, ";") {
		return "", fmt.Errorf("multiple statements are not allowed")
	}
	if !selectRe.MatchString(s) {
		return "", fmt.Errorf("only SELECT statements are allowed")
	}

	allowed := make(map[string]bool, len(allowedWords)+len(columns))
	for w := range allowedWords {
		allowed[w] = true
	}
	for _, c := range columns {
		allowed[strings.ToLower(c)] = true
	}

	stripped := stringRe.ReplaceAllString(s, "''")
	for _, ident := range identRe.FindAllString(stripped, -1) {
		if !allowed[strings.ToLower(ident)] {
			return "", fmt.Errorf("disallowed identifier %q", ident)
		}
	}

	if m := limitRe.FindStringSubmatch(stripped); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return "", fmt.Errorf("invalid LIMIT value %q", m[1])
		}
		if n > maxLimit {
			s = limitRe.ReplaceAllString(s, fmt.Sprintf("LIMIT %d", maxLimit))
		}
	} else {
		s = fmt.Sprintf("%s LIMIT %d", s, maxLimit)
	}

	return s, nil
}
