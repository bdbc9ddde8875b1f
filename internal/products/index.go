package products

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// Product holds the catalog metadata attached to each indexed vector.
type Product struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Color       string  `json:"color"`
	Image       string  `json:"image"`
	Description string  `json:"snippet"`
}

// Match is a product returned by a nearest-neighbor query, with its cosine
// similarity score clamped to [0, 1] (higher = more relevant).
type Match struct {
	Product
	Score float32 `json:"score"`
}

// Record is a product with its embedding, ready for upsert.
type Record struct {
	ID        string
	Embedding []float32
	Product
}

// Index is the vector index the product pipeline searches.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Count(ctx context.Context) (int, error)
}

// Compile-time check that SQLiteIndex implements Index.
var _ Index = (*SQLiteIndex)(nil)

// SQLiteIndex provides vector storage and brute-force cosine similarity
// search over the product catalog, backed by SQLite. Catalog sizes are a few
// hundred rows, so a full scan per query is well within budget.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an existing *sql.DB and ensures the product_vectors
// table exists.
func NewSQLiteIndex(db *sql.DB) (*SQLiteIndex, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS product_vectors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		price REAL,
		color TEXT,
		image TEXT,
		description TEXT,
		embedding BLOB NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating product_vectors table: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Upsert inserts or replaces product records by ID.
func (s *SQLiteIndex) Upsert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO product_vectors (id, name, category, price, color, image, description, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		blob := encodeFloat32s(r.Embedding)
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Category, r.Price, r.Color, r.Image, r.Description, blob); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// idScore holds only the ID and score during the scan phase of Query.
// Full metadata is fetched only for the top-K winners.
type idScore struct {
	ID    string
	Score float32
}

// Query performs brute-force cosine similarity search over all product
// vectors, returning the top-K most similar products with metadata.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK < 1 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM product_vectors`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Pop in reverse so matches come out score-descending.
	matches := make([]Match, h.Len())
	ordered := make([]idScore, h.Len())
	for i := len(ordered) - 1; i >= 0; i-- {
		ordered[i] = heap.Pop(h).(idScore)
	}

	for i, is := range ordered {
		var m Match
		err := s.db.QueryRowContext(ctx,
			`SELECT name, category, price, color, image, description FROM product_vectors WHERE id = ?`, is.ID,
		).Scan(&m.Name, &m.Category, &m.Price, &m.Color, &m.Image, &m.Description)
		if err != nil {
			return nil, fmt.Errorf("fetching record %s: %w", is.ID, err)
		}
		m.Score = is.Score
		matches[i] = m
	}

	return matches, nil
}

// Count returns the number of indexed products.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_vectors`).Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm), clamped
// to [0, 1]. aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	score := dot / (float64(aNorm) * bNorm)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float32(score)
}

// idScoreHeap is a min-heap of idScore ordered by Score, used to track the
// top-K candidates during the scan phase of Query.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
