package products

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads the product catalog from a CSV file. Expected columns (by
// header name): name, category_title, price, color, image, description.
// Unknown columns are ignored; missing ones come out empty.
func LoadCSV(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening products CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	var products []Product
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		p := Product{
			Name:        field(row, col, "name"),
			Category:    field(row, col, "category_title"),
			Color:       field(row, col, "color"),
			Image:       field(row, col, "image"),
			Description: field(row, col, "description"),
		}
		if price, err := strconv.ParseFloat(field(row, col, "price"), 64); err == nil {
			p.Price = price
		}
		if p.Name == "" {
			continue
		}
		products = append(products, p)
	}

	return products, nil
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Seed embeds and upserts the catalog into the index if the index is empty.
// Safe to call on every startup; a populated index is left untouched.
func Seed(ctx context.Context, index Index, embedder *Embedder, products []Product) error {
	count, err := index.Count(ctx)
	if err != nil {
		return fmt.Errorf("checking index count: %w", err)
	}
	if count > 0 {
		slog.Info("product index already populated", "count", count)
		return nil
	}
	if len(products) == 0 {
		slog.Warn("no product data to seed")
		return nil
	}

	texts := make([]string, len(products))
	for i, p := range products {
		texts[i] = fmt.Sprintf("%s %s %s", p.Name, p.Category, p.Description)
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding catalog: %w", err)
	}

	records := make([]Record, len(products))
	for i, p := range products {
		records[i] = Record{
			ID:        fmt.Sprintf("product_%d", i),
			Embedding: vectors[i],
			Product:   p,
		}
	}

	if err := index.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upserting catalog: %w", err)
	}
	slog.Info("product index seeded", "count", len(records))
	return nil
}
