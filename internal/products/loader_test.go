package products

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing CSV: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "name,category_title,price,color,image,description\n"+
		"OG Tumbler,Drinkware,55.00,Black,https://img/og.png,Double-walled tumbler\n"+
		"Ceramic Mug,Mugs,35.50,White,https://img/mug.png,Stoneware mug\n")

	got, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV() error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d products, want 2", len(got))
	}
	if got[0].Name != "OG Tumbler" || got[0].Price != 55 || got[0].Category != "Drinkware" {
		t.Errorf("first product = %+v", got[0])
	}
	if got[1].Color != "White" || got[1].Description != "Stoneware mug" {
		t.Errorf("second product = %+v", got[1])
	}
}

func TestLoadCSV_SkipsNamelessRows(t *testing.T) {
	path := writeCSV(t, "name,price\n,10\nOG Tumbler,55\n")

	got, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d products, want 1 (nameless row skipped)", len(got))
	}
}

func TestLoadCSV_MissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("LoadCSV() succeeded on missing file, want error")
	}
}

func TestSeed_SkipsPopulatedIndex(t *testing.T) {
	emb := &mockEmbeddingClient{vec: []float32{1, 0}}
	idx := &mockIndex{}
	idx.upserted = append(idx.upserted, Record{ID: "existing"})

	err := Seed(context.Background(), idx, NewEmbedder(emb), []Product{{Name: "OG Tumbler"}})
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times on populated index, want 0", emb.calls)
	}
}

func TestSeed_EmbedsAndUpserts(t *testing.T) {
	emb := &mockEmbeddingClient{vec: []float32{1, 0}}
	idx := &mockIndex{}

	products := []Product{
		{Name: "OG Tumbler", Category: "Drinkware"},
		{Name: "Ceramic Mug", Category: "Mugs"},
	}
	if err := Seed(context.Background(), idx, NewEmbedder(emb), products); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	if len(idx.upserted) != 2 {
		t.Fatalf("upserted %d records, want 2", len(idx.upserted))
	}
	if emb.calls != 2 {
		t.Errorf("embedder called %d times, want 2", emb.calls)
	}
	if idx.upserted[0].ID == idx.upserted[1].ID {
		t.Error("record IDs are not unique")
	}
}
