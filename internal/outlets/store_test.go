package outlets

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testCSV = "name,address,link,reviews_count,reviews_average,phone_number,services,place_type,opens_at\n" +
	"ZUS Coffee SS15,\"Jalan SS15/4, Subang Jaya, Selangor\",https://zus/ss15,120,4.5,+60312345678,Dine-in,Coffee shop,\"Monday, 8am–9:40pm, Tuesday, 8am–9:40pm\"\n" +
	"ZUS Coffee KLCC,\"Suria KLCC, Kuala Lumpur\",https://zus/klcc,200,4.2,+60387654321,Takeaway,Coffee shop,\"Monday, 8am–8pm, Tuesday, 8am–8pm\"\n"

func openSeededStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	csvPath := filepath.Join(t.TempDir(), "outlets.csv")
	if err := os.WriteFile(csvPath, []byte(testCSV), 0o644); err != nil {
		t.Fatalf("writing CSV: %v", err)
	}
	if err := store.SeedFromCSV(context.Background(), csvPath); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return store
}

func TestSeedFromCSV(t *testing.T) {
	store := openSeededStore(t)

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestSeedFromCSV_Idempotent(t *testing.T) {
	store := openSeededStore(t)

	// Second seed against a populated table must not duplicate rows.
	csvPath := filepath.Join(t.TempDir(), "outlets.csv")
	if err := os.WriteFile(csvPath, []byte(testCSV), 0o644); err != nil {
		t.Fatalf("writing CSV: %v", err)
	}
	if err := store.SeedFromCSV(context.Background(), csvPath); err != nil {
		t.Fatalf("re-seeding store: %v", err)
	}

	count, _ := store.Count(context.Background())
	if count != 2 {
		t.Errorf("count after re-seed = %d, want 2", count)
	}
}

func TestColumns(t *testing.T) {
	store := openSeededStore(t)

	cols, err := store.Columns(context.Background())
	if err != nil {
		t.Fatalf("Columns() error: %v", err)
	}

	want := []string{"id", "name", "address", "link", "reviews_count", "reviews_average", "phone_number", "services", "place_type", "opens_at"}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("Columns() = %v, want %v", cols, want)
	}
}

func TestExecuteSelect(t *testing.T) {
	store := openSeededStore(t)

	rows, err := store.ExecuteSelect(context.Background(), "SELECT name, reviews_count FROM outlets WHERE address LIKE '%Selangor%' LIMIT 3")
	if err != nil {
		t.Fatalf("ExecuteSelect() error: %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["name"] != "ZUS Coffee SS15" {
		t.Errorf("name = %v, want ZUS Coffee SS15", rows[0]["name"])
	}
	if rows[0]["reviews_count"] != int64(120) {
		t.Errorf("reviews_count = %v (%T), want 120", rows[0]["reviews_count"], rows[0]["reviews_count"])
	}
}

func TestExecuteSelect_MalformedSQL(t *testing.T) {
	store := openSeededStore(t)

	if _, err := store.ExecuteSelect(context.Background(), "SELECT nope FROM nowhere"); err == nil {
		t.Fatal("ExecuteSelect() succeeded on malformed SQL, want error")
	}
}
