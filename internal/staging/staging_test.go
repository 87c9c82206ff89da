package staging

import (
	"context"
	"reflect"
	"testing"

	"github.com/buildlens/delivery-intake/internal/delivery"
)

func testRecords() []delivery.MaterialRecord {
	return []delivery.MaterialRecord{
		{Flow: delivery.FlowIntake, Name: "Cement M500", Quantity: "40", Size: "50kg bag", NetWeight: "2000"},
		{Flow: delivery.FlowIntake, Name: "Rebar A500C", Quantity: "120", Size: "12mm", Volume: "1.2"},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	want := testRecords()
	if err := store.Put(ctx, "d-1", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := store.Get(ctx, "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected staged records to exist")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "d-1", testRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	replacement := []delivery.MaterialRecord{{Name: "Sand"}}
	if err := store.Put(ctx, "d-1", replacement); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, _ := store.Get(ctx, "d-1")
	if !ok || len(got) != 1 || got[0].Name != "Sand" {
		t.Errorf("expected replacement set, got %+v", got)
	}
}

func TestClearThenGetAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "d-1", testRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Clear(ctx, "d-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, ok, err := store.Get(ctx, "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected records to be absent after clear")
	}
}

func TestGetAbsentDelivery(t *testing.T) {
	_, ok, err := NewMemoryStore().Get(context.Background(), "never-staged")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected absent entry for unknown delivery")
	}
}

func TestStoredRecordsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	records := testRecords()
	if err := store.Put(ctx, "d-1", records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records[0].Name = "mutated"

	got, _, _ := store.Get(ctx, "d-1")
	if got[0].Name != "Cement M500" {
		t.Errorf("caller mutation leaked into store: %s", got[0].Name)
	}
}
