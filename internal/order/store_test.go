package order

import (
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tradecore-io/tradecore/internal/storage"
)

// testFlushInterval keeps the background flusher quiet during short tests.
const testFlushInterval = 1 * time.Hour

// newTestStore seeds a CSV file with the given rows and opens a store on it.
func newTestStore(t *testing.T, rows [][]string) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "order_database_1.csv")

	if rows != nil {
		if err := storage.WriteRows(path, csvHeader, rows); err != nil {
			t.Fatalf("Failed to seed order file: %v", err)
		}
	}

	store, err := NewStore(path, 1, testFlushInterval, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestNewStoreInitializesNextID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("empty log starts at zero", func(t *testing.T) {
		store := newTestStore(t, nil)

		if got := store.NextID(); got != 0 {
			t.Errorf("NextID() = %d, want 0", got)
		}
	})

	t.Run("loaded log resumes past highest id", func(t *testing.T) {
		store := newTestStore(t, [][]string{
			{"0", "GameStart", "buy", "5"},
			{"7", "FishCo", "sell", "2"},
			{"3", "GameStart", "buy", "1"},
		})

		if got := store.NextID(); got != 8 {
			t.Errorf("NextID() = %d, want 8", got)
		}

		if _, ok := store.Get(3); !ok {
			t.Error("Expected order 3 to be loaded")
		}
	})
}

func TestAppendAssignsContiguousIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, nil)

	for i := int64(0); i < 3; i++ {
		ord, err := store.Append("GameStart", TypeBuy, 1)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		if ord.TransactionID != i {
			t.Errorf("TransactionID = %d, want %d", ord.TransactionID, i)
		}
	}

	if got := store.NextID(); got != 3 {
		t.Errorf("NextID() after appends = %d, want 3", got)
	}
}

func TestAppendPersistsBeforeReturning(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), "order_database_2.csv")

	store, err := NewStore(path, 2, testFlushInterval, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	defer func() {
		_ = store.Close()
	}()

	if _, err := store.Append("FishCo", TypeSell, 4); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// The file must already hold the order, before any periodic flush.
	rows, err := storage.ReadRows(path, csvHeader)
	if err != nil {
		t.Fatalf("ReadRows() error = %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("Expected 1 persisted row, got %d", len(rows))
	}

	want := []string{"0", "FishCo", "sell", "4"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("Persisted row = %v, want %v", rows[0], want)

			break
		}
	}
}

func TestGetMissingOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, nil)

	if _, ok := store.Get(42); ok {
		t.Error("Expected lookup of unknown transaction id to report not found")
	}
}

func TestAfterFiltersByTransactionID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, [][]string{
		{"0", "GameStart", "buy", "5"},
		{"1", "FishCo", "sell", "2"},
		{"2", "GameStart", "buy", "1"},
		{"3", "BoarCo", "buy", "7"},
	})

	orders := store.After(1)
	if len(orders) != 2 {
		t.Fatalf("After(1) returned %d orders, want 2", len(orders))
	}

	if orders[0].TransactionID != 2 || orders[1].TransactionID != 3 {
		t.Errorf("After(1) ids = [%d %d], want [2 3]", orders[0].TransactionID, orders[1].TransactionID)
	}

	if got := store.After(10); got != nil {
		t.Errorf("After(10) = %v, want none", got)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, nil)

	ord := Order{TransactionID: 5, StockName: "GameStart", OrderType: TypeBuy, Quantity: 3}

	existed, err := store.Sync(ord)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if existed {
		t.Error("First Sync() reported existed=true")
	}

	// Follower tracks the synced id without incrementing beyond it.
	if got := store.NextID(); got != 5 {
		t.Errorf("NextID() after sync = %d, want 5", got)
	}

	existed, err = store.Sync(ord)
	if err != nil {
		t.Fatalf("Second Sync() error = %v", err)
	}

	if !existed {
		t.Error("Second Sync() reported existed=false")
	}

	if got := store.After(-1); len(got) != 1 {
		t.Errorf("Log holds %d orders after replayed sync, want 1", len(got))
	}
}

func TestBulkUpsertSkipsExistingIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, [][]string{
		{"0", "GameStart", "buy", "5"},
		{"1", "FishCo", "sell", "2"},
	})

	added, err := store.BulkUpsert([]Order{
		{TransactionID: 1, StockName: "FishCo", OrderType: TypeSell, Quantity: 2},
		{TransactionID: 2, StockName: "GameStart", OrderType: TypeBuy, Quantity: 1},
		{TransactionID: 3, StockName: "BoarCo", OrderType: TypeBuy, Quantity: 4},
	})
	if err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	if added != 2 {
		t.Errorf("BulkUpsert() added = %d, want 2", added)
	}

	if got := store.NextID(); got != 3 {
		t.Errorf("NextID() after bulk upsert = %d, want 3", got)
	}

	for _, id := range []int64{0, 1, 2, 3} {
		if _, ok := store.Get(id); !ok {
			t.Errorf("Expected order %d to be present", id)
		}
	}
}

func TestBulkUpsertReplayIsANoOp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, nil)

	batch := []Order{
		{TransactionID: 0, StockName: "GameStart", OrderType: TypeBuy, Quantity: 5},
		{TransactionID: 1, StockName: "FishCo", OrderType: TypeSell, Quantity: 2},
	}

	if _, err := store.BulkUpsert(batch); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	added, err := store.BulkUpsert(batch)
	if err != nil {
		t.Fatalf("Replayed BulkUpsert() error = %v", err)
	}

	if added != 0 {
		t.Errorf("Replayed BulkUpsert() added = %d, want 0", added)
	}

	if got := len(store.After(-1)); got != 2 {
		t.Errorf("Log holds %d orders after replay, want 2", got)
	}
}

func TestBulkUpsertEmptyBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, nil)

	added, err := store.BulkUpsert(nil)
	if err != nil {
		t.Fatalf("BulkUpsert(nil) error = %v", err)
	}

	if added != 0 {
		t.Errorf("BulkUpsert(nil) added = %d, want 0", added)
	}

	if got := store.NextID(); got != 0 {
		t.Errorf("NextID() after empty batch = %d, want 0", got)
	}
}

func TestConcurrentAppends(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := newTestStore(t, nil)

	const (
		workers          = 4
		appendsPerWorker = 5
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]bool)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < appendsPerWorker; j++ {
				ord, err := store.Append("GameStart", TypeBuy, 1)
				if err != nil {
					t.Errorf("Append() error = %v", err)

					return
				}

				mu.Lock()
				if ids[ord.TransactionID] {
					t.Errorf("Duplicate transaction id %d", ord.TransactionID)
				}

				ids[ord.TransactionID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	total := int64(workers * appendsPerWorker)
	if got := store.NextID(); got != total {
		t.Errorf("NextID() = %d, want %d", got, total)
	}

	// Ids are contiguous from 0.
	for i := int64(0); i < total; i++ {
		if !ids[i] {
			t.Errorf("Missing transaction id %d", i)
		}
	}
}
