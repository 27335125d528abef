// Package order implements a single order service replica: the append-only
// transaction log, its HTTP surface, and the client used by the frontend to
// reach replicas.
package order

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tradecore-io/tradecore/internal/storage"
)

// Sentinel errors for order store operations.
var (
	// ErrInvalidFlushInterval is returned when the periodic flush interval is not positive.
	ErrInvalidFlushInterval = errors.New("flush interval must be greater than zero")
)

// csvHeader is the persisted order log schema.
var csvHeader = []string{"transaction_id", "stock_name", "order_type", "quantity"}

const (
	// flushShutdownTimeout is the maximum time Close waits for the flusher goroutine.
	flushShutdownTimeout = 5 * time.Second

	intBase = 10
)

// Store holds one replica's transaction log: an append-only slice in arrival
// order, an id-to-record map for lookups, and the next transaction id to
// assign. A CSV file mirrors the log on disk.
//
// The leader's log is gap-free and id-ordered because ids are assigned and
// appended under the same write lock. Follower logs are in arrival order of
// replication calls, which may differ from id order; lookups go through the
// map, so that is safe.
//
// Every mutation flushes to disk while still holding the write lock and rolls
// back on flush failure, so an acknowledged mutation is always durable. A
// background flusher rewrites the file every flushInterval as a safety net.
type Store struct {
	path          string
	replicaID     int
	logger        *slog.Logger
	flushInterval time.Duration

	mu     sync.RWMutex
	log    []Order
	byID   map[int64]Order
	nextID int64

	flushStop chan struct{} // Signal to stop flusher goroutine
	flushDone chan struct{} // Signal flusher has stopped
	closeOnce sync.Once
}

// NewStore loads the replica's log from path, creating an empty file when
// none exists, and starts the periodic flusher. The next transaction id
// starts at zero for an empty log, otherwise one past the highest id on disk.
func NewStore(path string, replicaID int, flushInterval time.Duration, logger *slog.Logger) (*Store, error) {
	if flushInterval <= 0 {
		return nil, ErrInvalidFlushInterval
	}

	if err := storage.EnsureFile(path, csvHeader); err != nil {
		return nil, fmt.Errorf("prepare order file: %w", err)
	}

	s := &Store{
		path:          path,
		replicaID:     replicaID,
		logger:        logger,
		flushInterval: flushInterval,
		byID:          make(map[int64]Order),
		flushStop:     make(chan struct{}),
		flushDone:     make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	go s.runFlusher()

	logger.Info("Order store loaded",
		slog.Int("replica_id", replicaID),
		slog.String("path", path),
		slog.Int("orders", len(s.log)),
		slog.Int64("next_transaction_id", s.nextID),
	)

	return s, nil
}

// load reads the CSV file into memory. Called once from NewStore before the
// store is shared, so no lock is taken.
func (s *Store) load() error {
	rows, err := storage.ReadRows(s.path, csvHeader)
	if err != nil {
		return fmt.Errorf("load orders from %s: %w", s.path, err)
	}

	for i, row := range rows {
		ord, err := parseOrderRow(row)
		if err != nil {
			return fmt.Errorf("load orders from %s: row %d: %w", s.path, i+1, err)
		}

		s.log = append(s.log, ord)
		s.byID[ord.TransactionID] = ord

		if ord.TransactionID >= s.nextID {
			s.nextID = ord.TransactionID + 1
		}
	}

	return nil
}

// Append assigns the next transaction id to a new order, appends it to the
// log, and flushes to disk before returning. Id assignment, append, and flush
// happen under one write lock, so ids handed out by a leader are strictly
// increasing and contiguous.
func (s *Store) Append(stockName, orderType string, quantity int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord := Order{
		TransactionID: s.nextID,
		StockName:     stockName,
		OrderType:     orderType,
		Quantity:      quantity,
	}

	s.log = append(s.log, ord)
	s.byID[ord.TransactionID] = ord
	s.nextID++

	if err := storage.WriteRows(s.path, csvHeader, s.rowsLocked()); err != nil {
		// Roll back: the order must not be visible if durability failed.
		s.log = s.log[:len(s.log)-1]
		delete(s.byID, ord.TransactionID)
		s.nextID--

		return Order{}, fmt.Errorf("flush after append: %w", err)
	}

	return ord, nil
}

// Get returns the order with the given transaction id.
func (s *Store) Get(transactionID int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.byID[transactionID]

	return ord, ok
}

// NextID returns the transaction id that would be assigned next.
func (s *Store) NextID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nextID
}

// After returns all orders whose transaction id is strictly greater than
// transactionID, in log (arrival) order. On a leader that is also id order.
func (s *Store) After(transactionID int64) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []Order

	for _, ord := range s.log {
		if ord.TransactionID > transactionID {
			orders = append(orders, ord)
		}
	}

	return orders
}

// Sync upserts a single replicated order. If the id is already present the
// call is a no-op and reports existed=true. Otherwise the order is appended,
// the next id is raised to at least the synced id, and the log is flushed.
func (s *Store) Sync(ord Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[ord.TransactionID]; ok {
		return true, nil
	}

	prevNextID := s.nextID

	s.log = append(s.log, ord)
	s.byID[ord.TransactionID] = ord
	s.nextID = max(s.nextID, ord.TransactionID)

	if err := storage.WriteRows(s.path, csvHeader, s.rowsLocked()); err != nil {
		s.log = s.log[:len(s.log)-1]
		delete(s.byID, ord.TransactionID)
		s.nextID = prevNextID

		return false, fmt.Errorf("flush after sync: %w", err)
	}

	return false, nil
}

// BulkUpsert applies a batch of replicated orders in the order given,
// skipping ids already present, then flushes once. The next id is raised to
// at least the last id in the batch, present or not, matching the catch-up
// protocol where batches come from a leader in id order.
//
// Returns how many orders were actually added.
func (s *Store) BulkUpsert(data []Order) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevLen := len(s.log)
	prevNextID := s.nextID
	added := make([]int64, 0, len(data))

	for _, ord := range data {
		if _, ok := s.byID[ord.TransactionID]; ok {
			continue
		}

		s.log = append(s.log, ord)
		s.byID[ord.TransactionID] = ord
		added = append(added, ord.TransactionID)
	}

	if len(data) > 0 {
		s.nextID = max(s.nextID, data[len(data)-1].TransactionID)
	}

	if err := storage.WriteRows(s.path, csvHeader, s.rowsLocked()); err != nil {
		s.log = s.log[:prevLen]

		for _, id := range added {
			delete(s.byID, id)
		}

		s.nextID = prevNextID

		return 0, fmt.Errorf("flush after bulk upsert: %w", err)
	}

	return len(added), nil
}

// Flush rewrites the CSV file from a snapshot of the current log.
// File I/O happens outside the lock so flushing never starves writers.
func (s *Store) Flush() error {
	s.mu.RLock()
	rows := s.rowsLocked()
	s.mu.RUnlock()

	if err := storage.WriteRows(s.path, csvHeader, rows); err != nil {
		return fmt.Errorf("flush orders to %s: %w", s.path, err)
	}

	return nil
}

// Close stops the periodic flusher and performs a final flush.
// Safe to call multiple times.
func (s *Store) Close() error {
	var flushErr error

	s.closeOnce.Do(func() {
		close(s.flushStop)

		select {
		case <-s.flushDone:
		case <-time.After(flushShutdownTimeout):
			s.logger.Warn("Order flusher did not stop within timeout")
		}

		flushErr = s.Flush()
	})

	return flushErr
}

// runFlusher is the background goroutine that periodically flushes the log
// to disk. Runs on a ticker until flushStop is closed via Close().
func (s *Store) runFlusher() {
	defer close(s.flushDone)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.flushStop:
			s.logger.Info("Stopping order flusher", slog.Int("replica_id", s.replicaID))

			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("Periodic order flush failed",
					slog.Int("replica_id", s.replicaID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// rowsLocked renders the log as CSV rows in arrival order.
// Caller must hold at least a read lock.
func (s *Store) rowsLocked() [][]string {
	rows := make([][]string, 0, len(s.log))
	for _, ord := range s.log {
		rows = append(rows, []string{
			strconv.FormatInt(ord.TransactionID, intBase),
			ord.StockName,
			ord.OrderType,
			strconv.FormatInt(ord.Quantity, intBase),
		})
	}

	return rows
}

func parseOrderRow(row []string) (Order, error) {
	transactionID, err := strconv.ParseInt(row[0], intBase, 64)
	if err != nil {
		return Order{}, fmt.Errorf("parse transaction id %q: %w", row[0], err)
	}

	quantity, err := strconv.ParseInt(row[3], intBase, 64)
	if err != nil {
		return Order{}, fmt.Errorf("parse quantity %q: %w", row[3], err)
	}

	return Order{
		TransactionID: transactionID,
		StockName:     row[1],
		OrderType:     row[2],
		Quantity:      quantity,
	}, nil
}
