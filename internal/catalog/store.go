// Package catalog implements the stock catalog service: the single
// authoritative store of stock records, its HTTP surface, and the client the
// other services use to reach it.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tradecore-io/tradecore/internal/storage"
)

// Sentinel errors for catalog store operations.
var (
	// ErrStockNotFound is returned when the named stock is not in the catalog.
	ErrStockNotFound = errors.New("stock not found")

	// ErrInsufficientStock is returned when an update would drive quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidFlushInterval is returned when the periodic flush interval is not positive.
	ErrInvalidFlushInterval = errors.New("flush interval must be greater than zero")
)

// csvHeader is the persisted catalog schema.
var csvHeader = []string{"name", "price", "quantity", "volume"}

const (
	// flushShutdownTimeout is the maximum time Close waits for the flusher goroutine.
	flushShutdownTimeout = 5 * time.Second

	priceBits = 64
	intBase   = 10
)

// Stock is a single catalog record.
//
// Quantity is the number of shares currently available to trade; it never goes
// negative. Volume counts every share traded, bought or sold, and only grows.
type Stock struct {
	Name     string
	Price    float64
	Quantity int64
	Volume   int64
}

// Store holds the catalog in memory under a multi-reader/single-writer lock
// and keeps a CSV file on disk in sync with it.
//
// Durability model: every successful update rewrites the file before the
// update is acknowledged, and a background flusher rewrites it every
// flushInterval as a safety net. The periodic flush copies the map under a
// read lock and performs file I/O outside any lock; the update path holds the
// write lock across its flush so a success is never acknowledged before it is
// on disk.
type Store struct {
	path          string
	logger        *slog.Logger
	flushInterval time.Duration

	mu     sync.RWMutex
	stocks map[string]Stock

	flushStop chan struct{} // Signal to stop flusher goroutine
	flushDone chan struct{} // Signal flusher has stopped
	closeOnce sync.Once
}

// NewStore loads the catalog from path, creating an empty file when none
// exists, and starts the periodic flusher.
func NewStore(path string, flushInterval time.Duration, logger *slog.Logger) (*Store, error) {
	if flushInterval <= 0 {
		return nil, ErrInvalidFlushInterval
	}

	if err := storage.EnsureFile(path, csvHeader); err != nil {
		return nil, fmt.Errorf("prepare catalog file: %w", err)
	}

	s := &Store{
		path:          path,
		logger:        logger,
		flushInterval: flushInterval,
		stocks:        make(map[string]Stock),
		flushStop:     make(chan struct{}),
		flushDone:     make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	go s.runFlusher()

	logger.Info("Catalog store loaded",
		slog.String("path", path),
		slog.Int("stocks", len(s.stocks)),
		slog.Duration("flush_interval", flushInterval),
	)

	return s, nil
}

// load reads the CSV file into the in-memory map. Called once from NewStore
// before the store is shared, so no lock is taken.
func (s *Store) load() error {
	rows, err := storage.ReadRows(s.path, csvHeader)
	if err != nil {
		return fmt.Errorf("load catalog from %s: %w", s.path, err)
	}

	for i, row := range rows {
		stock, err := parseStockRow(row)
		if err != nil {
			return fmt.Errorf("load catalog from %s: row %d: %w", s.path, i+1, err)
		}

		s.stocks[stock.Name] = stock
	}

	return nil
}

// Lookup returns the stock for name. The second return value reports whether
// the stock exists. Concurrent lookups run under a shared lock.
func (s *Store) Lookup(name string) (Stock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock, ok := s.stocks[name]

	return stock, ok
}

// Update applies quantityChange to the named stock and flushes to disk before
// returning. Negative quantityChange removes shares (a buy), positive adds
// them back (a sell). Volume grows by |quantityChange| on every successful
// non-zero update.
//
// Returns ErrStockNotFound for an unknown name and ErrInsufficientStock when
// the change would drive quantity below zero; in both cases the record is
// unchanged and the current state is returned. A flush failure rolls the
// in-memory change back so a failed update is never observable.
func (s *Store) Update(name string, quantityChange int64) (Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.stocks[name]
	if !ok {
		return Stock{}, ErrStockNotFound
	}

	newQuantity := prev.Quantity + quantityChange
	if newQuantity < 0 {
		return prev, ErrInsufficientStock
	}

	updated := prev
	updated.Quantity = newQuantity

	if quantityChange != 0 {
		updated.Volume += abs(quantityChange)
	}

	s.stocks[name] = updated

	if err := storage.WriteRows(s.path, csvHeader, s.rowsLocked()); err != nil {
		// Roll back: the change must not be visible if durability failed.
		s.stocks[name] = prev

		return prev, fmt.Errorf("flush after update of %s: %w", name, err)
	}

	return updated, nil
}

// Flush rewrites the CSV file from a snapshot of the current catalog.
// File I/O happens outside the lock so flushing never starves writers.
func (s *Store) Flush() error {
	s.mu.RLock()
	rows := s.rowsLocked()
	s.mu.RUnlock()

	if err := storage.WriteRows(s.path, csvHeader, rows); err != nil {
		return fmt.Errorf("flush catalog to %s: %w", s.path, err)
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
			s.logger.Warn("Catalog flusher did not stop within timeout")
		}

		flushErr = s.Flush()
	})

	return flushErr
}

// runFlusher is the background goroutine that periodically flushes the
// catalog to disk. Runs on a ticker until flushStop is closed via Close().
// Flush failures are logged, not fatal: the per-update flush is the real
// durability guarantee.
func (s *Store) runFlusher() {
	defer close(s.flushDone)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.flushStop:
			s.logger.Info("Stopping catalog flusher")

			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("Periodic catalog flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// rowsLocked renders the catalog as CSV rows sorted by name.
// Caller must hold at least a read lock.
func (s *Store) rowsLocked() [][]string {
	names := make([]string, 0, len(s.stocks))
	for name := range s.stocks {
		names = append(names, name)
	}

	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		stock := s.stocks[name]
		rows = append(rows, []string{
			stock.Name,
			strconv.FormatFloat(stock.Price, 'g', -1, priceBits),
			strconv.FormatInt(stock.Quantity, intBase),
			strconv.FormatInt(stock.Volume, intBase),
		})
	}

	return rows
}

func parseStockRow(row []string) (Stock, error) {
	price, err := strconv.ParseFloat(row[1], priceBits)
	if err != nil {
		return Stock{}, fmt.Errorf("parse price %q: %w", row[1], err)
	}

	quantity, err := strconv.ParseInt(row[2], intBase, 64)
	if err != nil {
		return Stock{}, fmt.Errorf("parse quantity %q: %w", row[2], err)
	}

	volume, err := strconv.ParseInt(row[3], intBase, 64)
	if err != nil {
		return Stock{}, fmt.Errorf("parse volume %q: %w", row[3], err)
	}

	return Stock{Name: row[0], Price: price, Quantity: quantity, Volume: volume}, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}
