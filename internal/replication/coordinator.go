package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/tradecore-io/tradecore/internal/order"
)

const (
	// DefaultClientTimeout bounds every RPC the coordinator issues to an
	// order replica. A timed-out call is treated the same as an unreachable
	// replica.
	DefaultClientTimeout = 3 * time.Second

	// DefaultSweepInterval is how often the background fault sweep probes
	// unhealthy replicas for recovery.
	DefaultSweepInterval = 3 * time.Second

	// catchUpRetryBase is the initial Fibonacci backoff between catch-up
	// attempts against a freshly recovered replica.
	catchUpRetryBase = 500 * time.Millisecond

	// catchUpMaxRetries caps catch-up attempts within one sweep. A replica
	// that still fails stays unhealthy and is retried on the next sweep.
	catchUpMaxRetries = 3
)

// ErrNoLeader is returned when no order replica answers a health check
// during election.
var ErrNoLeader = errors.New("leader election failed")

// Replica is a point-in-time view of one order replica as the coordinator
// sees it.
type Replica struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
	Leader  bool   `json:"leader"`
}

// replicaState is the mutable record behind a Replica snapshot. The id,
// address, and client never change after construction; healthy is guarded
// by the coordinator mutex.
type replicaState struct {
	id      int
	address string
	client  *order.Client
	healthy bool
}

// Coordinator owns the frontend's view of the order cluster: which replica
// is leader, which followers are in sync, and how a fallen replica gets
// caught back up. All order traffic from the frontend goes through it.
//
// The replica set is fixed at construction and kept sorted by descending id,
// which is also the election preference order. Only the healthy flags and
// the leader designation change at runtime, under a read-write mutex that is
// never held across an outbound RPC.
type Coordinator struct {
	logger        *slog.Logger
	sweepInterval time.Duration

	mu       sync.RWMutex
	replicas []*replicaState
	leaderID int

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewCoordinator builds a coordinator for the given topology and starts its
// background fault sweep. Call Close to stop the sweep. Non-positive
// timeouts fall back to the package defaults.
func NewCoordinator(topo *Topology, clientTimeout, sweepInterval time.Duration, logger *slog.Logger) *Coordinator {
	if clientTimeout <= 0 {
		clientTimeout = DefaultClientTimeout
	}

	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	replicas := make([]*replicaState, 0, len(topo.Replicas))
	for _, spec := range topo.Replicas {
		replicas = append(replicas, &replicaState{
			id:      spec.ID,
			address: spec.Address,
			client:  order.NewClient(spec.Address, clientTimeout),
		})
	}

	sort.Slice(replicas, func(i, j int) bool {
		return replicas[i].id > replicas[j].id
	})

	c := &Coordinator{
		logger:        logger,
		sweepInterval: sweepInterval,
		replicas:      replicas,
		sweepStop:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}

	go c.runSweeper()

	return c
}

// Close stops the background fault sweep. Safe to call more than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.sweepStop)
		<-c.sweepDone
	})
}

// Leader returns the current leader's replica id, or false when no leader
// is designated.
func (c *Coordinator) Leader() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.leaderID, c.leaderID != 0
}

// Replicas returns a snapshot of every replica in ascending id order.
func (c *Coordinator) Replicas() []Replica {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Replica, 0, len(c.replicas))
	for _, r := range c.replicas {
		out = append(out, Replica{
			ID:      r.id,
			Address: r.address,
			Healthy: r.healthy,
			Leader:  r.id == c.leaderID,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// ElectLeader probes replicas in descending id order and designates the
// first one that answers a health check. Followers are re-derived from the
// remaining replicas. When nobody answers, the leader is cleared and
// ErrNoLeader is returned.
func (c *Coordinator) ElectLeader(ctx context.Context) (int, error) {
	for _, r := range c.replicas {
		if err := r.client.Health(ctx); err != nil {
			c.logger.Warn("Replica failed election health check",
				slog.Int("replica_id", r.id),
				slog.String("error", err.Error()))
			c.setHealthy(r.id, false)

			continue
		}

		c.mu.Lock()
		c.leaderID = r.id
		r.healthy = true
		c.mu.Unlock()

		c.logger.Info("Elected order leader",
			slog.Int("replica_id", r.id),
			slog.String("address", r.address))

		c.refreshFollowers(ctx)

		return r.id, nil
	}

	c.mu.Lock()
	c.leaderID = 0
	c.mu.Unlock()

	c.logger.Error("No order replica answered election health checks")

	return 0, ErrNoLeader
}

// refreshFollowers health-checks every non-leader replica and updates its
// healthy flag.
func (c *Coordinator) refreshFollowers(ctx context.Context) {
	leaderID, _ := c.Leader()

	for _, r := range c.replicas {
		if r.id == leaderID {
			continue
		}

		if err := r.client.Health(ctx); err != nil {
			c.logger.Warn("Follower failed health check",
				slog.Int("replica_id", r.id),
				slog.String("error", err.Error()))
			c.setHealthy(r.id, false)

			continue
		}

		c.setHealthy(r.id, true)
	}
}

// PlaceOrder routes a placement to the current leader, electing one first if
// needed. An unreachable leader triggers one re-election and one retry.
func (c *Coordinator) PlaceOrder(ctx context.Context, stockName, orderType string, quantity int64) (order.PlaceResponse, error) {
	var resp order.PlaceResponse

	err := c.withLeaderRetry(ctx, func(ctx context.Context, client *order.Client) error {
		var err error
		resp, err = client.Place(ctx, stockName, orderType, quantity)

		return err
	})

	return resp, err
}

// LookupOrder routes an order lookup to the current leader with the same
// re-election and retry discipline as PlaceOrder.
func (c *Coordinator) LookupOrder(ctx context.Context, transactionID int64) (order.LookupResponse, error) {
	var resp order.LookupResponse

	err := c.withLeaderRetry(ctx, func(ctx context.Context, client *order.Client) error {
		var err error
		resp, err = client.Lookup(ctx, transactionID)

		return err
	})

	return resp, err
}

// withLeaderRetry runs op against the current leader. When the leader is
// unreachable it is demoted, a new election runs, and op is retried exactly
// once against the new leader. Non-transient errors are returned as-is
// without touching the leader designation.
func (c *Coordinator) withLeaderRetry(ctx context.Context, op func(ctx context.Context, client *order.Client) error) error {
	leaderID, ok := c.Leader()
	if !ok {
		var err error

		leaderID, err = c.ElectLeader(ctx)
		if err != nil {
			return err
		}
	}

	err := op(ctx, c.clientFor(leaderID))
	if err == nil || !errors.Is(err, order.ErrUnavailable) {
		return err
	}

	c.logger.Warn("Order leader unreachable, re-running election",
		slog.Int("replica_id", leaderID),
		slog.String("error", err.Error()))
	c.demote(leaderID)

	newLeaderID, err := c.ElectLeader(ctx)
	if err != nil {
		return err
	}

	return op(ctx, c.clientFor(newLeaderID))
}

// ReplicateOrder fans a just-placed order out to every healthy follower.
// Each follower is health-checked first; one that fails the check is demoted
// and skipped. Sync failures are collected and returned for logging, they
// never fail the originating request.
func (c *Coordinator) ReplicateOrder(ctx context.Context, ord order.Order) error {
	followers := c.followerStates()
	if len(followers) == 0 {
		return nil
	}

	var (
		errMu sync.Mutex
		merr  *multierror.Error
	)

	collect := func(err error) {
		errMu.Lock()
		merr = multierror.Append(merr, err)
		errMu.Unlock()
	}

	eg, ctx := errgroup.WithContext(ctx)

	for _, f := range followers {
		eg.Go(func() error {
			if err := f.client.Health(ctx); err != nil {
				c.logger.Warn("Demoting follower that failed pre-sync health check",
					slog.Int("replica_id", f.id),
					slog.String("error", err.Error()))
				c.demote(f.id)
				collect(fmt.Errorf("follower %d health check: %w", f.id, err))

				return nil
			}

			resp, err := f.client.Sync(ctx, ord)
			if err != nil {
				collect(fmt.Errorf("sync order %d to follower %d: %w", ord.TransactionID, f.id, err))

				return nil
			}

			if !resp.Success {
				collect(fmt.Errorf("sync order %d to follower %d: %s", ord.TransactionID, f.id, resp.Message))
			}

			return nil
		})
	}

	// Tasks report through merr so one failure does not hide the others.
	_ = eg.Wait()

	return merr.ErrorOrNil()
}

// Start runs the initial election. Failure is logged, not fatal: the first
// request that needs the order service re-runs the election, and the fault
// sweep keeps probing in the background.
func (c *Coordinator) Start(ctx context.Context) {
	if _, err := c.ElectLeader(ctx); err != nil {
		c.logger.Warn("Initial leader election failed, will retry on demand",
			slog.String("error", err.Error()))
	}
}

// runSweeper is the background fault check loop. Each tick it probes every
// unhealthy replica and catches up the ones that answer.
func (c *Coordinator) runSweeper() {
	defer close(c.sweepDone)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweepOnce(context.Background())
		case <-c.sweepStop:
			return
		}
	}
}

// sweepOnce probes every unhealthy replica. One that answers its health
// check is caught up from the current leader and marked healthy again.
func (c *Coordinator) sweepOnce(ctx context.Context) {
	for _, r := range c.unhealthyStates() {
		if err := r.client.Health(ctx); err != nil {
			c.logger.Debug("Replica still down",
				slog.Int("replica_id", r.id),
				slog.String("error", err.Error()))

			continue
		}

		if err := c.catchUp(ctx, r); err != nil {
			c.logger.Warn("Failed to catch up recovered replica, will retry next sweep",
				slog.Int("replica_id", r.id),
				slog.String("error", err.Error()))

			continue
		}

		c.setHealthy(r.id, true)
		c.logger.Info("Replica recovered and caught up",
			slog.Int("replica_id", r.id))
	}
}

// catchUp brings a recovered replica's log up to date from the current
// leader, retrying transient failures with Fibonacci backoff.
func (c *Coordinator) catchUp(ctx context.Context, r *replicaState) error {
	leaderID, ok := c.Leader()
	if !ok {
		return ErrNoLeader
	}

	if leaderID == r.id {
		return nil
	}

	leader := c.clientFor(leaderID)

	backoff := retry.NewFibonacci(catchUpRetryBase)

	return retry.Do(ctx, retry.WithMaxRetries(catchUpMaxRetries, backoff), func(ctx context.Context) error {
		err := c.syncFromLeader(ctx, r, leader)
		if err != nil && errors.Is(err, order.ErrUnavailable) {
			return retry.RetryableError(err)
		}

		return err
	})
}

// syncFromLeader performs one catch-up round: ask the recovered replica for
// the id it would assign next, fetch everything the leader holds from one id
// below that point, and bulk-upsert the batch into the replica.
//
// The window opens one id below the reported next id because a replica that
// restarted with an empty log reports 0 and still needs the record with id
// 0. The upsert skips ids the replica already holds, so the overlap is
// harmless.
func (c *Coordinator) syncFromLeader(ctx context.Context, r *replicaState, leader *order.Client) error {
	latest, err := r.client.LatestID(ctx)
	if err != nil {
		return fmt.Errorf("latest id from replica %d: %w", r.id, err)
	}

	missing, err := leader.OrdersAfter(ctx, latest-1)
	if err != nil {
		return fmt.Errorf("fetch orders after %d from leader: %w", latest-1, err)
	}

	if len(missing) == 0 {
		return nil
	}

	resp, err := r.client.BulkUpsert(ctx, missing)
	if err != nil {
		return fmt.Errorf("bulk upsert %d orders into replica %d: %w", len(missing), r.id, err)
	}

	if !resp.Success {
		return fmt.Errorf("bulk upsert into replica %d: %s", r.id, resp.Message)
	}

	c.logger.Info("Synced missing orders into recovered replica",
		slog.Int("replica_id", r.id),
		slog.Int("order_count", len(missing)))

	return nil
}

// demote marks a replica unhealthy and clears the leader designation if it
// held it.
func (c *Coordinator) demote(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.replicas {
		if r.id == id {
			r.healthy = false

			break
		}
	}

	if c.leaderID == id {
		c.leaderID = 0
	}
}

func (c *Coordinator) setHealthy(id int, healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.replicas {
		if r.id == id {
			r.healthy = healthy

			return
		}
	}
}

// clientFor returns the client for a replica id. Callers pass ids obtained
// from the coordinator itself, so a miss means a programming error.
func (c *Coordinator) clientFor(id int) *order.Client {
	for _, r := range c.replicas {
		if r.id == id {
			return r.client
		}
	}

	return nil
}

// followerStates snapshots the healthy non-leader replicas.
func (c *Coordinator) followerStates() []*replicaState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*replicaState, 0, len(c.replicas))

	for _, r := range c.replicas {
		if r.healthy && r.id != c.leaderID {
			out = append(out, r)
		}
	}

	return out
}

// unhealthyStates snapshots the replicas currently marked down.
func (c *Coordinator) unhealthyStates() []*replicaState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*replicaState, 0, len(c.replicas))

	for _, r := range c.replicas {
		if !r.healthy {
			out = append(out, r)
		}
	}

	return out
}
