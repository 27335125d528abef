// Package replication implements the frontend's side of order cluster
// coordination: the static replica topology, leader election, per-order
// fan-out to followers, and catch-up synchronization of recovered replicas.
//
// Order replicas know nothing about each other. Every replication decision
// is made here, in a single process-wide Coordinator owned by the frontend
// server, so there is exactly one authority for who the leader is and which
// followers are in sync.
package replication

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tradecore-io/tradecore/internal/config"
	"github.com/tradecore-io/tradecore/internal/order"
)

// ReplicaSpec describes one order replica in the static topology.
type ReplicaSpec struct {
	ID      int    `yaml:"id"`
	Address string `yaml:"address"`
}

// Topology is the set of order replicas the frontend coordinates.
type Topology struct {
	Replicas []ReplicaSpec `yaml:"replicas"`
}

// DefaultConfigPath is the default location for the replica topology file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".tradecore.yaml"

// ConfigPathEnvVar is the environment variable name for a custom topology path.
const ConfigPathEnvVar = "REPLICAS_CONFIG"

// DefaultReplicaCount is the number of order replicas assumed when no
// topology file is present.
const DefaultReplicaCount = 3

// DefaultTopology returns the assumed deployment when nothing is configured:
// replicas 1..3 on the host named by ORDER_IP, each bound to the order base
// port plus its replica id.
func DefaultTopology() *Topology {
	host := config.GetEnvStr("ORDER_IP", "localhost")

	replicas := make([]ReplicaSpec, 0, DefaultReplicaCount)
	for id := 1; id <= DefaultReplicaCount; id++ {
		replicas = append(replicas, ReplicaSpec{
			ID:      id,
			Address: fmt.Sprintf("http://%s:%d", host, order.BasePort+id),
		})
	}

	return &Topology{Replicas: replicas}
}

// LoadTopology loads the replica topology from a YAML file at the given path.
//
// Behavior:
//   - Returns the default topology (not an error) if the file doesn't exist
//   - Returns the default topology + logs a warning if the YAML is invalid
//     (graceful degradation)
//   - Drops entries with a non-positive id or an empty address
//   - Returns the parsed topology on success
//
// This graceful degradation ensures the frontend can start against the
// standard three-replica deployment even without a topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - the default deployment is well known
			slog.Debug("Topology file not found, using default replica topology",
				slog.String("path", path))

			return DefaultTopology(), nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read topology file, using default replica topology",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultTopology(), nil
	}

	if len(data) == 0 {
		return DefaultTopology(), nil
	}

	topo := &Topology{}
	if err := yaml.Unmarshal(data, topo); err != nil {
		// Invalid YAML - log warning and continue with the defaults
		slog.Warn("Failed to parse topology file, using default replica topology",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultTopology(), nil
	}

	valid := make([]ReplicaSpec, 0, len(topo.Replicas))

	for _, spec := range topo.Replicas {
		if spec.ID <= 0 || spec.Address == "" {
			slog.Warn("Ignoring invalid replica entry in topology file",
				slog.String("path", path),
				slog.Int("replica_id", spec.ID),
				slog.String("address", spec.Address))

			continue
		}

		valid = append(valid, spec)
	}

	if len(valid) == 0 {
		slog.Warn("Topology file has no usable replicas, using default replica topology",
			slog.String("path", path))

		return DefaultTopology(), nil
	}

	topo.Replicas = valid

	return topo, nil
}

// LoadTopologyFromEnv loads the topology from the path in the REPLICAS_CONFIG
// environment variable. Falls back to ".tradecore.yaml" in the current
// directory if not set.
func LoadTopologyFromEnv() (*Topology, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadTopology(path)
}
