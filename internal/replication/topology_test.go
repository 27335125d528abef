package replication

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTopology_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	topoPath := filepath.Join(tmpDir, "tradecore.yaml")

	content := `
replicas:
  - id: 1
    address: "http://order-1:50054"
  - id: 2
    address: "http://order-2:50055"
`
	err := os.WriteFile(topoPath, []byte(content), 0644)
	require.NoError(t, err)

	topo, err := LoadTopology(topoPath)

	require.NoError(t, err)
	require.NotNil(t, topo)
	assert.Len(t, topo.Replicas, 2)
	assert.Equal(t, 1, topo.Replicas[0].ID)
	assert.Equal(t, "http://order-1:50054", topo.Replicas[0].Address)
	assert.Equal(t, 2, topo.Replicas[1].ID)
	assert.Equal(t, "http://order-2:50055", topo.Replicas[1].Address)
}

func TestLoadTopology_MissingFile(t *testing.T) {
	t.Setenv("ORDER_IP", "localhost")

	topo, err := LoadTopology("/nonexistent/path/tradecore.yaml")

	// Missing file should fall back to the default deployment, no error
	require.NoError(t, err)
	require.NotNil(t, topo)
	assert.Len(t, topo.Replicas, DefaultReplicaCount)
	assert.Equal(t, 1, topo.Replicas[0].ID)
	assert.Equal(t, "http://localhost:50054", topo.Replicas[0].Address)
	assert.Equal(t, "http://localhost:50056", topo.Replicas[2].Address)
}

func TestLoadTopology_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	topoPath := filepath.Join(tmpDir, "tradecore.yaml")

	content := `
replicas:
  - id: [invalid yaml
`
	err := os.WriteFile(topoPath, []byte(content), 0644)
	require.NoError(t, err)

	topo, err := LoadTopology(topoPath)

	// Invalid YAML should fall back to the defaults with no error
	require.NoError(t, err)
	require.NotNil(t, topo)
	assert.Len(t, topo.Replicas, DefaultReplicaCount)
}

func TestLoadTopology_FiltersInvalidEntries(t *testing.T) {
	tmpDir := t.TempDir()
	topoPath := filepath.Join(tmpDir, "tradecore.yaml")

	content := `
replicas:
  - id: 0
    address: "http://order-0:50053"
  - id: 2
    address: ""
  - id: 3
    address: "http://order-3:50056"
`
	err := os.WriteFile(topoPath, []byte(content), 0644)
	require.NoError(t, err)

	topo, err := LoadTopology(topoPath)

	require.NoError(t, err)
	require.Len(t, topo.Replicas, 1)
	assert.Equal(t, 3, topo.Replicas[0].ID)
}

func TestLoadTopology_AllEntriesInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	topoPath := filepath.Join(tmpDir, "tradecore.yaml")

	content := `
replicas:
  - id: -1
    address: ""
`
	err := os.WriteFile(topoPath, []byte(content), 0644)
	require.NoError(t, err)

	topo, err := LoadTopology(topoPath)

	require.NoError(t, err)
	assert.Len(t, topo.Replicas, DefaultReplicaCount)
}

func TestLoadTopology_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	topoPath := filepath.Join(tmpDir, "tradecore.yaml")

	err := os.WriteFile(topoPath, []byte(""), 0644)
	require.NoError(t, err)

	topo, err := LoadTopology(topoPath)

	require.NoError(t, err)
	assert.Len(t, topo.Replicas, DefaultReplicaCount)
}

func TestLoadTopologyFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	topoPath := filepath.Join(tmpDir, "custom.yaml")

	content := `
replicas:
  - id: 7
    address: "http://order-7:50060"
`
	err := os.WriteFile(topoPath, []byte(content), 0644)
	require.NoError(t, err)

	t.Setenv(ConfigPathEnvVar, topoPath)

	topo, err := LoadTopologyFromEnv()

	require.NoError(t, err)
	require.Len(t, topo.Replicas, 1)
	assert.Equal(t, 7, topo.Replicas[0].ID)
}

func TestDefaultTopology_UsesOrderHostEnv(t *testing.T) {
	t.Setenv("ORDER_IP", "order.internal")

	topo := DefaultTopology()

	require.Len(t, topo.Replicas, DefaultReplicaCount)
	assert.Equal(t, "http://order.internal:50054", topo.Replicas[0].Address)
	assert.Equal(t, "http://order.internal:50055", topo.Replicas[1].Address)
	assert.Equal(t, "http://order.internal:50056", topo.Replicas[2].Address)
}
