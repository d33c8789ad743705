package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

const swarmInfo = `{
	"NCPU": 4,
	"DriverStatus": [
		["Role", "primary"],
		["Nodes", "2"],
		["node-1", "10.0.0.4:2375"],
		["  └ Reserved CPUs", "2 / 2"],
		["  └ Reserved Memory", "7.5 GiB / 8 GiB"],
		["node-2", "10.0.0.5:2375"],
		["  └ Reserved CPUs", "1 / 2"],
		["  └ Reserved Memory", "512 MiB / 8 GiB"]
	]
}`

func TestParse_SwarmInfo(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	snap, err := ParseAt([]byte(swarmInfo), at)
	require.NoError(t, err)

	assert.Equal(t, at, snap.Timestamp)
	assert.Equal(t, 4.0, snap.TotalCPUCapacity)
	assert.Equal(t, 3.0, snap.UsedCPUShare)
	assert.Equal(t, []models.NodeCPUInfo{{Used: 2, Total: 2}, {Used: 1, Total: 2}}, snap.CPUNodes)

	require.Len(t, snap.MemoryNodes, 2)
	assert.InDelta(t, 7.5, snap.MemoryNodes[0].UsedGiB, 1e-9)
	assert.InDelta(t, 8.0, snap.MemoryNodes[0].TotalGiB, 1e-9)
	assert.InDelta(t, 0.512, snap.MemoryNodes[1].UsedGiB, 1e-9)
	assert.Equal(t, 2, snap.NodeCount())
}

func TestParse_FlatStringLines(t *testing.T) {
	raw := `{"NCPU": 2, "DriverStatus": ["Reserved CPUs, 2/2", "Reserved Memory, 1024 / 4GiB"]}`

	snap, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 2.0, snap.UsedCPUShare)
	require.Len(t, snap.MemoryNodes, 1)
	assert.InDelta(t, 1.024, snap.MemoryNodes[0].UsedGiB, 1e-9)
	assert.InDelta(t, 4.0, snap.MemoryNodes[0].TotalGiB, 1e-9)
}

func TestParse_MemoryUnitNormalisation(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected float64
	}{
		{"GiB used as is", `["Memory", "3 GiB / 8 GiB"]`, 3},
		{"MiB treated as MB", `["Memory", "3000 MiB / 8 GiB"]`, 3},
		{"bytes treated as MB", `["Memory", "0 B / 8 GiB"]`, 0},
		{"no unit treated as MB", `["Memory", "1500 / 8"]`, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"NCPU": 1, "DriverStatus": [` + tt.line + `]}`
			snap, err := Parse([]byte(raw))
			require.NoError(t, err)
			require.Len(t, snap.MemoryNodes, 1)
			assert.InDelta(t, tt.expected, snap.MemoryNodes[0].UsedGiB, 1e-9)
		})
	}
}

func TestParse_TokensAreCaseSensitive(t *testing.T) {
	raw := `{"NCPU": 2, "DriverStatus": [["reserved cpus", "2 / 2"], ["reserved memory", "1 GiB / 2 GiB"]]}`

	snap, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, snap.CPUNodes)
	assert.Empty(t, snap.MemoryNodes)
	assert.Equal(t, 0.0, snap.UsedCPUShare)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `<html>`},
		{"missing NCPU", `{"DriverStatus": []}`},
		{"missing DriverStatus", `{"NCPU": 4}`},
		{"NCPU not numeric", `{"NCPU": "four", "DriverStatus": []}`},
		{"entry not string", `{"NCPU": 4, "DriverStatus": [42]}`},
		{"cpu line without value", `{"NCPU": 4, "DriverStatus": ["Reserved CPUs"]}`},
		{"cpu line without ratio", `{"NCPU": 4, "DriverStatus": [["Reserved CPUs", "2"]]}`},
		{"cpu used not numeric", `{"NCPU": 4, "DriverStatus": [["Reserved CPUs", "n/a / 2"]]}`},
		{"memory total not numeric", `{"NCPU": 4, "DriverStatus": [["Reserved Memory", "1 GiB / unknown"]]}`},
		{"memory malformed number", `{"NCPU": 4, "DriverStatus": [["Reserved Memory", "1.2.3 GiB / 8 GiB"]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Parse([]byte(tt.raw))
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, models.ErrParse)
		})
	}
}
