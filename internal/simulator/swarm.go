// Package simulator models a small Docker Swarm cluster in memory. It renders
// the same /info payload a Swarm manager serves and grows when a node is
// provisioned, so the agent can run end to end without real infrastructure.
package simulator

import (
	"fmt"
	"math"
	"sync"
	"time"
)

type SwarmConfig struct {
	InitialNodes     int
	CPUsPerNode      int
	MemoryGiBPerNode float64
	CPUDemand        float64
	MemoryDemandGiB  float64
}

type NodeSim struct {
	Name      string
	Addr      string
	CPUs      int
	MemoryGiB float64
	CreatedAt time.Time
}

// Swarm spreads a cluster-wide CPU and memory reservation demand over its
// nodes, filling them in order.
type Swarm struct {
	nodes           []*NodeSim
	cpusPerNode     int
	memoryPerNode   float64
	cpuDemand       float64
	memoryDemandGiB float64
	mu              sync.RWMutex
}

// InfoResponse is the subset of the Swarm /info document the agent reads.
type InfoResponse struct {
	NCPU         int        `json:"NCPU"`
	MemTotal     int64      `json:"MemTotal"`
	DriverStatus [][]string `json:"DriverStatus"`
}

func NewSwarm(cfg SwarmConfig) *Swarm {
	if cfg.InitialNodes <= 0 {
		cfg.InitialNodes = 2
	}
	if cfg.CPUsPerNode <= 0 {
		cfg.CPUsPerNode = 2
	}
	if cfg.MemoryGiBPerNode <= 0 {
		cfg.MemoryGiBPerNode = 8
	}

	s := &Swarm{
		cpusPerNode:     cfg.CPUsPerNode,
		memoryPerNode:   cfg.MemoryGiBPerNode,
		cpuDemand:       cfg.CPUDemand,
		memoryDemandGiB: cfg.MemoryDemandGiB,
	}
	for i := 0; i < cfg.InitialNodes; i++ {
		s.addNodeLocked()
	}
	return s
}

func (s *Swarm) addNodeLocked() *NodeSim {
	idx := len(s.nodes)
	node := &NodeSim{
		Name:      fmt.Sprintf("swarm-node-%d", idx),
		Addr:      fmt.Sprintf("10.0.0.%d:2375", idx+4),
		CPUs:      s.cpusPerNode,
		MemoryGiB: s.memoryPerNode,
		CreatedAt: time.Now(),
	}
	s.nodes = append(s.nodes, node)
	return node
}

// AddNode joins a new worker and returns its name.
func (s *Swarm) AddNode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNodeLocked().Name
}

func (s *Swarm) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Swarm) SetCPUDemand(cpus float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuDemand = cpus
}

func (s *Swarm) SetMemoryDemand(gib float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryDemandGiB = gib
}

func (s *Swarm) Info() *InfoResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &InfoResponse{
		DriverStatus: [][]string{
			{"Role", "primary"},
			{"Strategy", "spread"},
			{"Nodes", fmt.Sprintf("%d", len(s.nodes))},
		},
	}

	cpuLeft := s.cpuDemand
	memLeft := s.memoryDemandGiB

	for _, node := range s.nodes {
		resp.NCPU += node.CPUs
		resp.MemTotal += int64(node.MemoryGiB * (1 << 30))

		cpuUsed := math.Min(math.Max(cpuLeft, 0), float64(node.CPUs))
		cpuLeft -= cpuUsed
		memUsed := math.Min(math.Max(memLeft, 0), node.MemoryGiB)
		memLeft -= memUsed

		resp.DriverStatus = append(resp.DriverStatus,
			[]string{node.Name, node.Addr},
			[]string{"  └ Status", "Healthy"},
			[]string{"  └ Reserved CPUs", fmt.Sprintf("%d / %d", int(cpuUsed), node.CPUs)},
			[]string{"  └ Reserved Memory", fmt.Sprintf("%s / %g GiB", formatMemory(memUsed), node.MemoryGiB)},
		)
	}

	return resp
}

// formatMemory reports sub-GiB reservations in MiB the way Swarm does.
func formatMemory(gib float64) string {
	if gib < 1 {
		return fmt.Sprintf("%.0f MiB", gib*1000)
	}
	return fmt.Sprintf("%.2f GiB", gib)
}
