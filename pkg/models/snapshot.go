package models

import "time"

// NodeCPUInfo is the reserved/total CPU share reported for one node.
type NodeCPUInfo struct {
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// NodeMemoryInfo is the memory usage of one node, normalised to GiB.
type NodeMemoryInfo struct {
	UsedGiB  float64 `json:"used_gib"`
	TotalGiB float64 `json:"total_gib"`
}

func (n NodeMemoryInfo) FreeGiB() float64 {
	return n.TotalGiB - n.UsedGiB
}

// ClusterSnapshot is a point-in-time view of fleet resource usage. It is
// never mutated after the parser returns it.
type ClusterSnapshot struct {
	Timestamp        time.Time        `json:"timestamp"`
	TotalCPUCapacity float64          `json:"total_cpu_capacity"`
	UsedCPUShare     float64          `json:"used_cpu_share"`
	CPUNodes         []NodeCPUInfo    `json:"cpu_nodes"`
	MemoryNodes      []NodeMemoryInfo `json:"memory_nodes"`
}

func (s *ClusterSnapshot) CPUHeadroom() float64 {
	return s.TotalCPUCapacity - s.UsedCPUShare
}

func (s *ClusterSnapshot) NodeCount() int {
	if len(s.MemoryNodes) > len(s.CPUNodes) {
		return len(s.MemoryNodes)
	}
	return len(s.CPUNodes)
}
