// Package snapshot turns a Swarm /info payload into a typed ClusterSnapshot.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

const (
	cpuToken    = "CPUs"
	memoryToken = "Memory"
	gibUnit     = "GiB"

	// Used memory reported in any unit other than GiB is taken as MB.
	mbToGiB = 0.001
)

type infoResponse struct {
	NCPU         *float64          `json:"NCPU"`
	DriverStatus []json.RawMessage `json:"DriverStatus"`
}

// Parse decodes raw and extracts per-node CPU share and memory usage from the
// DriverStatus lines. Every failure wraps models.ErrParse.
func Parse(raw []byte) (*models.ClusterSnapshot, error) {
	return ParseAt(raw, time.Now())
}

func ParseAt(raw []byte, at time.Time) (*models.ClusterSnapshot, error) {
	var info infoResponse
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	if info.NCPU == nil {
		return nil, fmt.Errorf("%w: missing NCPU field", models.ErrParse)
	}
	if info.DriverStatus == nil {
		return nil, fmt.Errorf("%w: missing DriverStatus field", models.ErrParse)
	}

	snap := &models.ClusterSnapshot{
		Timestamp:        at,
		TotalCPUCapacity: *info.NCPU,
		CPUNodes:         make([]models.NodeCPUInfo, 0),
		MemoryNodes:      make([]models.NodeMemoryInfo, 0),
	}

	for i, rawLine := range info.DriverStatus {
		line, err := statusLine(rawLine)
		if err != nil {
			return nil, fmt.Errorf("%w: DriverStatus[%d]: %v", models.ErrParse, i, err)
		}

		switch {
		case strings.Contains(line, cpuToken):
			node, err := parseCPULine(line)
			if err != nil {
				return nil, fmt.Errorf("%w: DriverStatus[%d]: %v", models.ErrParse, i, err)
			}
			snap.CPUNodes = append(snap.CPUNodes, node)
			snap.UsedCPUShare += node.Used

		case strings.Contains(line, memoryToken):
			node, err := parseMemoryLine(line)
			if err != nil {
				return nil, fmt.Errorf("%w: DriverStatus[%d]: %v", models.ErrParse, i, err)
			}
			snap.MemoryNodes = append(snap.MemoryNodes, node)
		}
	}

	return snap, nil
}

// statusLine flattens a DriverStatus entry. Swarm reports [key, value] pairs;
// those are joined with a comma so "key,value" splits the same way as a
// pre-flattened string entry.
func statusLine(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var parts []string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("entry is neither a string nor a string list")
	}
	return strings.Join(parts, ","), nil
}

// ratioHalves returns the two sides of "label,<used>/<total>".
func ratioHalves(line string) (string, string, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return "", "", fmt.Errorf("no value after label in %q", line)
	}
	halves := strings.Split(fields[1], "/")
	if len(halves) < 2 {
		return "", "", fmt.Errorf("value %q is not a used/total ratio", fields[1])
	}
	return halves[0], halves[1], nil
}

func parseCPULine(line string) (models.NodeCPUInfo, error) {
	usedStr, totalStr, err := ratioHalves(line)
	if err != nil {
		return models.NodeCPUInfo{}, err
	}

	used, err := number(usedStr)
	if err != nil {
		return models.NodeCPUInfo{}, fmt.Errorf("used CPUs: %v", err)
	}
	total, err := number(totalStr)
	if err != nil {
		return models.NodeCPUInfo{}, fmt.Errorf("total CPUs: %v", err)
	}

	return models.NodeCPUInfo{Used: used, Total: total}, nil
}

func parseMemoryLine(line string) (models.NodeMemoryInfo, error) {
	usedStr, totalStr, err := ratioHalves(line)
	if err != nil {
		return models.NodeMemoryInfo{}, err
	}

	used, err := number(usedStr)
	if err != nil {
		return models.NodeMemoryInfo{}, fmt.Errorf("used memory: %v", err)
	}
	total, err := number(totalStr)
	if err != nil {
		return models.NodeMemoryInfo{}, fmt.Errorf("total memory: %v", err)
	}

	if unit(usedStr) != gibUnit {
		used *= mbToGiB
	}

	return models.NodeMemoryInfo{UsedGiB: used, TotalGiB: total}, nil
}

// number keeps only digits and dots, so "2.05 GiB" yields 2.05.
func number(s string) (float64, error) {
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, fmt.Errorf("no numeric value in %q", s)
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", digits)
	}
	return v, nil
}

// unit is whatever remains once digits and dots are removed.
func unit(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return -1
		}
		return r
	}, s))
}
