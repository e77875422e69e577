// Package sysinfo reports static facts about the host hardware.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// HostCores returns the number of logical processors visible to the
// operating system. Container-level CPU restrictions are not reflected
// here; the cgroup probe covers those.
func HostCores() int {
	return runtime.NumCPU()
}

// Summary describes the host for the bootstrap report.
type Summary struct {
	CPUName string  `json:"cpu_name"`
	Cores   int     `json:"cores"`
	RAMGB   float64 `json:"ram_gb"`
}

// Collect probes /proc for a host summary. Fields that cannot be read
// are left at their zero values.
func Collect() Summary {
	return Summary{
		CPUName: cpuName(),
		Cores:   HostCores(),
		RAMGB:   totalRAMGB(),
	}
}

func cpuName() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return "unknown"
}

func totalRAMGB() float64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			var kb uint64
			fmt.Sscanf(line, "MemTotal: %d kB", &kb)
			return float64(kb) / (1024 * 1024)
		}
	}
	return 0
}
