// Package cgroup reads the container CPU restriction, if any, from the
// cgroup filesystem. It understands both the v2 unified hierarchy
// (cpu.max) and the v1 cpu controller (cpu.cfs_quota_us and
// cpu.cfs_period_us).
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/deepgrid/gpu-bootstrap/internal/parallel"
)

// UnifiedMountPoint is where the kernel mounts the cgroup hierarchy.
const UnifiedMountPoint = "/sys/fs/cgroup"

const (
	v2MaxFile    = "cpu.max"
	v1QuotaFile  = "cpu/cpu.cfs_quota_us"
	v1PeriodFile = "cpu/cpu.cfs_period_us"
)

// Probe reads the CPU restriction from a cgroup filesystem root.
type Probe struct {
	root string
}

// NewProbe returns a probe over the host cgroup mount point.
func NewProbe() *Probe {
	return &Probe{root: UnifiedMountPoint}
}

// NewProbeAt returns a probe over an alternate root. Used in tests.
func NewProbeAt(root string) *Probe {
	return &Probe{root: root}
}

// Detect returns the CPU restriction expressed by the cgroup hierarchy,
// or nil when no restriction signal is present. An entirely absent
// hierarchy is a valid state (bare metal, unsupported platform), not an
// error; malformed file contents are.
func (p *Probe) Detect() (*parallel.CPULimit, error) {
	if p.unified() {
		return p.detectV2()
	}
	return p.detectV1()
}

// unified reports whether the probe root is a cgroup v2 hierarchy,
// either by filesystem magic or by the presence of cpu.max (the latter
// covers plain-directory roots used in tests).
func (p *Probe) unified() bool {
	var st unix.Statfs_t
	if err := unix.Statfs(p.root, &st); err == nil && st.Type == unix.CGROUP2_SUPER_MAGIC {
		return true
	}
	_, err := os.Stat(filepath.Join(p.root, v2MaxFile))
	return err == nil
}

func (p *Probe) detectV2() (*parallel.CPULimit, error) {
	path := filepath.Join(p.root, v2MaxFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return nil, fmt.Errorf("parse %s: expected \"<quota> <period>\", got %q", path, strings.TrimSpace(string(data)))
	}

	period, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s period: %w", path, err)
	}

	// "max" means the controller is present but no limit is set.
	if fields[0] == "max" {
		return &parallel.CPULimit{Quota: parallel.UnlimitedQuota, Period: period}, nil
	}

	quota, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s quota: %w", path, err)
	}
	return &parallel.CPULimit{Quota: quota, Period: period}, nil
}

func (p *Probe) detectV1() (*parallel.CPULimit, error) {
	quota, ok, err := p.readInt(v1QuotaFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	period, ok, err := p.readInt(v1PeriodFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cgroup v1 quota present but %s is missing", v1PeriodFile)
	}

	return &parallel.CPULimit{Quota: quota, Period: period}, nil
}

func (p *Probe) readInt(name string) (int64, bool, error) {
	path := filepath.Join(p.root, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, true, nil
}
