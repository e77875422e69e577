// Package parallel decides how many concurrent workers a parallel build
// step should use. On bare metal that is simply the logical core count,
// but inside a container the host count overstates what the process may
// actually consume: the cgroup CPU quota is the real ceiling.
package parallel

import (
	"errors"
	"fmt"
)

// UnlimitedQuota is the quota value cgroups report when the restriction
// mechanism is present but no limit is set.
const UnlimitedQuota = -1

// ErrInvalidCPULimit indicates a CPU limit whose period is not a
// positive number of microseconds.
var ErrInvalidCPULimit = errors.New("cpu limit period must be positive")

// CPULimit describes a container CPU-time restriction: the process may
// consume at most Quota microseconds of CPU time per Period microseconds
// of wall time. A nil *CPULimit means no restriction is expressed in the
// environment at all.
type CPULimit struct {
	Quota  int64
	Period int64
}

// Resolve returns the number of parallel workers to launch given an
// optional CPU restriction and the host's logical core count.
//
// Without a restriction (nil limit, or the unlimited sentinel quota) the
// host core count is used. A real quota is converted to workers with
// ceiling division, so a fractional core allocation rounds up to a whole
// worker rather than down. The result is never below 1.
func Resolve(lim *CPULimit, hostCores int) (int, error) {
	if lim == nil {
		return clampMin(hostCores), nil
	}
	if lim.Quota == UnlimitedQuota {
		return clampMin(hostCores), nil
	}
	if lim.Period <= 0 {
		return 0, fmt.Errorf("%w: got period %d with quota %d", ErrInvalidCPULimit, lim.Period, lim.Quota)
	}
	if lim.Quota <= 0 {
		// -1 is the only recognized sentinel; any other non-positive
		// quota is not a usable restriction, so fall back to the host.
		return clampMin(hostCores), nil
	}
	workers := (lim.Quota + lim.Period - 1) / lim.Period
	return clampMin(int(workers)), nil
}

func clampMin(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
