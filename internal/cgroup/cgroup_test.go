package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgrid/gpu-bootstrap/internal/parallel"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetectV2Restricted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cpu.max", "250000 100000\n")

	lim, err := NewProbeAt(root).Detect()
	require.NoError(t, err)
	require.NotNil(t, lim)
	assert.Equal(t, int64(250000), lim.Quota)
	assert.Equal(t, int64(100000), lim.Period)
}

func TestDetectV2Unlimited(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cpu.max", "max 100000\n")

	lim, err := NewProbeAt(root).Detect()
	require.NoError(t, err)
	require.NotNil(t, lim)
	assert.Equal(t, int64(parallel.UnlimitedQuota), lim.Quota)
	assert.Equal(t, int64(100000), lim.Period)
}

func TestDetectV2Malformed(t *testing.T) {
	for _, content := range []string{"", "100000", "abc 100000", "100000 xyz", "1 2 3"} {
		root := t.TempDir()
		writeFile(t, root, "cpu.max", content)

		_, err := NewProbeAt(root).Detect()
		assert.Error(t, err, "content %q", content)
	}
}

func TestDetectV1Restricted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cpu/cpu.cfs_quota_us", "400000\n")
	writeFile(t, root, "cpu/cpu.cfs_period_us", "100000\n")

	lim, err := NewProbeAt(root).Detect()
	require.NoError(t, err)
	require.NotNil(t, lim)
	assert.Equal(t, int64(400000), lim.Quota)
	assert.Equal(t, int64(100000), lim.Period)
}

func TestDetectV1UnlimitedSentinel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cpu/cpu.cfs_quota_us", "-1\n")
	writeFile(t, root, "cpu/cpu.cfs_period_us", "100000\n")

	lim, err := NewProbeAt(root).Detect()
	require.NoError(t, err)
	require.NotNil(t, lim)
	assert.Equal(t, int64(parallel.UnlimitedQuota), lim.Quota)
}

func TestDetectV1QuotaWithoutPeriod(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cpu/cpu.cfs_quota_us", "400000\n")

	_, err := NewProbeAt(root).Detect()
	assert.Error(t, err)
}

func TestDetectNoSignal(t *testing.T) {
	lim, err := NewProbeAt(t.TempDir()).Detect()
	require.NoError(t, err)
	assert.Nil(t, lim)
}

func TestDetectFeedsResolver(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cpu.max", "250000 100000")

	lim, err := NewProbeAt(root).Detect()
	require.NoError(t, err)

	workers, err := parallel.Resolve(lim, 64)
	require.NoError(t, err)
	assert.Equal(t, 3, workers)
}
