// Package provision turns a freshly allocated GPU instance into an
// inference-ready host: CUDA toolkit, cuDNN, and the inference engine
// built from source. Steps run sequentially and the first failure
// aborts the run with no retry and no partial continuation.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/deepgrid/gpu-bootstrap/internal/cgroup"
	"github.com/deepgrid/gpu-bootstrap/internal/config"
	"github.com/deepgrid/gpu-bootstrap/internal/parallel"
	"github.com/deepgrid/gpu-bootstrap/internal/status"
	"github.com/deepgrid/gpu-bootstrap/internal/sysinfo"
)

// prereqPackages are the build dependencies of the inference engine.
var prereqPackages = []string{
	"build-essential",
	"cmake",
	"git",
	"wget",
	"ca-certificates",
	"libcurl4-openssl-dev",
}

// cloneFunc clones a git repository. Injectable for tests.
type cloneFunc func(ctx context.Context, path string, o *git.CloneOptions) error

// Provisioner orchestrates the installation and build steps.
type Provisioner struct {
	cfg     *config.Config
	run     Runner
	probe   *cgroup.Probe
	tracker *status.Tracker
	logger  *slog.Logger
	clone   cloneFunc
}

// New creates a provisioner using the host cgroup hierarchy.
func New(cfg *config.Config, run Runner, tracker *status.Tracker, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		cfg:     cfg,
		run:     run,
		probe:   cgroup.NewProbe(),
		tracker: tracker,
		logger:  logger,
		clone: func(ctx context.Context, path string, o *git.CloneOptions) error {
			_, err := git.PlainCloneContext(ctx, path, false, o)
			return err
		},
	}
}

// Run executes every provisioning step in order, stopping at the first
// failure.
func (p *Provisioner) Run(ctx context.Context) error {
	host := sysinfo.Collect()
	p.logger.Info("provisioning host",
		"cpu", host.CPUName,
		"cores", host.Cores,
		"ram_gb", host.RAMGB,
	)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"install-prerequisites", p.installPrerequisites},
		{"install-cuda", p.installCUDA},
		{"write-cuda-profile", p.writeCUDAProfile},
		{"clone-engine", p.cloneEngine},
		{"build-engine", p.buildEngine},
	}

	for _, s := range steps {
		p.tracker.SetStep(s.name)
		p.logger.Info("provision step started", "step", s.name)
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		p.logger.Info("provision step finished", "step", s.name)
	}
	return nil
}

func (p *Provisioner) installPrerequisites(ctx context.Context) error {
	if err := p.run.Run(ctx, "apt-get", "update"); err != nil {
		return err
	}
	args := append([]string{"install", "-y"}, prereqPackages...)
	return p.run.Run(ctx, "apt-get", args...)
}

func (p *Provisioner) installCUDA(ctx context.Context) error {
	keyring := "/tmp/cuda-keyring.deb"
	if err := p.run.Run(ctx, "wget", "-qO", keyring, p.cfg.CUDAKeyringURL); err != nil {
		return err
	}
	if err := p.run.Run(ctx, "dpkg", "-i", keyring); err != nil {
		return err
	}
	if err := p.run.Run(ctx, "apt-get", "update"); err != nil {
		return err
	}
	return p.run.Run(ctx, "apt-get", "install", "-y",
		"cuda-toolkit-"+p.cfg.CUDAVersion,
		p.cfg.CUDNNPackage,
	)
}

// writeCUDAProfile exports the CUDA environment for login shells. The
// running process does not need it; the built engine binaries do.
func (p *Provisioner) writeCUDAProfile(_ context.Context) error {
	content := `export PATH=/usr/local/cuda/bin${PATH:+:${PATH}}
export LD_LIBRARY_PATH=/usr/local/cuda/lib64${LD_LIBRARY_PATH:+:${LD_LIBRARY_PATH}}
`
	if err := os.MkdirAll(filepath.Dir(p.cfg.CUDAProfilePath), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(p.cfg.CUDAProfilePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p.cfg.CUDAProfilePath, err)
	}
	return nil
}

func (p *Provisioner) cloneEngine(ctx context.Context) error {
	if _, err := os.Stat(p.cfg.EngineSrcDir); err == nil {
		p.logger.Info("engine source already present, skipping clone", "dir", p.cfg.EngineSrcDir)
		return nil
	}

	err := p.clone(ctx, p.cfg.EngineSrcDir, &git.CloneOptions{
		URL:           p.cfg.EngineRepoURL,
		ReferenceName: plumbing.NewTagReferenceName(p.cfg.EngineRef),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return fmt.Errorf("clone %s at %s: %w", p.cfg.EngineRepoURL, p.cfg.EngineRef, err)
	}
	return nil
}

func (p *Provisioner) buildEngine(ctx context.Context) error {
	workers, err := p.buildParallelism()
	if err != nil {
		return err
	}
	p.logger.Info("building engine", "parallelism", workers)

	buildDir := filepath.Join(p.cfg.EngineSrcDir, "build")
	if err := p.run.Run(ctx, "cmake",
		"-S", p.cfg.EngineSrcDir,
		"-B", buildDir,
		"-DCMAKE_BUILD_TYPE=Release",
		"-DGGML_CUDA=ON",
	); err != nil {
		return err
	}

	return p.run.Run(ctx, "cmake",
		"--build", buildDir,
		"--config", "Release",
		"--parallel", fmt.Sprintf("%d", workers),
	)
}

// buildParallelism sizes the build worker pool from the container CPU
// allocation, falling back to the host core count when unrestricted.
func (p *Provisioner) buildParallelism() (int, error) {
	lim, err := p.probe.Detect()
	if err != nil {
		return 0, fmt.Errorf("detect cpu limit: %w", err)
	}
	workers, err := parallel.Resolve(lim, sysinfo.HostCores())
	if err != nil {
		return 0, fmt.Errorf("resolve parallelism: %w", err)
	}
	return workers, nil
}
