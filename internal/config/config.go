package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Config holds all bootstrap configuration loaded from environment variables.
type Config struct {
	// Debug enables verbose logging.
	Debug bool

	// LogDir is the directory for log files.
	LogDir string

	// ModelDir is the directory model files are downloaded into.
	ModelDir string

	// ManifestPath is the path to the model manifest. When the file does
	// not exist the built-in manifest is used.
	ManifestPath string

	// StatusPort is the port for the status HTTP server; 0 disables it.
	StatusPort int

	// CUDAVersion is the apt version suffix of the CUDA toolkit, e.g. "12-4".
	CUDAVersion string

	// CUDAKeyringURL is the URL of the NVIDIA CUDA repository keyring package.
	CUDAKeyringURL string

	// CUDNNPackage is the cuDNN apt package matching CUDAVersion.
	CUDNNPackage string

	// CUDAProfilePath is where the CUDA environment profile drop-in is written.
	CUDAProfilePath string

	// EngineRepoURL is the git URL of the inference engine source.
	EngineRepoURL string

	// EngineRef is the tag of the inference engine to build.
	EngineRef string

	// EngineSrcDir is where the inference engine source is cloned.
	EngineSrcDir string
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogDir:          "/var/log/gpu-bootstrap",
		ModelDir:        "/var/lib/gpu-bootstrap/models",
		ManifestPath:    "/etc/gpu-bootstrap/models.yaml",
		CUDAVersion:     "12-4",
		CUDAKeyringURL:  "https://developer.download.nvidia.com/compute/cuda/repos/ubuntu2204/x86_64/cuda-keyring_1.1-1_all.deb",
		CUDNNPackage:    "libcudnn9-cuda-12",
		CUDAProfilePath: "/etc/profile.d/cuda-env.sh",
		EngineRepoURL:   "https://github.com/ggerganov/llama.cpp",
		EngineRef:       "b4458",
		EngineSrcDir:    "/usr/local/src/llama.cpp",
	}
}

// Load reads configuration from environment variables, applying defaults
// for anything not explicitly set. Returns an error if a value is malformed.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Debug = os.Getenv("GPU_BOOTSTRAP_DEBUG") == "true"

	if v := os.Getenv("GPU_BOOTSTRAP_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_MODEL_DIR"); v != "" {
		cfg.ModelDir = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_MANIFEST"); v != "" {
		cfg.ManifestPath = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_STATUS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return nil, fmt.Errorf("GPU_BOOTSTRAP_STATUS_PORT must be a valid port, got %q", v)
		}
		cfg.StatusPort = port
	}

	if v := os.Getenv("GPU_BOOTSTRAP_CUDA_VERSION"); v != "" {
		cfg.CUDAVersion = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_CUDA_KEYRING_URL"); v != "" {
		cfg.CUDAKeyringURL = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_CUDNN_PACKAGE"); v != "" {
		cfg.CUDNNPackage = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_CUDA_PROFILE"); v != "" {
		cfg.CUDAProfilePath = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_ENGINE_REPO"); v != "" {
		cfg.EngineRepoURL = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_ENGINE_REF"); v != "" {
		cfg.EngineRef = v
	}

	if v := os.Getenv("GPU_BOOTSTRAP_ENGINE_SRC_DIR"); v != "" {
		cfg.EngineSrcDir = v
	}

	return cfg, nil
}

// NewLogger creates a structured logger that writes to a log file.
func NewLogger(cfg *Config, name string) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logPath := cfg.LogDir + "/" + name + ".log"
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
