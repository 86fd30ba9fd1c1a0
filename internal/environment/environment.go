// Package environment implements the Environment Detector (C2): a
// per-process environment fingerprint built once, cached for the life of
// the process, and never allowed to fail the caller — every probe catches
// its own error and substitutes "unknown"/false.
package environment

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/xping/xping-go-sdk/internal/xplog"
)

// NetworkMetrics is an optional connectivity snapshot: one measured round
// trip to the configured API host.
type NetworkMetrics struct {
	LatencyMs         float64 `json:"latencyMs"`
	Online            bool    `json:"online"`
	ConnectionType    string  `json:"connectionType,omitempty"`
	PacketLossPercent float64 `json:"packetLossPercent"`
}

// Info is the per-process environment fingerprint attached to a session.
type Info struct {
	MachineName      string            `json:"machineName"`
	OperatingSystem  string            `json:"operatingSystem"`
	RuntimeVersion   string            `json:"runtimeVersion"`
	Framework        string            `json:"framework"`
	EnvironmentName  string            `json:"environmentName"`
	IsCIEnvironment  bool              `json:"isCIEnvironment"`
	NetworkMetrics   *NetworkMetrics   `json:"networkMetrics,omitempty"`
	CustomProperties map[string]string `json:"customProperties,omitempty"`
}

// DetectorConfig carries the subset of Configuration the detector needs.
type DetectorConfig struct {
	Environment             string
	AutoDetectCIEnvironment bool
	CollectNetworkMetrics   bool
	APIEndpoint             string
}

// Detector builds and caches an Info for the life of a process.
type Detector struct {
	cfg DetectorConfig
	log *xplog.Logger

	once   sync.Once
	cached Info

	netMu    sync.Mutex
	netCache map[string]*NetworkMetrics
}

// New constructs a Detector. cfg is copied; the detector never mutates it.
func New(cfg DetectorConfig, log *xplog.Logger) *Detector {
	if log == nil {
		log = xplog.Nop()
	}
	return &Detector{cfg: cfg, log: log, netCache: make(map[string]*NetworkMetrics)}
}

// Detect returns the cached Info, building it on first call.
func (d *Detector) Detect() Info {
	d.once.Do(func() {
		d.cached = d.build()
	})
	return d.cached
}

func (d *Detector) build() Info {
	info := Info{
		MachineName:     safeMachineName(),
		OperatingSystem: safeOperatingSystem(),
		RuntimeVersion:  runtime.Version(),
		Framework:       "go:" + runtime.Version(),
	}

	ciTags, isCI, platform := detectCI()
	info.IsCIEnvironment = isCI
	info.CustomProperties = ciTags
	if info.CustomProperties == nil {
		info.CustomProperties = map[string]string{}
	}
	if platform != "" {
		info.CustomProperties["ciPlatform"] = platform
	}
	if isContainer() {
		info.CustomProperties["container"] = "true"
	}

	info.EnvironmentName = resolveEnvironmentName(d.cfg, isCI)

	if d.cfg.CollectNetworkMetrics {
		info.NetworkMetrics = d.networkMetrics(d.cfg.APIEndpoint)
	}

	return info
}

// resolveEnvironmentName resolves in priority order: the XPING_ENVIRONMENT
// env var, then CI auto-detect, then the configured environment, then
// DOTNET_ENVIRONMENT/ASPNETCORE_ENVIRONMENT, then "Local".
func resolveEnvironmentName(cfg DetectorConfig, isCI bool) string {
	if v := os.Getenv("XPING_ENVIRONMENT"); v != "" {
		return v
	}
	if cfg.AutoDetectCIEnvironment && isCI {
		return "CI"
	}
	if cfg.Environment != "" {
		return cfg.Environment
	}
	if v := os.Getenv("DOTNET_ENVIRONMENT"); v != "" {
		return v
	}
	if v := os.Getenv("ASPNETCORE_ENVIRONMENT"); v != "" {
		return v
	}
	return "Local"
}

func safeMachineName() (name string) {
	defer func() {
		if recover() != nil {
			name = "unknown"
		}
	}()
	n, err := os.Hostname()
	if err != nil || n == "" {
		return "unknown"
	}
	return n
}

func safeOperatingSystem() (osName string) {
	defer func() {
		if recover() != nil {
			osName = "unknown"
		}
	}()
	info, err := host.Info()
	if err != nil || info == nil {
		return runtime.GOOS
	}
	return strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
}
