package xpingsdk

import (
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xping/xping-go-sdk/internal/xerrors"
)

// Configuration holds every option the SDK recognizes. Use
// DefaultConfiguration or LoadConfiguration to obtain one with the
// documented defaults applied.
type Configuration struct {
	APIEndpoint             string
	APIKey                  string
	ProjectID               string
	BatchSize               int
	FlushInterval           time.Duration
	Environment             string
	AutoDetectCIEnvironment bool
	Enabled                 bool
	CaptureStackTraces      bool
	EnableCompression       bool
	MaxRetries              int
	RetryDelay              time.Duration
	SamplingRate            float64
	UploadTimeout           time.Duration
	CollectNetworkMetrics   bool
	EnableOfflineQueue      bool

	// MaxRequestsPerSecond caps the rate of outbound upload attempts
	// (including retries). Zero, the default, disables the cap.
	MaxRequestsPerSecond float64
}

// DefaultConfiguration returns the documented defaults for every field
// that has one. APIEndpoint, APIKey, and ProjectID have no default; the
// caller (or LoadConfiguration's environment binding) must supply them.
func DefaultConfiguration() Configuration {
	return Configuration{
		BatchSize:               100,
		FlushInterval:           30 * time.Second,
		Environment:             "Local",
		AutoDetectCIEnvironment: true,
		Enabled:                 true,
		CaptureStackTraces:      true,
		EnableCompression:       true,
		MaxRetries:              3,
		RetryDelay:              2 * time.Second,
		SamplingRate:            1.0,
		UploadTimeout:           30 * time.Second,
		CollectNetworkMetrics:   true,
		EnableOfflineQueue:      false,
	}
}

// LoadConfiguration builds a Configuration from DefaultConfiguration,
// overlaid with any recognized XPING_* environment variables. This is the
// one place the SDK reads the process environment for configuration;
// everywhere else it consumes an already-validated Configuration value.
func LoadConfiguration() Configuration {
	cfg := DefaultConfiguration()
	bindEnv(&cfg)
	return cfg
}

func bindEnv(cfg *Configuration) {
	if v, ok := lookupEnv("APIENDPOINT"); ok {
		cfg.APIEndpoint = v
	}
	if v, ok := lookupEnv("APIKEY"); ok {
		cfg.APIKey = v
	}
	if v, ok := lookupEnv("PROJECTID"); ok {
		cfg.ProjectID = v
	}
	if v, ok := lookupEnvInt("BATCHSIZE"); ok {
		cfg.BatchSize = v
	}
	if v, ok := lookupEnvDuration("FLUSHINTERVAL"); ok {
		cfg.FlushInterval = v
	}
	if v, ok := lookupEnv("ENVIRONMENT"); ok {
		cfg.Environment = v
	}
	if v, ok := lookupEnvBool("AUTODETECTCIENVIRONMENT"); ok {
		cfg.AutoDetectCIEnvironment = v
	}
	if v, ok := lookupEnvBool("ENABLED"); ok {
		cfg.Enabled = v
	}
	if v, ok := lookupEnvBool("CAPTURESTACKTRACES"); ok {
		cfg.CaptureStackTraces = v
	}
	if v, ok := lookupEnvBool("ENABLECOMPRESSION"); ok {
		cfg.EnableCompression = v
	}
	if v, ok := lookupEnvInt("MAXRETRIES"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := lookupEnvDuration("RETRYDELAY"); ok {
		cfg.RetryDelay = v
	}
	if v, ok := lookupEnvFloat("SAMPLINGRATE"); ok {
		cfg.SamplingRate = v
	}
	if v, ok := lookupEnvDuration("UPLOADTIMEOUT"); ok {
		cfg.UploadTimeout = v
	}
	if v, ok := lookupEnvBool("COLLECTNETWORKMETRICS"); ok {
		cfg.CollectNetworkMetrics = v
	}
	if v, ok := lookupEnvBool("ENABLEOFFLINEQUEUE"); ok {
		cfg.EnableOfflineQueue = v
	}
	if v, ok := lookupEnvFloat("MAXREQUESTSPERSECOND"); ok {
		cfg.MaxRequestsPerSecond = v
	}
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv("XPING_" + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(name string) (int, bool) {
	v, ok := lookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvFloat(name string) (float64, bool) {
	v, ok := lookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func lookupEnvBool(name string) (bool, bool) {
	v, ok := lookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// isoDurationPattern recognizes a minimal ISO-8601 duration subset:
// PT[nH][nM][nS], e.g. "PT30S", "PT1M30S", "PT1H".
var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// lookupEnvDuration parses an XPING_<name> value as either an integer
// number of seconds or an ISO-8601 duration. Invalid values are ignored
// and the caller keeps its default.
func lookupEnvDuration(name string) (time.Duration, bool) {
	v, ok := lookupEnv(name)
	if !ok {
		return 0, false
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, true
	}
	return parseISO8601Duration(v)
}

func parseISO8601Duration(s string) (time.Duration, bool) {
	m := isoDurationPattern.FindStringSubmatch(strings.ToUpper(s))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, false
	}
	var total time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		total += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		mi, _ := strconv.Atoi(m[2])
		total += time.Duration(mi) * time.Minute
	}
	if m[3] != "" {
		s2, _ := strconv.ParseFloat(m[3], 64)
		total += time.Duration(s2 * float64(time.Second))
	}
	return total, true
}

// Validate checks every field against its allowed range. It is the only
// place in the SDK where a failure is raised synchronously to the caller
// rather than swallowed and counted.
func (c Configuration) Validate() error {
	if c.APIKey == "" {
		return xerrors.Wrap(xerrors.ConfigInvalid, "apiKey must not be empty")
	}
	if c.ProjectID == "" {
		return xerrors.Wrap(xerrors.ConfigInvalid, "projectId must not be empty")
	}
	u, err := url.Parse(c.APIEndpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return xerrors.Wrap(xerrors.ConfigInvalid, "apiEndpoint must be an http(s) URL, got %q", c.APIEndpoint)
	}
	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return xerrors.Wrap(xerrors.ConfigInvalid, "batchSize must be in [1,1000], got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return xerrors.Wrap(xerrors.ConfigInvalid, "flushInterval must be > 0")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return xerrors.Wrap(xerrors.ConfigInvalid, "maxRetries must be in [0,10], got %d", c.MaxRetries)
	}
	if c.SamplingRate < 0.0 || c.SamplingRate > 1.0 {
		return xerrors.Wrap(xerrors.ConfigInvalid, "samplingRate must be in [0.0,1.0], got %f", c.SamplingRate)
	}
	if c.UploadTimeout <= 0 {
		return xerrors.Wrap(xerrors.ConfigInvalid, "uploadTimeout must be > 0")
	}
	if c.MaxRequestsPerSecond < 0 {
		return xerrors.Wrap(xerrors.ConfigInvalid, "maxRequestsPerSecond must be >= 0, got %f", c.MaxRequestsPerSecond)
	}
	return nil
}
