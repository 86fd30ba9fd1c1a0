package environment

import (
	"net"
	"net/url"
	"time"
)

// networkMetrics measures a single round trip to endpoint's host and
// caches the result per endpoint for the life of the process. A failed
// measurement is cached as nil and never retried.
func (d *Detector) networkMetrics(endpoint string) *NetworkMetrics {
	d.netMu.Lock()
	defer d.netMu.Unlock()

	if cached, ok := d.netCache[endpoint]; ok {
		return cached
	}

	m := measureLatency(endpoint)
	d.netCache[endpoint] = m
	return m
}

func measureLatency(endpoint string) *NetworkMetrics {
	if endpoint == "" {
		return nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", host, 3*time.Second)
	if err != nil {
		return nil
	}
	defer conn.Close()
	latency := time.Since(start)

	return &NetworkMetrics{
		LatencyMs:      float64(latency.Microseconds()) / 1000.0,
		Online:         true,
		ConnectionType: "tcp",
	}
}
