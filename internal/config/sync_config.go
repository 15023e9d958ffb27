package config

import "time"

type Sync struct{}

var _ SyncConfig = Sync{}

// GetOutboxMaxEntries caps the pending write queue. Zero means unbounded.
func (Sync) GetOutboxMaxEntries() int {
	max := GetEnvInt("OUTBOX_MAX_ENTRIES", 500)
	if max < 0 {
		return 0
	}
	return max
}

// GetConnectivityProbeURL defaults to the API base URL; any HTTP answer counts as online.
func (Sync) GetConnectivityProbeURL() string {
	return GetEnv("CONNECTIVITY_PROBE_URL", EnvVars{}.GetAPIURL())
}

// GetConnectivityProbeInterval returns the time between connectivity probes.
func (Sync) GetConnectivityProbeInterval() time.Duration {
	return GetEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 10*time.Second)
}
