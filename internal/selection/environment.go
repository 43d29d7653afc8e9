// Package selection decides which sources to query for a page and how hard
// to push them, based on the runtime environment and each source's
// recent reliability.
package selection

import (
	"runtime"
	"strings"
	"time"
)

// NetworkType is the kind of link the process is on.
type NetworkType string

const (
	NetworkWifi     NetworkType = "wifi"
	NetworkEthernet NetworkType = "ethernet"
	NetworkCellular NetworkType = "cellular"
	NetworkOffline  NetworkType = "offline"
	NetworkUnknown  NetworkType = "unknown"
)

// ParseNetwork maps a config string onto a NetworkType.
func ParseNetwork(s string) NetworkType {
	switch NetworkType(strings.ToLower(strings.TrimSpace(s))) {
	case NetworkWifi:
		return NetworkWifi
	case NetworkEthernet:
		return NetworkEthernet
	case NetworkCellular, "mobile", "4g", "5g":
		return NetworkCellular
	case NetworkOffline, "none":
		return NetworkOffline
	}
	return NetworkUnknown
}

// DeviceTier buckets the host by available compute.
type DeviceTier string

const (
	DeviceLow  DeviceTier = "low"
	DeviceMid  DeviceTier = "mid"
	DeviceHigh DeviceTier = "high"
)

// NetworkQuality is a coarse link quality estimate.
type NetworkQuality string

const (
	QualityPoor NetworkQuality = "poor"
	QualityFair NetworkQuality = "fair"
	QualityGood NetworkQuality = "good"
)

// ParseQuality maps a config string onto a NetworkQuality. Empty or unknown
// values return "" so the network type decides.
func ParseQuality(s string) NetworkQuality {
	switch q := NetworkQuality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityPoor, QualityFair, QualityGood:
		return q
	}
	return ""
}

// Environment is one observation of the runtime conditions.
type Environment struct {
	Network NetworkType
	Device  DeviceTier
	Quality NetworkQuality
	Peak    bool
}

// Config feeds environment detection. Zero values mean "detect" or "unknown".
type Config struct {
	Network  NetworkType
	Quality  NetworkQuality
	MemoryMB int

	// PeakStart and PeakEnd are local hours [start, end). Equal values
	// disable the peak window.
	PeakStart int
	PeakEnd   int

	Backoff BackoffTiers
}

// DefaultConfig uses an evening peak window and the standard backoff tiers.
func DefaultConfig() Config {
	return Config{
		Network:   NetworkUnknown,
		PeakStart: 19,
		PeakEnd:   23,
		Backoff:   DefaultBackoffTiers(),
	}
}

// Detect observes the environment at now.
func Detect(cfg Config, now time.Time) Environment {
	network := cfg.Network
	if network == "" {
		network = NetworkUnknown
	}
	quality := cfg.Quality
	if quality == "" {
		quality = defaultQuality(network)
	}
	return Environment{
		Network: network,
		Device:  deviceTier(runtime.NumCPU(), cfg.MemoryMB),
		Quality: quality,
		Peak:    inPeak(now.Hour(), cfg.PeakStart, cfg.PeakEnd),
	}
}

func defaultQuality(n NetworkType) NetworkQuality {
	switch n {
	case NetworkWifi, NetworkEthernet:
		return QualityGood
	case NetworkOffline:
		return QualityPoor
	}
	return QualityFair
}

// deviceTier classifies by CPU count, capped by memory when it is known.
func deviceTier(cpus, memoryMB int) DeviceTier {
	tier := DeviceLow
	switch {
	case cpus >= 8:
		tier = DeviceHigh
	case cpus >= 4:
		tier = DeviceMid
	}
	if memoryMB > 0 {
		switch {
		case memoryMB < 2048:
			tier = DeviceLow
		case memoryMB < 6144 && tier == DeviceHigh:
			tier = DeviceMid
		}
	}
	return tier
}

func inPeak(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// wraps midnight
	return hour >= start || hour < end
}
