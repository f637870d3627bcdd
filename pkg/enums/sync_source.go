package enums

import "fmt"

// SyncSource identifies who originated a quantity change.
type SyncSource string

const (
	SyncSourceChannel    SyncSource = "channel"
	SyncSourceStorefront SyncSource = "storefront"
	SyncSourceAutomation SyncSource = "automation"
	SyncSourceManual     SyncSource = "manual"
)

var validSyncSources = []SyncSource{
	SyncSourceChannel,
	SyncSourceStorefront,
	SyncSourceAutomation,
	SyncSourceManual,
}

func (s SyncSource) IsValid() bool {
	for _, candidate := range validSyncSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsLocal reports whether the change originated on this side of the channel
// boundary and therefore has to be pushed outward.
func (s SyncSource) IsLocal() bool {
	return s.IsValid() && s != SyncSourceChannel
}

func ParseSyncSource(value string) (SyncSource, error) {
	for _, candidate := range validSyncSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync source %q", value)
}
