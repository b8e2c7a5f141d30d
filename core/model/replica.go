package model

type Health string

const (
	HealthGood     Health = "good"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

// HealthFor classifies a replica set by its live copy count.
func HealthFor(available int) Health {
	switch {
	case available >= 2:
		return HealthGood
	case available == 1:
		return HealthDegraded
	default:
		return HealthFailed
	}
}

type FailedLocation struct {
	Location string
	Reason   string
}

// StoreResult reports a replication attempt. Partial replication is a
// valid outcome: FailedLocations lists targets that could not take a
// copy, and ReplicationAchieved may be below the configured factor.
type StoreResult struct {
	ContentID           string
	StoredLocations     []string
	FailedLocations     []FailedLocation
	ReplicationAchieved int
}

// VerifyResult classifies replica health on demand. RemoteAssumed
// counts locations reported available without any liveness check
// (remote endpoints are assumed present).
type VerifyResult struct {
	ContentID     string
	Available     int
	Missing       int
	RemoteAssumed int
	Health        Health
}
