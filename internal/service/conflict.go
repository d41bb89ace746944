package service

import (
	"time"

	"github.com/avandenbergh/erplink/internal/models"
)

type ConflictPolicy string

const (
	PolicyRemoteWins ConflictPolicy = "remote_wins" // Discard the local change, pull remote state
	PolicyLocalWins  ConflictPolicy = "local_wins"  // Force-push local state over the remote
	PolicyNewestWins ConflictPolicy = "newest_wins" // More recently modified side overwrites the other
)

// resolveDirection decides which side wins a divergence and returns the
// effective sync direction. Under newest_wins, equal timestamps fall back to
// the job's declared direction. Timestamps are compared raw; keeping both
// systems' clocks aligned is a deployment assumption.
func resolveDirection(policy ConflictPolicy, jobDirection models.SyncDirection, localTS, remoteTS time.Time) models.SyncDirection {
	switch policy {
	case PolicyRemoteWins:
		return models.DirectionRemoteToLocal
	case PolicyLocalWins:
		return models.DirectionLocalToRemote
	case PolicyNewestWins:
		if localTS.After(remoteTS) {
			return models.DirectionLocalToRemote
		}
		if remoteTS.After(localTS) {
			return models.DirectionRemoteToLocal
		}
	}
	return jobDirection
}
