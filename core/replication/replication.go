package replication

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkovac/depot/core/model"
	"github.com/dkovac/depot/lib/checksum"
	"github.com/dkovac/depot/lib/cmap"
	"github.com/dkovac/depot/lib/logger"
	"github.com/dkovac/depot/lib/utils"
)

var log, _ = logger.New("replication")

var (
	ErrNoLocations = errors.New("no storage locations configured")
)

// remoteSchemes mark locations that are opaque endpoint strings rather
// than local paths. Remote targets get no copy and no liveness check;
// Verify counts them as available and reports how many were assumed.
var remoteSchemes = []string{"http://", "https://", "s3://"}

func isRemote(location string) bool {
	for _, scheme := range remoteSchemes {
		if strings.HasPrefix(location, scheme) {
			return true
		}
	}

	return false
}

// Manager copies blobs to the first K configured locations and tracks
// where each content id landed.
type Manager struct {
	Locations []string
	Factor    int

	// Replicas maps content id to the locations holding a copy. The
	// list never exceeds Factor entries.
	Replicas cmap.Map[string, []string]
}

// NewManager builds a manager over an ordered location list. Local
// location directories are created up front; remote locations are left
// untouched.
func NewManager(locations []string, factor int) (*Manager, error) {
	if len(locations) == 0 {
		return nil, ErrNoLocations
	}
	if factor <= 0 {
		factor = 2
	}

	for _, location := range locations {
		if isRemote(location) {
			continue
		}
		if err := os.MkdirAll(location, 0750); err != nil {
			return nil, err
		}
	}

	return &Manager{
		Locations: locations,
		Factor:    factor,
		Replicas:  cmap.NewMap[string, []string](),
	}, nil
}

// Store copies the file into the first Factor locations, naming each
// copy by content id. contentID may be empty, in which case it is the
// SHA-256 of the file. Per-location copy failures are collected and
// reported; they never abort the remaining targets.
func (m *Manager) Store(filePath, contentID string) (*model.StoreResult, error) {
	if contentID == "" {
		sum, err := checksum.File(filePath)
		if err != nil {
			return nil, err
		}
		contentID = sum
	}

	result := &model.StoreResult{
		ContentID:       contentID,
		StoredLocations: make([]string, 0),
		FailedLocations: make([]model.FailedLocation, 0),
	}

	targets := m.Locations
	if len(targets) > m.Factor {
		targets = targets[:m.Factor]
	}

	for _, location := range targets {
		if isRemote(location) {
			result.StoredLocations = append(result.StoredLocations, location+"/"+contentID)
			continue
		}

		destPath := filepath.Join(location, contentID)
		err := utils.CopyFile(filePath, destPath)
		if err != nil {
			log.Errorw("store", "location", location, "err", err)
			result.FailedLocations = append(result.FailedLocations, model.FailedLocation{
				Location: location,
				Reason:   err.Error(),
			})
			continue
		}

		result.StoredLocations = append(result.StoredLocations, destPath)
	}

	result.ReplicationAchieved = len(result.StoredLocations)
	m.Replicas.Set(contentID, result.StoredLocations)

	log.Infow("store",
		"contentID", contentID,
		"achieved", result.ReplicationAchieved,
		"failed", len(result.FailedLocations),
	)

	return result, nil
}

// Retrieve copies the blob back from the first location that still has
// it. Remote locations are skipped: there is no transport behind them.
func (m *Manager) Retrieve(contentID, outputPath string) bool {
	locations, exists := m.Replicas.Get(contentID)
	if !exists {
		return false
	}

	for _, location := range *locations {
		if isRemote(location) {
			continue
		}

		if _, err := os.Stat(location); err != nil {
			continue
		}

		if err := utils.CopyFile(location, outputPath); err != nil {
			log.Errorw("retrieve", "location", location, "err", err)
			continue
		}

		return true
	}

	return false
}

// Verify recounts live replicas for a content id. Health is good with
// two or more live copies, degraded with one, failed with none.
func (m *Manager) Verify(contentID string) model.VerifyResult {
	result := model.VerifyResult{
		ContentID: contentID,
	}

	locations, exists := m.Replicas.Get(contentID)
	if !exists {
		result.Missing = m.Factor
		result.Health = model.HealthFailed
		return result
	}

	for _, location := range *locations {
		if isRemote(location) {
			result.Available++
			result.RemoteAssumed++
			continue
		}

		if _, err := os.Stat(location); err == nil {
			result.Available++
		} else {
			result.Missing++
		}
	}

	result.Health = model.HealthFor(result.Available)
	return result
}
