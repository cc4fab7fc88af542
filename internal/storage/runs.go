package storage

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/hakim/autopent/internal/models"
	"go.etcd.io/bbolt"
)

// SaveRun persists a run metadata record to the database
func (s *Store) SaveRun(meta *models.RunMeta) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}

		runs := tx.Bucket([]byte(bucketRuns))
		if err := runs.Put([]byte(meta.ID), data); err != nil {
			return err
		}

		// Update run index (target -> []run_id mapping)
		index := tx.Bucket([]byte(bucketRunIndex))
		targetKey := []byte(meta.Target)

		var runIDs []string
		if existing := index.Get(targetKey); existing != nil {
			if err := json.Unmarshal(existing, &runIDs); err != nil {
				return err
			}
		}

		for _, id := range runIDs {
			if id == meta.ID {
				return nil
			}
		}
		runIDs = append(runIDs, meta.ID)

		indexData, err := json.Marshal(runIDs)
		if err != nil {
			return err
		}
		return index.Put(targetKey, indexData)
	})
}

// GetRun retrieves a run metadata record by ID. A missing run yields (nil, nil).
func (s *Store) GetRun(id string) (*models.RunMeta, error) {
	var meta *models.RunMeta

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketRuns)).Get([]byte(id))
		if data == nil {
			return nil
		}
		meta = &models.RunMeta{}
		return json.Unmarshal(data, meta)
	})

	return meta, err
}

// ListRuns retrieves all runs for a target, newest first
func (s *Store) ListRuns(target string) ([]*models.RunMeta, error) {
	var runs []*models.RunMeta

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketRunIndex)).Get([]byte(target))
		if data == nil {
			return nil
		}

		var runIDs []string
		if err := json.Unmarshal(data, &runIDs); err != nil {
			return err
		}

		bucket := tx.Bucket([]byte(bucketRuns))
		for _, id := range runIDs {
			runData := bucket.Get([]byte(id))
			if runData == nil {
				continue
			}
			var meta models.RunMeta
			if err := json.Unmarshal(runData, &meta); err != nil {
				return err
			}
			runs = append(runs, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

// GetLatestRun retrieves the most recent run for a target
func (s *Store) GetLatestRun(target string) (*models.RunMeta, error) {
	runs, err := s.ListRuns(target)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// UpdateRunStatus updates the status of a run and sets CompletedAt when the
// status is terminal
func (s *Store) UpdateRunStatus(id string, status models.RunStatus) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))

		data := runs.Get([]byte(id))
		if data == nil {
			return nil // Not found, no-op
		}

		var meta models.RunMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}

		meta.Status = status
		if status != models.StatusPending && status != models.StatusRunning && meta.CompletedAt == nil {
			now := time.Now()
			meta.CompletedAt = &now
		}

		updated, err := json.Marshal(&meta)
		if err != nil {
			return err
		}
		return runs.Put([]byte(id), updated)
	})
}

// SaveResult stores the full assessment result of a run
func (s *Store) SaveResult(result *models.AssessmentResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketResults)).Put([]byte(result.RunID), data)
	})
}

// GetResult loads the stored assessment result of a run. A missing result yields (nil, nil).
func (s *Store) GetResult(id string) (*models.AssessmentResult, error) {
	var result *models.AssessmentResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketResults)).Get([]byte(id))
		if data == nil {
			return nil
		}
		result = &models.AssessmentResult{}
		return json.Unmarshal(data, result)
	})
	return result, err
}
