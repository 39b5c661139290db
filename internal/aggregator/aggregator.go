// Package aggregator consolidates the staged fragments of one episode into a
// single PatientEpisode aggregate with tracked deltas against the last
// published state.
package aggregator

import (
	"fmt"
	"sort"

	"github.com/medlink/hospital-sync/internal/model"
)

// Consolidate merges the staging records of one episode. Records are applied
// oldest-first so the most recently updated fragment has the last word on
// shared demographic fields (exact timestamp ties fall to the first fragment
// in source order), while every fragment contributes its procedures.
//
// The merge runs in two phases: previously published payloads rebuild the
// baseline without tracking, then current payloads fold in with tracking, so
// the aggregate's change summary reflects exactly what moved since the last
// successful publish.
func Consolidate(records []*model.StagingRecord) (*model.PatientEpisode, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to consolidate")
	}

	ordered := make([]*model.StagingRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		// ClinicalTimeLayout sorts lexicographically; empty sorts first so
		// timestamped fragments win shared fields.
		return ordered[i].SourceUpdate < ordered[j].SourceUpdate
	})

	episode := model.NewPatientEpisode()

	err := applyTimestamped(ordered, func(rec *model.StagingRecord) error {
		prev, err := rec.PreviousPayload()
		if err != nil {
			return fmt.Errorf("decode previous payload of %s: %w", rec.EpisodeKey(), err)
		}
		if prev != nil {
			episode.ApplySnapshot(prev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = applyTimestamped(ordered, func(rec *model.StagingRecord) error {
		cur, err := rec.CurrentPayload()
		if err != nil {
			return fmt.Errorf("decode payload of %s: %w", rec.EpisodeKey(), err)
		}
		episode.ApplyUpdate(cur)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if episode.PatientID == "" || episode.EpisodeID == "" {
		return nil, fmt.Errorf("consolidated episode lacks identity (patient=%q, episode=%q)",
			episode.PatientID, episode.EpisodeID)
	}
	return episode, nil
}

// applyTimestamped runs fn over records already sorted by source timestamp.
// Fragments sharing an exact timestamp are applied in source order and the
// first one is then applied again: within a tie the first fragment is
// authoritative for shared fields, while procedures keep their source order.
func applyTimestamped(ordered []*model.StagingRecord, fn func(*model.StagingRecord) error) error {
	for i := 0; i < len(ordered); {
		j := i
		for j < len(ordered) && ordered[j].SourceUpdate == ordered[i].SourceUpdate {
			if err := fn(ordered[j]); err != nil {
				return err
			}
			j++
		}
		if j-i > 1 {
			if err := fn(ordered[i]); err != nil {
				return err
			}
		}
		i = j
	}
	return nil
}
