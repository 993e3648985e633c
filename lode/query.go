package lode

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warden/types"
)

// ErrRunNotFound is returned when a dataset holds no records for a run.
var ErrRunNotFound = errors.New("no records found for run")

// RunLedger is everything stored for one run.
type RunLedger struct {
	RunID      string                  `json:"run_id"`
	Iterations []types.IterationRecord `json:"iterations"`
	// Summary is nil when the run never finished writing its summary.
	Summary *RunSummary `json:"summary,omitempty"`
}

// QueryRun reads every record of runID. Iterations are returned in
// iteration order; a later snapshot wins for a repeated iteration number.
func QueryRun(ctx context.Context, ds lode.Dataset, runID string) (*RunLedger, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}

	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "warden/snapshots")
	}

	ledger := &RunLedger{RunID: runID}
	byNumber := make(map[int]types.IterationRecord)
	found := false

	for _, snap := range snapshots {
		if !hasPartition(snap, "run_id", runID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("warden/snapshot/%s", snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || toString(record["run_id"]) != runID {
				continue
			}
			switch record["record_kind"] {
			case RecordKindIteration:
				rec := fromIterationRecordMap(record)
				byNumber[rec.Number] = rec
				found = true
			case RecordKindRunSummary:
				s := fromRunSummaryMap(record)
				ledger.Summary = &s
				found = true
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	for _, n := range slices.Sorted(maps.Keys(byNumber)) {
		ledger.Iterations = append(ledger.Iterations, byNumber[n])
	}
	return ledger, nil
}

// ListRuns returns the stored run summaries, most recent first.
func ListRuns(ctx context.Context, ds lode.Dataset) ([]RunSummary, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "warden/snapshots")
	}

	seen := make(map[string]bool)
	var out []RunSummary
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !hasPartition(snap, "record_kind", RecordKindRunSummary) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("warden/snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindRunSummary {
				continue
			}
			s := fromRunSummaryMap(record)
			if seen[s.RunID] {
				continue
			}
			seen[s.RunID] = true
			out = append(out, s)
		}
	}

	slices.SortStableFunc(out, func(a, b RunSummary) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RunID, b.RunID)
	})
	return out, nil
}

// hasPartition reports whether any file of snap lives under key=value.
func hasPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	for _, f := range snap.Manifest.Files {
		if hasSegment(f.Path, key, value) {
			return true
		}
	}
	return false
}

// hasSegment matches a whole key=value path segment, so run_id=run-1 does
// not match run_id=run-10.
func hasSegment(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
