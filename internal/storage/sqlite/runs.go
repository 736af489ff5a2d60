package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/pointsemantic/internal/metrics"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("prediction run not found")

// Run is one persisted invocation of the prediction driver.
type Run struct {
	RunID              string   `json:"run_id"`
	Model              string   `json:"model"`
	FromDataset        string   `json:"from_dataset"`
	ToDataset          string   `json:"to_dataset"`
	Split              string   `json:"split"`
	NumFiles           int      `json:"num_files"`
	NumPoints          int64    `json:"num_points"`
	CommonAccuracy     float64  `json:"common_accuracy"`
	CommonMeanIoU      float64  `json:"common_mean_iou"`
	NativeAccuracy     *float64 `json:"native_accuracy,omitempty"`
	NativeMeanIoU      *float64 `json:"native_mean_iou,omitempty"`
	BatchLatencyMeanNs int64    `json:"batch_latency_mean_ns"`
	CreatedAt          int64    `json:"created_at"`
}

// ClassMetric is one class's metrics within a label space of a run.
type ClassMetric struct {
	LabelSpace     string  `json:"label_space"`
	Label          int     `json:"label"`
	ClassName      string  `json:"class_name"`
	TruePositives  int64   `json:"true_positives"`
	FalsePositives int64   `json:"false_positives"`
	FalseNegatives int64   `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	IoU            float64 `json:"iou"`
	Present        bool    `json:"present"`
}

// ClassMetricsFromReport flattens a metrics report for storage.
func ClassMetricsFromReport(space string, names []string, r metrics.Report) []ClassMetric {
	out := make([]ClassMetric, len(r.Classes))
	for i, c := range r.Classes {
		name := fmt.Sprintf("class %d", c.Label)
		if c.Label < len(names) {
			name = names[c.Label]
		}
		out[i] = ClassMetric{
			LabelSpace:     space,
			Label:          c.Label,
			ClassName:      name,
			TruePositives:  c.TruePositives,
			FalsePositives: c.FalsePositives,
			FalseNegatives: c.FalseNegatives,
			Accuracy:       c.Accuracy,
			IoU:            c.IoU,
			Present:        c.Present,
		}
	}
	return out
}

// InsertRun stores run and its class metrics in one transaction. RunID and
// CreatedAt are filled in when empty.
func (s *Store) InsertRun(run *Run, classes []ClassMetric) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	return retryOnBusy(s.clock, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO prediction_runs (
				run_id, model, from_dataset, to_dataset, split,
				num_files, num_points, common_accuracy, common_mean_iou,
				native_accuracy, native_mean_iou, batch_latency_mean_ns, created_at_ns
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Model, run.FromDataset, run.ToDataset, run.Split,
			run.NumFiles, run.NumPoints, run.CommonAccuracy, run.CommonMeanIoU,
			nullFloat(run.NativeAccuracy), nullFloat(run.NativeMeanIoU), run.BatchLatencyMeanNs, run.CreatedAt,
		)
		if err != nil {
			return err
		}
		for _, c := range classes {
			_, err = tx.Exec(`
				INSERT INTO prediction_class_metrics (
					run_id, label_space, label, class_name,
					true_positives, false_positives, false_negatives,
					accuracy, iou, present
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.RunID, c.LabelSpace, c.Label, c.ClassName,
				c.TruePositives, c.FalsePositives, c.FalseNegatives,
				c.Accuracy, c.IoU, c.Present,
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

const runColumns = `run_id, model, from_dataset, to_dataset, split,
	num_files, num_points, common_accuracy, common_mean_iou,
	native_accuracy, native_mean_iou, batch_latency_mean_ns, created_at_ns`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var nativeAcc, nativeIoU sql.NullFloat64
	err := row.Scan(
		&r.RunID, &r.Model, &r.FromDataset, &r.ToDataset, &r.Split,
		&r.NumFiles, &r.NumPoints, &r.CommonAccuracy, &r.CommonMeanIoU,
		&nativeAcc, &nativeIoU, &r.BatchLatencyMeanNs, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if nativeAcc.Valid {
		r.NativeAccuracy = &nativeAcc.Float64
	}
	if nativeIoU.Valid {
		r.NativeMeanIoU = &nativeIoU.Float64
	}
	return &r, nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM prediction_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM prediction_runs ORDER BY created_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ClassMetrics returns a run's class metrics ordered by label space, then label.
func (s *Store) ClassMetrics(runID string) ([]ClassMetric, error) {
	rows, err := s.db.Query(`
		SELECT label_space, label, class_name, true_positives, false_positives,
		       false_negatives, accuracy, iou, present
		FROM prediction_class_metrics
		WHERE run_id = ?
		ORDER BY label_space, label`, runID)
	if err != nil {
		return nil, fmt.Errorf("query class metrics: %w", err)
	}
	defer rows.Close()

	var out []ClassMetric
	for rows.Next() {
		var c ClassMetric
		if err := rows.Scan(&c.LabelSpace, &c.Label, &c.ClassName, &c.TruePositives,
			&c.FalsePositives, &c.FalseNegatives, &c.Accuracy, &c.IoU, &c.Present); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
