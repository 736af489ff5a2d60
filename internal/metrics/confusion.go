// Package metrics accumulates (ground-truth, predicted) label pairs and
// derives segmentation quality metrics from them.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrLengthMismatch is returned when label lists differ in length.
	ErrLengthMismatch = errors.New("label lists differ in length")
	// ErrLabelOutOfRange is returned for labels outside [0, numClasses).
	ErrLabelOutOfRange = errors.New("label out of range")
)

// AbsentPolicy decides how classes that never occur, neither in ground truth
// nor in predictions, enter the mean IoU.
type AbsentPolicy int

const (
	// SkipAbsent leaves absent classes out of the mean.
	SkipAbsent AbsentPolicy = iota
	// CountAbsentAsZero averages over every class, absent ones contributing 0.
	CountAbsentAsZero
)

// ConfusionMatrix counts label pairs. Rows are ground truth, columns are
// predictions. Increments only ever add; the matrix is never reset. It is
// safe for concurrent use.
type ConfusionMatrix struct {
	mu         sync.RWMutex
	numClasses int
	counts     *mat.Dense
}

// NewConfusionMatrix returns an empty numClasses×numClasses matrix.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	if numClasses <= 0 {
		panic(fmt.Sprintf("metrics: numClasses must be positive, got %d", numClasses))
	}
	return &ConfusionMatrix{
		numClasses: numClasses,
		counts:     mat.NewDense(numClasses, numClasses, nil),
	}
}

// NumClasses is the matrix dimension.
func (cm *ConfusionMatrix) NumClasses() int {
	return cm.numClasses
}

func (cm *ConfusionMatrix) checkLabel(l int) error {
	if l < 0 || l >= cm.numClasses {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrLabelOutOfRange, l, cm.numClasses)
	}
	return nil
}

// Increment adds one (truth, predicted) pair.
func (cm *ConfusionMatrix) Increment(truth, predicted int) error {
	if err := cm.checkLabel(truth); err != nil {
		return err
	}
	if err := cm.checkLabel(predicted); err != nil {
		return err
	}
	cm.mu.Lock()
	cm.counts.Set(truth, predicted, cm.counts.At(truth, predicted)+1)
	cm.mu.Unlock()
	return nil
}

// IncrementFromList adds truth[i], predicted[i] for every i. All labels are
// validated before any cell changes, so a failed call leaves the matrix as it was.
func (cm *ConfusionMatrix) IncrementFromList(truth, predicted []int) error {
	if len(truth) != len(predicted) {
		return fmt.Errorf("%w: %d ground-truth vs %d predicted", ErrLengthMismatch, len(truth), len(predicted))
	}
	for i := range truth {
		if err := cm.checkLabel(truth[i]); err != nil {
			return fmt.Errorf("ground truth at %d: %w", i, err)
		}
		if err := cm.checkLabel(predicted[i]); err != nil {
			return fmt.Errorf("prediction at %d: %w", i, err)
		}
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i := range truth {
		cm.counts.Set(truth[i], predicted[i], cm.counts.At(truth[i], predicted[i])+1)
	}
	return nil
}

// Merge adds every count of other into cm. Both must have the same size.
func (cm *ConfusionMatrix) Merge(other *ConfusionMatrix) error {
	if other.numClasses != cm.numClasses {
		return fmt.Errorf("%w: merging %d classes into %d", ErrLengthMismatch, other.numClasses, cm.numClasses)
	}
	snapshot := other.Counts()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.counts.Add(cm.counts, snapshot)
	return nil
}

// Counts returns a copy of the underlying matrix.
func (cm *ConfusionMatrix) Counts() *mat.Dense {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return mat.DenseCopyOf(cm.counts)
}

// Count returns the number of pairs recorded for (truth, predicted).
func (cm *ConfusionMatrix) Count(truth, predicted int) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return int64(cm.counts.At(truth, predicted))
}

// Total is the number of pairs recorded.
func (cm *ConfusionMatrix) Total() int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return int64(mat.Sum(cm.counts))
}

// OverallAccuracy is sum(diagonal) / sum(all), or 0 for an empty matrix.
func (cm *ConfusionMatrix) OverallAccuracy() float64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	total := mat.Sum(cm.counts)
	if total == 0 {
		return 0
	}
	return mat.Trace(cm.counts) / total
}

// ClassMetrics holds the derived numbers for one class.
type ClassMetrics struct {
	Label          int
	TruePositives  int64
	FalsePositives int64
	FalseNegatives int64
	// Accuracy is TP / (TP + FN), the fraction of this class's points labelled correctly.
	Accuracy float64
	// IoU is TP / (TP + FP + FN).
	IoU float64
	// Present is false when the class occurs neither in ground truth nor in predictions.
	Present bool
}

// ClassMetrics derives per-class counts, accuracy and IoU. Absent classes
// report zero accuracy and IoU with Present=false.
func (cm *ConfusionMatrix) ClassMetrics() []ClassMetrics {
	return classMetrics(cm.Counts())
}

func classMetrics(counts *mat.Dense) []ClassMetrics {
	n, _ := counts.Dims()
	out := make([]ClassMetrics, n)
	row := make([]float64, n)
	col := make([]float64, n)
	for c := 0; c < n; c++ {
		mat.Row(row, c, counts)
		mat.Col(col, c, counts)
		tp := counts.At(c, c)
		fn := floats.Sum(row) - tp
		fp := floats.Sum(col) - tp

		m := ClassMetrics{
			Label:          c,
			TruePositives:  int64(tp),
			FalsePositives: int64(fp),
			FalseNegatives: int64(fn),
		}
		if union := tp + fp + fn; union > 0 {
			m.Present = true
			m.IoU = tp / union
		}
		if tp+fn > 0 {
			m.Accuracy = tp / (tp + fn)
		}
		out[c] = m
	}
	return out
}

// MeanIoU averages per-class IoU under the given absent-class policy. It is 0
// when no class qualifies.
func (cm *ConfusionMatrix) MeanIoU(policy AbsentPolicy) float64 {
	return meanIoU(cm.ClassMetrics(), policy)
}

func meanIoU(classes []ClassMetrics, policy AbsentPolicy) float64 {
	ious := make([]float64, 0, len(classes))
	for _, c := range classes {
		if c.Present || policy == CountAbsentAsZero {
			ious = append(ious, c.IoU)
		}
	}
	if len(ious) == 0 {
		return 0
	}
	return stat.Mean(ious, nil)
}

// Report is a snapshot of all metrics.
type Report struct {
	NumClasses      int
	Total           int64
	OverallAccuracy float64
	MeanIoU         float64
	Policy          AbsentPolicy
	Classes         []ClassMetrics
}

// Report derives every metric from one consistent snapshot.
func (cm *ConfusionMatrix) Report(policy AbsentPolicy) Report {
	counts := cm.Counts()
	total := mat.Sum(counts)
	var acc float64
	if total > 0 {
		acc = mat.Trace(counts) / total
	}
	classes := classMetrics(counts)
	return Report{
		NumClasses:      cm.numClasses,
		Total:           int64(total),
		OverallAccuracy: acc,
		MeanIoU:         meanIoU(classes, policy),
		Policy:          policy,
		Classes:         classes,
	}
}

// PrintMetrics writes a human-readable table of the report to w. names, when
// given, label the rows; absent classes are marked with '*'.
func (cm *ConfusionMatrix) PrintMetrics(w io.Writer, names []string, policy AbsentPolicy) error {
	r := cm.Report(policy)
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-20s %10s %10s %10s %8s %8s\n", "id", "class", "tp", "fp", "fn", "acc", "iou")
	for _, c := range r.Classes {
		name := fmt.Sprintf("class %d", c.Label)
		if c.Label < len(names) {
			name = names[c.Label]
		}
		marker := ""
		if !c.Present {
			marker = "*"
		}
		fmt.Fprintf(&b, "%-4d %-20s %10d %10d %10d %8.4f %8.4f%s\n",
			c.Label, name, c.TruePositives, c.FalsePositives, c.FalseNegatives, c.Accuracy, c.IoU, marker)
	}
	fmt.Fprintf(&b, "Overall accuracy: %.4f (%d points)\n", r.OverallAccuracy, r.Total)
	fmt.Fprintf(&b, "Mean IoU: %.4f\n", r.MeanIoU)
	_, err := io.WriteString(w, b.String())
	return err
}
