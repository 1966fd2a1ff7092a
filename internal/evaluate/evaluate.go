package evaluate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/opstrata/outage-cli/internal/forest"
	"github.com/opstrata/outage-cli/internal/model"
)

// classNames label the report rows; index matches the label value.
var classNames = [2]string{"routine", "outage"}

// ROCAUC computes the area under the ROC curve for positive-class
// scores against binary labels. Both classes must be present.
func ROCAUC(scores []float64, labels []int) (float64, error) {
	if err := checkScored(scores, labels); err != nil {
		return 0, err
	}
	ys := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	for i, y := range labels {
		classes[i] = y == 1
	}
	stat.SortWeightedLabeled(ys, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, ys, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// AveragePrecision computes the area under the precision-recall
// curve as the recall-weighted sum of precisions at each distinct
// score threshold, descending.
func AveragePrecision(scores []float64, labels []int) (float64, error) {
	if err := checkScored(scores, labels); err != nil {
		return 0, err
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var totalPos float64
	for _, y := range labels {
		totalPos += float64(y)
	}

	var ap, tp, fp, prevRecall float64
	for i := 0; i < len(order); {
		// Consume the whole tie block before taking a curve point.
		threshold := scores[order[i]]
		for ; i < len(order) && scores[order[i]] == threshold; i++ {
			if labels[order[i]] == 1 {
				tp++
			} else {
				fp++
			}
		}
		recall := tp / totalPos
		precision := tp / (tp + fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return ap, nil
}

func checkScored(scores []float64, labels []int) error {
	if len(scores) != len(labels) {
		return eris.Errorf("evaluate: %d scores for %d labels", len(scores), len(labels))
	}
	if len(labels) == 0 {
		return eris.New("evaluate: empty labels")
	}
	pos := 0
	for _, y := range labels {
		if y != 0 && y != 1 {
			return eris.Errorf("evaluate: label %d, want 0 or 1", y)
		}
		pos += y
	}
	if pos == 0 || pos == len(labels) {
		return eris.New("evaluate: held-out labels contain a single class")
	}
	return nil
}

// Confusion tallies predictions into a 2x2 matrix indexed
// [actual][predicted].
func Confusion(labels, pred []int) ([2][2]int, error) {
	var cm [2][2]int
	if len(labels) != len(pred) {
		return cm, eris.Errorf("evaluate: %d labels for %d predictions", len(labels), len(pred))
	}
	for i := range labels {
		if labels[i] < 0 || labels[i] > 1 || pred[i] < 0 || pred[i] > 1 {
			return cm, eris.Errorf("evaluate: non-binary pair (%d, %d) at row %d", labels[i], pred[i], i)
		}
		cm[labels[i]][pred[i]]++
	}
	return cm, nil
}

// Accuracy is the fraction of the confusion matrix on the diagonal.
func Accuracy(cm [2][2]int) float64 {
	total := cm[0][0] + cm[0][1] + cm[1][0] + cm[1][1]
	if total == 0 {
		return 0
	}
	return float64(cm[0][0]+cm[1][1]) / float64(total)
}

// ClassificationReport renders per-class precision, recall, F1 and
// support, plus accuracy and macro/weighted averages.
func ClassificationReport(labels, pred []int) (string, error) {
	cm, err := Confusion(labels, pred)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%14s %9s %9s %9s %9s\n\n", "", "precision", "recall", "f1-score", "support")

	var macroP, macroR, macroF, weightedP, weightedR, weightedF float64
	total := len(labels)
	for c := range 2 {
		support := cm[c][0] + cm[c][1]
		predicted := cm[0][c] + cm[1][c]
		precision := safeDiv(float64(cm[c][c]), float64(predicted))
		recall := safeDiv(float64(cm[c][c]), float64(support))
		f1 := safeDiv(2*precision*recall, precision+recall)
		fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", classNames[c], precision, recall, f1, support)

		macroP += precision / 2
		macroR += recall / 2
		macroF += f1 / 2
		weightedP += precision * float64(support) / float64(total)
		weightedR += recall * float64(support) / float64(total)
		weightedF += f1 * float64(support) / float64(total)
	}

	fmt.Fprintf(&b, "\n%14s %9s %9s %9.2f %9d\n", "accuracy", "", "", Accuracy(cm), total)
	fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", "macro avg", macroP, macroR, macroF, total)
	fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", "weighted avg", weightedP, weightedR, weightedF, total)
	return b.String(), nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Evaluate scores a fitted forest against held-out data and ranks its
// feature importances. The model and inputs are only read.
func Evaluate(f *forest.Forest, x *mat.Dense, y []int, featureNames []string) (model.MetricsBundle, []model.FeatureImportance, error) {
	var bundle model.MetricsBundle
	if len(featureNames) != f.Features() {
		return bundle, nil, eris.Errorf("evaluate: %d feature names for %d model features", len(featureNames), f.Features())
	}

	probs, err := f.PredictProba(x)
	if err != nil {
		return bundle, nil, eris.Wrap(err, "evaluate: score held-out rows")
	}
	pred, err := f.Predict(x)
	if err != nil {
		return bundle, nil, eris.Wrap(err, "evaluate: predict held-out rows")
	}

	bundle.ROCAUC, err = ROCAUC(probs, y)
	if err != nil {
		return bundle, nil, err
	}
	bundle.PRAUC, err = AveragePrecision(probs, y)
	if err != nil {
		return bundle, nil, err
	}
	bundle.Confusion, err = Confusion(y, pred)
	if err != nil {
		return bundle, nil, err
	}
	bundle.Report, err = ClassificationReport(y, pred)
	if err != nil {
		return bundle, nil, err
	}
	bundle.Accuracy = Accuracy(bundle.Confusion)
	bundle.TestRows = len(y)

	scores := f.FeatureImportances()
	importances := make([]model.FeatureImportance, len(scores))
	for i, s := range scores {
		importances[i] = model.FeatureImportance{Feature: featureNames[i], Score: s}
	}
	sort.SliceStable(importances, func(a, b int) bool { return importances[a].Score > importances[b].Score })

	return bundle, importances, nil
}
