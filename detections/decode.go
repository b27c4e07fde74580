package detections

import (
	"fmt"
	"math"
	"sort"

	"github.com/trafficvision/sign-detection-service/models"
)

// simplexTolerance is how far the score sum may drift from 1 before we
// treat the vector as unnormalized logits.
const simplexTolerance = 1e-3

// Decode converts one raw score vector into the ranked top-k predictions
// plus the primary detection. The primary is top[0] iff its confidence
// clears threshold; below the threshold it is nil and the caller records
// detected=false, keeping the top-k for diagnostics.
//
// Ordering is deterministic: descending confidence, ties broken by
// ascending class id.
func Decode(scores []float32, catalog *Catalog, threshold float64, topK int) ([]models.PredictionEntry, *models.PredictionEntry, error) {
	if len(scores) != catalog.Size() {
		return nil, nil, stageError("decode", ErrScores,
			fmt.Errorf("got %d scores for a %d-class catalog", len(scores), catalog.Size()))
	}
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, nil, stageError("decode", ErrScores,
				fmt.Errorf("score for class %d is not finite", i))
		}
	}

	probs := normalize(scores)

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if probs[a] != probs[b] {
			return probs[a] > probs[b]
		}
		return a < b
	})

	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > len(order) {
		topK = len(order)
	}

	top := make([]models.PredictionEntry, 0, topK)
	for _, id := range order[:topK] {
		top = append(top, models.PredictionEntry{
			ClassID:    id,
			Label:      catalog.Label(id),
			Confidence: probs[id],
		})
	}

	var primary *models.PredictionEntry
	if len(top) > 0 && top[0].Confidence >= threshold {
		p := top[0]
		primary = &p
	}
	return top, primary, nil
}

// normalize returns the scores as a probability distribution. A vector
// that is already a valid simplex passes through untouched; anything else
// is treated as logits and run through softmax.
func normalize(scores []float32) []float64 {
	probs := make([]float64, len(scores))
	sum := 0.0
	simplex := true
	for i, s := range scores {
		v := float64(s)
		if v < 0 || v > 1 {
			simplex = false
		}
		probs[i] = v
		sum += v
	}
	if simplex && math.Abs(sum-1) <= simplexTolerance {
		return probs
	}
	return softmax(probs)
}

func softmax(v []float64) []float64 {
	maxVal := v[0]
	for _, x := range v[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	out := make([]float64, len(v))
	sum := 0.0
	for i, x := range v {
		e := math.Exp(x - maxVal)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
