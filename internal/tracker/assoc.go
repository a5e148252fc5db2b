package tracker

import (
	"sort"

	"github.com/your-org/persontrack/internal/detector"
)

// candidateMatch is one scored (track, detection) pairing evaluated during
// association.
type candidateMatch struct {
	trackIdx int
	detIdx   int
	cost     float32
}

// assignment is the result of matching a set of predicted track boxes
// against a set of detections.
type assignment struct {
	matches      []matchedPair
	unmatchedTrk []int
	unmatchedDet []int
}

type matchedPair struct {
	trackIdx int
	detIdx   int
}

// assocWeights configures the pairwise cost function. Populated from
// TrackerConfig so operators can retune motion/appearance balance without a
// rebuild.
type assocWeights struct {
	wIoU      float32
	wApp      float32
	matchIoU  float32
	appThresh float32
	maxCost   float32
}

// associate performs sorted-greedy cost-matrix matching between predicted
// track boxes and detection boxes. This stands in for a Hungarian/munkres
// optimal assignment: greedily consuming the globally lowest-cost pair first
// is a reasonable approximation for the small per-frame cardinalities (tens
// of people per camera) this system operates at, and avoids pulling in an
// assignment-solver dependency absent from the whole reference stack.
func associate(predictedBoxes [][4]float32, trackEmbeddings [][]float32, detections []detector.Detection, detEmbeddings [][]float32, w assocWeights) assignment {
	nTrk := len(predictedBoxes)
	nDet := len(detections)

	result := assignment{}
	if nTrk == 0 || nDet == 0 {
		for i := 0; i < nTrk; i++ {
			result.unmatchedTrk = append(result.unmatchedTrk, i)
		}
		for j := 0; j < nDet; j++ {
			result.unmatchedDet = append(result.unmatchedDet, j)
		}
		return result
	}

	var candidates []candidateMatch
	for i := 0; i < nTrk; i++ {
		for j := 0; j < nDet; j++ {
			cost, ok := pairCost(predictedBoxes[i], trackEmbeddings[i], detections[j].BBox, detEmbeddings[j], w)
			if !ok {
				continue
			}
			candidates = append(candidates, candidateMatch{trackIdx: i, detIdx: j, cost: cost})
		}
	}

	sort.Slice(candidates, func(a, b int) bool { return candidates[a].cost < candidates[b].cost })

	trkUsed := make([]bool, nTrk)
	detUsed := make([]bool, nDet)

	for _, c := range candidates {
		if trkUsed[c.trackIdx] || detUsed[c.detIdx] {
			continue
		}
		trkUsed[c.trackIdx] = true
		detUsed[c.detIdx] = true
		result.matches = append(result.matches, matchedPair{trackIdx: c.trackIdx, detIdx: c.detIdx})
	}

	for i := 0; i < nTrk; i++ {
		if !trkUsed[i] {
			result.unmatchedTrk = append(result.unmatchedTrk, i)
		}
	}
	for j := 0; j < nDet; j++ {
		if !detUsed[j] {
			result.unmatchedDet = append(result.unmatchedDet, j)
		}
	}

	return result
}

// pairCost combines IoU distance (1 - IoU) and appearance cosine distance
// (1 - cosine similarity) into a single scalar. ok is false when the pair
// fails the hard gate of §4.2 step 3 — IoU below match_iou, or, when both
// embeddings are available, appearance distance above app_thresh — so a
// high-confidence detection can never be associated to a track it merely
// resembles from across the frame.
func pairCost(trkBox [4]float32, trkEmb []float32, detBox [4]float32, detEmb []float32, w assocWeights) (float32, bool) {
	iou := detector.IoU(trkBox, detBox)
	if iou < w.matchIoU {
		return 0, false
	}
	motionCost := 1 - iou

	if trkEmb == nil || detEmb == nil {
		return motionCost, true
	}

	appearanceCost := 1 - detector.CosineSimilarity(trkEmb, detEmb)
	if appearanceCost > w.appThresh {
		return 0, false
	}

	cost := w.wIoU*motionCost + w.wApp*appearanceCost
	if cost > w.maxCost {
		return 0, false
	}
	return cost, true
}

// associateIoUOnly is the second-pass rescue match for low-confidence
// detections against tracks still unmatched after the primary pass: pure
// motion-IoU, no appearance term, since low-confidence boxes from a
// single-stage detector are often partial/occluded and their embeddings are
// unreliable.
func associateIoUOnly(predictedBoxes [][4]float32, boxes [][4]float32, iouThreshold float32) assignment {
	nTrk := len(predictedBoxes)
	nDet := len(boxes)

	result := assignment{}
	var candidates []candidateMatch
	for i := 0; i < nTrk; i++ {
		for j := 0; j < nDet; j++ {
			iou := detector.IoU(predictedBoxes[i], boxes[j])
			if iou < iouThreshold {
				continue
			}
			candidates = append(candidates, candidateMatch{trackIdx: i, detIdx: j, cost: 1 - iou})
		}
	}

	sort.Slice(candidates, func(a, b int) bool { return candidates[a].cost < candidates[b].cost })

	trkUsed := make([]bool, nTrk)
	detUsed := make([]bool, nDet)
	for _, c := range candidates {
		if trkUsed[c.trackIdx] || detUsed[c.detIdx] {
			continue
		}
		trkUsed[c.trackIdx] = true
		detUsed[c.detIdx] = true
		result.matches = append(result.matches, matchedPair{trackIdx: c.trackIdx, detIdx: c.detIdx})
	}
	for i := 0; i < nTrk; i++ {
		if !trkUsed[i] {
			result.unmatchedTrk = append(result.unmatchedTrk, i)
		}
	}
	for j := 0; j < nDet; j++ {
		if !detUsed[j] {
			result.unmatchedDet = append(result.unmatchedDet, j)
		}
	}
	return result
}
