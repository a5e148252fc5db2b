// Package detector wraps the ONNX-backed person-detection and appearance-
// embedding models behind narrow interfaces so the tracker and stream worker
// never touch tensor lifecycle directly.
package detector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one person instance observed in a single frame.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 in pixel coordinates
	Confidence float32
}

// PersonDetector is the interface the tracker and worker depend on; the ONNX
// session backs it in production, a synthetic fake backs it in tests.
type PersonDetector interface {
	Detect(imgData []float32, origW, origH int) ([]Detection, error)
	InputSize() (int, int)
	Close()
}

// Detector runs a single-stage person-detection ONNX model. Output is one
// flat [N, 5] tensor: x1, y1, x2, y2, confidence, already in the model's
// input-resolution pixel space; Detect rescales to the original frame and
// applies confidence filtering and NMS.
//
// Concurrency: Detect serializes all callers behind a single mutex held only
// for the tensor copy-in/session-run/copy-out span, the simplest of the three
// safe-sharing strategies the model allows (internal mutex, thread-local
// clones, queue-based inference server).
type Detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensor  *ort.Tensor[float32]
	confThreshold float32
	nmsIoU        float32
	inputW        int
	inputH        int
	maxDetections int
}

// NewDetector loads the person-detection ONNX model. opts may be nil (ORT
// defaults) or a pre-configured *ort.SessionOptions (device/thread selection).
func NewDetector(modelPath string, confThreshold, nmsIoU float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640
	maxDetections := 8400 // anchor-free output count at 640x640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(maxDetections), 5)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"},
		[]string{"output"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensor:  outputTensor,
		confThreshold: confThreshold,
		nmsIoU:        nmsIoU,
		inputW:        inputW,
		inputH:        inputH,
		maxDetections: maxDetections,
	}, nil
}

// Detect runs person detection on a preprocessed image. imgData must be CHW
// format [3, inputH, inputW], normalized. origW/origH are the original frame
// dimensions used to rescale box coordinates back to pixel space.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inputSlice := d.inputTensor.GetData()
	copy(inputSlice, imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	detections := d.parseDetections(origW, origH)
	detections = nms(detections, d.nmsIoU)

	return detections, nil
}

func (d *Detector) parseDetections(origW, origH int) []Detection {
	raw := d.outputTensor.GetData()

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	var detections []Detection
	for i := 0; i < d.maxDetections; i++ {
		base := i * 5
		conf := raw[base+4]
		if conf < d.confThreshold {
			continue
		}

		x1 := clampF(raw[base+0]*scaleW, 0, float32(origW))
		y1 := clampF(raw[base+1]*scaleH, 0, float32(origH))
		x2 := clampF(raw[base+2]*scaleW, 0, float32(origW))
		y2 := clampF(raw[base+3]*scaleH, 0, float32(origH))

		if x2 <= x1 || y2 <= y1 {
			continue
		}

		detections = append(detections, Detection{
			BBox:       [4]float32{x1, y1, x2, y2},
			Confidence: conf,
		})
	}

	return detections
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
}

// nms performs greedy Non-Maximum Suppression on detections sorted by
// descending confidence, dropping any box whose IoU with a kept higher-
// confidence box exceeds iouThreshold.
func nms(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] {
				continue
			}
			if IoU(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Detection, 0, len(detections))
	for i, det := range detections {
		if keep[i] {
			result = append(result, det)
		}
	}
	return result
}

// IoU computes intersection-over-union for two axis-aligned boxes.
func IoU(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
