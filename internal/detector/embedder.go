package detector

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// AppearanceEmbedder is the interface the tracker depends on for extracting
// a unit-norm appearance vector from a person crop.
type AppearanceEmbedder interface {
	Extract(cropData []float32) ([]float32, error)
	InputSize() (int, int)
	EmbeddingDim() int
	Close()
}

// Embedder runs a re-identification embedding ONNX model (an ArcFace-scale
// backbone repurposed for whole-body appearance rather than faces). Output is
// L2-normalized before being returned, matching the unit-norm contract every
// cosine-similarity comparison downstream assumes.
type Embedder struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

// NewEmbedder loads the appearance-embedding ONNX model. opts may be nil
// (ORT defaults) or a pre-configured *ort.SessionOptions, kept consistent
// with NewDetector's signature.
func NewEmbedder(modelPath string, embDim int, opts *ort.SessionOptions) (*Embedder, error) {
	inputW, inputH := 128, 256 // person re-id crops are taller than wide

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
	}, nil
}

// Extract runs embedding extraction on a person crop. cropData must be CHW
// format [3, inputH, inputW], normalized. Returns a unit-norm embedding.
func (e *Embedder) Extract(cropData []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inputSlice := e.inputTensor.GetData()
	copy(inputSlice, cropData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	outputData := e.outputTensor.GetData()
	embedding := make([]float32, e.embDim)
	copy(embedding, outputData)

	Normalize(embedding)

	return embedding, nil
}

// InputSize returns the expected crop dimensions.
func (e *Embedder) InputSize() (int, int) {
	return e.inputW, e.inputH
}

// EmbeddingDim returns the embedding vector dimension.
func (e *Embedder) EmbeddingDim() int {
	return e.embDim
}

func (e *Embedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// Normalize performs L2 normalization in-place.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

// CosineSimilarity computes the dot product of two unit-norm vectors,
// clamped to [-1, 1] to absorb floating-point drift.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(math.Min(1.0, math.Max(-1.0, dot)))
}
