package predictor

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"sigs.k8s.io/yaml"
)

// Artifact kinds.
const (
	KindLSTM        = "lstm"
	KindTransformer = "transformer"
)

// Artifact is the on-disk form of a local model. Weights are exported from the
// training framework as nested arrays; the file may be YAML or JSON.
type Artifact struct {
	Kind string `json:"kind"`
	// VocabSize is the number of output probabilities, Null included.
	VocabSize int `json:"vocabSize"`
	// WindowLength is the input length the model was trained on; 0 accepts any.
	WindowLength int `json:"windowLength,omitempty"`

	Layers      []LayerSpec      `json:"layers,omitempty"`
	Transformer *TransformerSpec `json:"transformer,omitempty"`
}

// LayerSpec is one layer of a Keras-style sequential stack.
type LayerSpec struct {
	// Type is one of "embedding", "onehot", "lstm" or "dense".
	Type string `json:"type"`

	// embedding
	Embeddings [][]float64 `json:"embeddings,omitempty"`
	MaskZero   bool        `json:"maskZero,omitempty"`

	// lstm and dense. Kernels are laid out [input][output] as Keras stores them.
	Kernel              [][]float64 `json:"kernel,omitempty"`
	RecurrentKernel     [][]float64 `json:"recurrentKernel,omitempty"`
	Bias                []float64   `json:"bias,omitempty"`
	ReturnSequences     bool        `json:"returnSequences,omitempty"`
	RecurrentActivation string      `json:"recurrentActivation,omitempty"`

	// dense
	Activation string `json:"activation,omitempty"`
}

// TransformerSpec holds a GPT model. State matrices are laid out
// [output][input].
type TransformerSpec struct {
	NEmbd     int                    `json:"n_embd"`
	NHead     int                    `json:"n_head"`
	NLayer    int                    `json:"n_layer"`
	BlockSize int                    `json:"block_size"`
	State     map[string][][]float64 `json:"state"`
}

// Model is a predictor built from an artifact.
type Model interface {
	Predictor
	// VocabSize is the length of every returned distribution.
	VocabSize() int
}

// LoadFile reads and builds the model artifact at path.
func LoadFile(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	return Load(data)
}

// Load builds a model from artifact bytes.
func Load(data []byte) (Model, error) {
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, Error{Code: BadArtifact, Msg: err.Error()}
	}
	return Build(&a)
}

// Build constructs the model described by a.
func Build(a *Artifact) (Model, error) {
	if a.VocabSize < 2 {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("vocabSize must be at least 2, got %d", a.VocabSize)}
	}
	switch a.Kind {
	case KindLSTM:
		return newLSTM(a)
	case KindTransformer:
		return newTransformer(a)
	default:
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("unsupported model kind %q", a.Kind)}
	}
}

// denseFrom copies rows into a matrix, checking the shape is rectangular and,
// when rows/cols are positive, that it matches them.
func denseFrom(name string, data [][]float64, rows, cols int) (*mat.Dense, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("%s is empty", name)}
	}
	r, c := len(data), len(data[0])
	if (rows > 0 && r != rows) || (cols > 0 && c != cols) {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("%s has shape %dx%d, want %dx%d", name, r, c, rows, cols)}
	}
	flat := make([]float64, 0, r*c)
	for i, row := range data {
		if len(row) != c {
			return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("%s row %d has %d columns, want %d", name, i, len(row), c)}
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(r, c, flat), nil
}

func vecFrom(name string, data []float64, n int) (*mat.VecDense, error) {
	if len(data) == 0 || (n > 0 && len(data) != n) {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("%s has %d entries, want %d", name, len(data), n)}
	}
	return mat.NewVecDense(len(data), append([]float64(nil), data...)), nil
}
