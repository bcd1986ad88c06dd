package predictor

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Transformer is an inference-only GPT: token and position embeddings,
// RMSNorm, causal multi-head attention and a ReLU MLP per layer.
//
// The window is fed one code at a time. Keys and values of earlier positions
// are cached so each position attends to everything before it, and the logits
// of the final position become the prediction.
type Transformer struct {
	nEmbd     int
	nHead     int
	nLayer    int
	blockSize int
	vocabSize int
	window    int
	state     map[string]*mat.Dense
}

func newTransformer(a *Artifact) (*Transformer, error) {
	spec := a.Transformer
	if spec == nil {
		return nil, Error{Code: BadArtifact, Msg: "transformer artifact has no transformer section"}
	}
	if spec.NEmbd <= 0 || spec.NHead <= 0 || spec.NLayer <= 0 || spec.BlockSize <= 0 {
		return nil, Error{Code: BadArtifact, Msg: "n_embd, n_head, n_layer and block_size must be positive"}
	}
	if spec.NEmbd%spec.NHead != 0 {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("n_embd %d is not divisible by n_head %d", spec.NEmbd, spec.NHead)}
	}
	if a.WindowLength > spec.BlockSize {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("windowLength %d exceeds block_size %d", a.WindowLength, spec.BlockSize)}
	}

	m := &Transformer{
		nEmbd:     spec.NEmbd,
		nHead:     spec.NHead,
		nLayer:    spec.NLayer,
		blockSize: spec.BlockSize,
		vocabSize: a.VocabSize,
		window:    a.WindowLength,
		state:     make(map[string]*mat.Dense),
	}

	// Shapes follow [output][input] so Linear is a plain W*x.
	shapes := map[string][2]int{
		"wte":     {a.VocabSize, spec.NEmbd},
		"wpe":     {spec.BlockSize, spec.NEmbd},
		"lm_head": {a.VocabSize, spec.NEmbd},
	}
	for i := 0; i < spec.NLayer; i++ {
		shapes[fmt.Sprintf("layer%d.attn_wq", i)] = [2]int{spec.NEmbd, spec.NEmbd}
		shapes[fmt.Sprintf("layer%d.attn_wk", i)] = [2]int{spec.NEmbd, spec.NEmbd}
		shapes[fmt.Sprintf("layer%d.attn_wv", i)] = [2]int{spec.NEmbd, spec.NEmbd}
		shapes[fmt.Sprintf("layer%d.attn_wo", i)] = [2]int{spec.NEmbd, spec.NEmbd}
		shapes[fmt.Sprintf("layer%d.mlp_fc1", i)] = [2]int{4 * spec.NEmbd, spec.NEmbd}
		shapes[fmt.Sprintf("layer%d.mlp_fc2", i)] = [2]int{spec.NEmbd, 4 * spec.NEmbd}
	}
	for name, shape := range shapes {
		data, ok := spec.State[name]
		if !ok {
			return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("state matrix %q is missing", name)}
		}
		w, err := denseFrom(name, data, shape[0], shape[1])
		if err != nil {
			return nil, err
		}
		m.state[name] = w
	}
	return m, nil
}

// VocabSize implements Model.
func (m *Transformer) VocabSize() int { return m.vocabSize }

// Predict implements Predictor.
func (m *Transformer) Predict(ctx context.Context, window []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, Error{Code: BadInput, Msg: "empty window"}
	}
	if len(window) > m.blockSize {
		return nil, Error{Code: BadInput, Msg: fmt.Sprintf("window of %d codes exceeds block size %d", len(window), m.blockSize)}
	}
	if err := ValidateWindow(window, m.window, m.vocabSize); err != nil {
		return nil, err
	}

	keys := make([][]*mat.VecDense, m.nLayer)
	values := make([][]*mat.VecDense, m.nLayer)
	var logits *mat.VecDense
	for pos, code := range window {
		logits = m.forward(code, pos, keys, values)
	}
	return softmax(mat.Col(nil, 0, logits)), nil
}

// forward runs one position and returns the logits for the next code.
func (m *Transformer) forward(code, pos int, keys, values [][]*mat.VecDense) *mat.VecDense {
	x := mat.NewVecDense(m.nEmbd, nil)
	x.AddVec(m.state["wte"].RowView(code), m.state["wpe"].RowView(pos))
	x = rmsNorm(x)

	headDim := m.nEmbd / m.nHead
	scale := 1 / math.Sqrt(float64(headDim))

	for li := 0; li < m.nLayer; li++ {
		// Attention block.
		residual := x
		x = rmsNorm(x)
		q := m.linear(x, fmt.Sprintf("layer%d.attn_wq", li))
		k := m.linear(x, fmt.Sprintf("layer%d.attn_wk", li))
		v := m.linear(x, fmt.Sprintf("layer%d.attn_wv", li))
		keys[li] = append(keys[li], k)
		values[li] = append(values[li], v)

		attn := mat.NewVecDense(m.nEmbd, nil)
		for h := 0; h < m.nHead; h++ {
			hs := h * headDim
			qH := q.SliceVec(hs, hs+headDim)

			scores := make([]float64, len(keys[li]))
			for t, kt := range keys[li] {
				scores[t] = mat.Dot(qH, kt.SliceVec(hs, hs+headDim)) * scale
			}
			weights := softmax(scores)

			for t, vt := range values[li] {
				vH := vt.SliceVec(hs, hs+headDim)
				for j := 0; j < headDim; j++ {
					attn.SetVec(hs+j, attn.AtVec(hs+j)+weights[t]*vH.AtVec(j))
				}
			}
		}
		x = m.linear(attn, fmt.Sprintf("layer%d.attn_wo", li))
		x.AddVec(x, residual)

		// MLP block.
		residual = x
		x = rmsNorm(x)
		x = m.linear(x, fmt.Sprintf("layer%d.mlp_fc1", li))
		for i := 0; i < x.Len(); i++ {
			x.SetVec(i, math.Max(0, x.AtVec(i)))
		}
		x = m.linear(x, fmt.Sprintf("layer%d.mlp_fc2", li))
		x.AddVec(x, residual)
	}

	return m.linear(x, "lm_head")
}

func (m *Transformer) linear(x mat.Vector, name string) *mat.VecDense {
	var out mat.VecDense
	out.MulVec(m.state[name], x)
	return &out
}

func rmsNorm(x *mat.VecDense) *mat.VecDense {
	ms := mat.Dot(x, x) / float64(x.Len())
	out := mat.NewVecDense(x.Len(), nil)
	out.ScaleVec(1/math.Sqrt(ms+1e-5), x)
	return out
}
