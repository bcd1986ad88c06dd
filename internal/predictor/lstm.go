package predictor

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LSTM is a Keras-style sequential model: an input layer turning codes into
// vectors, recurrent layers, and dense layers ending in a softmax over the
// vocabulary.
type LSTM struct {
	vocabSize int
	window    int
	input     inputLayer
	layers    []seqLayer
}

// step is one timestep of a sequence flowing through the stack. Masked steps
// are skipped by recurrent layers.
type step struct {
	x      *mat.VecDense
	masked bool
}

type seqLayer interface {
	forward(seq []step) []step
	outputs() int
}

type inputLayer struct {
	embeddings *mat.Dense // nil means one-hot
	maskZero   bool
	dim        int
}

func (l inputLayer) forward(window []int) []step {
	seq := make([]step, len(window))
	for t, code := range window {
		var x *mat.VecDense
		if l.embeddings == nil {
			x = mat.NewVecDense(l.dim, nil)
			x.SetVec(code, 1)
		} else {
			x = mat.VecDenseCopyOf(l.embeddings.RowView(code))
		}
		seq[t] = step{x: x, masked: l.maskZero && code == 0}
	}
	return seq
}

type lstmLayer struct {
	units           int
	kernel          *mat.Dense // [input][4*units], gates i, f, c, o
	recurrent       *mat.Dense // [units][4*units]
	bias            *mat.VecDense
	returnSequences bool
	gate            func(float64) float64
}

func (l *lstmLayer) outputs() int { return l.units }

func (l *lstmLayer) forward(seq []step) []step {
	h := mat.NewVecDense(l.units, nil)
	c := mat.NewVecDense(l.units, nil)
	out := make([]step, 0, len(seq))

	for _, s := range seq {
		if s.masked {
			// Keras carries state over masked steps and repeats the last output.
			if l.returnSequences {
				out = append(out, step{x: mat.VecDenseCopyOf(h), masked: true})
			}
			continue
		}

		var z, r mat.VecDense
		z.MulVec(l.kernel.T(), s.x)
		r.MulVec(l.recurrent.T(), h)
		z.AddVec(&z, &r)
		z.AddVec(&z, l.bias)

		u := l.units
		nextH := mat.NewVecDense(u, nil)
		nextC := mat.NewVecDense(u, nil)
		for j := 0; j < u; j++ {
			i := l.gate(z.AtVec(j))
			f := l.gate(z.AtVec(u + j))
			g := math.Tanh(z.AtVec(2*u + j))
			o := l.gate(z.AtVec(3*u + j))
			cj := f*c.AtVec(j) + i*g
			nextC.SetVec(j, cj)
			nextH.SetVec(j, o*math.Tanh(cj))
		}
		h, c = nextH, nextC

		if l.returnSequences {
			out = append(out, step{x: mat.VecDenseCopyOf(h)})
		}
	}

	if !l.returnSequences {
		return []step{{x: h}}
	}
	return out
}

type denseLayer struct {
	kernel     *mat.Dense // [input][output]
	bias       *mat.VecDense
	activation string
}

func (l *denseLayer) outputs() int {
	_, c := l.kernel.Dims()
	return c
}

func (l *denseLayer) forward(seq []step) []step {
	out := make([]step, len(seq))
	for t, s := range seq {
		var y mat.VecDense
		y.MulVec(l.kernel.T(), s.x)
		y.AddVec(&y, l.bias)
		out[t] = step{x: activate(l.activation, &y), masked: s.masked}
	}
	return out
}

func activate(name string, v *mat.VecDense) *mat.VecDense {
	n := v.Len()
	switch name {
	case "softmax":
		return mat.NewVecDense(n, softmax(mat.Col(nil, 0, v)))
	case "relu":
		for i := 0; i < n; i++ {
			v.SetVec(i, math.Max(0, v.AtVec(i)))
		}
	case "tanh":
		for i := 0; i < n; i++ {
			v.SetVec(i, math.Tanh(v.AtVec(i)))
		}
	}
	return v
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func hardSigmoid(x float64) float64 { return math.Max(0, math.Min(1, 0.2*x+0.5)) }

func newLSTM(a *Artifact) (*LSTM, error) {
	if len(a.Layers) < 2 {
		return nil, Error{Code: BadArtifact, Msg: "lstm artifact needs an input layer and at least one more layer"}
	}

	m := &LSTM{vocabSize: a.VocabSize, window: a.WindowLength}

	first := a.Layers[0]
	switch first.Type {
	case "embedding":
		emb, err := denseFrom("layer 0 embeddings", first.Embeddings, a.VocabSize, 0)
		if err != nil {
			return nil, err
		}
		_, dim := emb.Dims()
		m.input = inputLayer{embeddings: emb, maskZero: first.MaskZero, dim: dim}
	case "onehot":
		m.input = inputLayer{dim: a.VocabSize}
	default:
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("layer 0 must be embedding or onehot, got %q", first.Type)}
	}

	in := m.input.dim
	for idx, spec := range a.Layers[1:] {
		name := fmt.Sprintf("layer %d", idx+1)
		var l seqLayer
		var err error
		switch spec.Type {
		case "lstm":
			l, err = buildLSTMLayer(name, spec, in)
		case "dense":
			l, err = buildDenseLayer(name, spec, in)
		default:
			err = Error{Code: BadArtifact, Msg: fmt.Sprintf("%s has unsupported type %q", name, spec.Type)}
		}
		if err != nil {
			return nil, err
		}
		m.layers = append(m.layers, l)
		in = l.outputs()
	}

	if in != a.VocabSize {
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("final layer has %d outputs, want vocabSize %d", in, a.VocabSize)}
	}
	if last, ok := m.layers[len(m.layers)-1].(*denseLayer); !ok || last.activation != "softmax" {
		return nil, Error{Code: BadArtifact, Msg: "final layer must be a dense softmax layer"}
	}
	return m, nil
}

func buildLSTMLayer(name string, spec LayerSpec, in int) (*lstmLayer, error) {
	if len(spec.RecurrentKernel) == 0 {
		return nil, Error{Code: BadArtifact, Msg: name + " has no recurrent kernel"}
	}
	units := len(spec.RecurrentKernel)
	kernel, err := denseFrom(name+" kernel", spec.Kernel, in, 4*units)
	if err != nil {
		return nil, err
	}
	recurrent, err := denseFrom(name+" recurrent kernel", spec.RecurrentKernel, units, 4*units)
	if err != nil {
		return nil, err
	}
	bias, err := vecFrom(name+" bias", spec.Bias, 4*units)
	if err != nil {
		return nil, err
	}

	gate := sigmoid
	switch spec.RecurrentActivation {
	case "", "sigmoid":
	case "hard_sigmoid":
		gate = hardSigmoid
	default:
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("%s has unsupported recurrent activation %q", name, spec.RecurrentActivation)}
	}

	return &lstmLayer{
		units:           units,
		kernel:          kernel,
		recurrent:       recurrent,
		bias:            bias,
		returnSequences: spec.ReturnSequences,
		gate:            gate,
	}, nil
}

func buildDenseLayer(name string, spec LayerSpec, in int) (*denseLayer, error) {
	kernel, err := denseFrom(name+" kernel", spec.Kernel, in, 0)
	if err != nil {
		return nil, err
	}
	_, out := kernel.Dims()
	bias, err := vecFrom(name+" bias", spec.Bias, out)
	if err != nil {
		return nil, err
	}
	switch spec.Activation {
	case "softmax", "relu", "tanh", "linear":
	case "":
		spec.Activation = "linear"
	default:
		return nil, Error{Code: BadArtifact, Msg: fmt.Sprintf("%s has unsupported activation %q", name, spec.Activation)}
	}
	return &denseLayer{kernel: kernel, bias: bias, activation: spec.Activation}, nil
}

// VocabSize implements Model.
func (m *LSTM) VocabSize() int { return m.vocabSize }

// Predict runs the window through the stack and returns the distribution of
// the last timestep.
func (m *LSTM) Predict(ctx context.Context, window []int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, Error{Code: BadInput, Msg: "empty window"}
	}
	if err := ValidateWindow(window, m.window, m.vocabSize); err != nil {
		return nil, err
	}

	seq := m.input.forward(window)
	for _, l := range m.layers {
		seq = l.forward(seq)
	}
	last := seq[len(seq)-1].x
	return mat.Col(nil, 0, last), nil
}
