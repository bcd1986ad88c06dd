package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"turkish-name-generator/internal/corpus"
	"turkish-name-generator/internal/predictor"
	"turkish-name-generator/internal/vocab"
)

var names = []string{"ali\n", "veli\n"}

// script emits one character per call regardless of the window. A zero rune
// emits the null code.
type script struct {
	v       *vocab.Vocabulary
	chars   []rune
	windows [][]int
}

func (s *script) Predict(_ context.Context, window []int) ([]float64, error) {
	if len(s.windows) >= len(s.chars) {
		return nil, errors.New("script exhausted")
	}
	r := s.chars[len(s.windows)]
	s.windows = append(s.windows, append([]int(nil), window...))

	code := vocab.Null
	if r != 0 {
		c, ok := s.v.Code(r)
		if !ok {
			return nil, fmt.Errorf("script character %q is not in the vocabulary", r)
		}
		code = c
	}
	probs := make([]float64, s.v.Size())
	probs[code] = 1
	return probs, nil
}

func scripted(t *testing.T, records []string, text string) (Runtime, *script) {
	t.Helper()
	rt, err := NewRuntime(corpus.New(records), nil)
	require.NoError(t, err)
	s := &script{v: rt.Vocab, chars: []rune(text)}
	rt.Predictor = s
	return rt, s
}

func newGenerator(t *testing.T, rt Runtime, opts Options) *Generator {
	t.Helper()
	g, err := New(rt, opts, rand.New(rand.NewSource(1)), testr.New(t))
	require.NoError(t, err)
	return g
}

func TestNewRuntime(t *testing.T) {
	rt, err := NewRuntime(corpus.New(names), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, rt.Window)
	assert.Equal(t, 7, rt.Vocab.Size())

	_, err = NewRuntime(corpus.New(nil), nil)
	assert.Error(t, err)

	_, err = NewRuntime(corpus.New([]string{"a"}), nil)
	assert.Error(t, err, "a one character corpus leaves no window")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Runtime{}, Options{MaxSteps: 0, MaxRetries: -1}, nil, testr.New(t))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 6)
}

func TestGenerateStops(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		maxSteps int
		want     Result
	}{
		{
			name:     "terminator",
			script:   "vali\n",
			maxSteps: DefaultMaxSteps,
			want:     Result{Name: "vali\n", Attempts: 1, Stop: StopTerminator, Steps: 5},
		},
		{
			name:     "null code",
			script:   "a\x00",
			maxSteps: DefaultMaxSteps,
			want:     Result{Name: "a", Attempts: 1, Stop: StopNull, Steps: 2},
		},
		{
			name:     "step limit",
			script:   "lll",
			maxSteps: 3,
			want:     Result{Name: "lll", Attempts: 1, Stop: StopStepLimit, Steps: 3},
		},
		{
			name:     "default step limit",
			script:   strings.Repeat("l", DefaultMaxSteps),
			maxSteps: DefaultOptions().MaxSteps,
			want:     Result{Name: strings.Repeat("l", 40), Attempts: 1, Stop: StopStepLimit, Steps: 40},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt, s := scripted(t, names, tc.script)
			opts := DefaultOptions()
			opts.MaxSteps = tc.maxSteps
			g := newGenerator(t, rt, opts)

			got, err := g.Generate(context.Background(), "")
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Generate (-want +got):\n%s", diff)
			}
			assert.Len(t, s.windows, len(s.chars))
		})
	}
}

func TestGenerateWindows(t *testing.T) {
	rt, s := scripted(t, names, "vali\n")
	g := newGenerator(t, rt, DefaultOptions())

	_, err := g.Generate(context.Background(), "")
	require.NoError(t, err)

	want := [][]int{
		{0, 0, 0, 0},
		{0, 0, 0, 5},
		{0, 0, 5, 4},
		{0, 5, 4, 1},
		{5, 4, 1, 2},
	}
	assert.Equal(t, want, s.windows)
}

func TestGenerateRetriesKnownNames(t *testing.T) {
	rt, s := scripted(t, names, "ali\neli\n")
	g := newGenerator(t, rt, DefaultOptions())

	got, err := g.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "eli\n", got.Name)
	assert.Equal(t, 2, got.Attempts)
	assert.False(t, rt.Corpus.Contains(got.Name))

	// The second attempt starts over from the seed.
	assert.Equal(t, []int{0, 0, 0, 0}, s.windows[4])
}

func TestGenerateRetriesExhausted(t *testing.T) {
	rt, _ := scripted(t, names, "ali\nali\nali\n")
	opts := DefaultOptions()
	opts.MaxRetries = 2
	g := newGenerator(t, rt, opts)

	got, err := g.Generate(context.Background(), "")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, "ali\n", got.Name)
	assert.Equal(t, 3, got.Attempts)
}

func TestGenerateNormalisesSeed(t *testing.T) {
	records := []string{"oz\n", "ali\n", "veli\n"}
	rt, s := scripted(t, records, "a\n")
	g := newGenerator(t, rt, DefaultOptions())

	got, err := g.Generate(context.Background(), "Öz")
	require.NoError(t, err)
	assert.Equal(t, "oz", got.Seed)
	assert.Equal(t, "oza\n", got.Name)
	assert.Equal(t, 2, got.Steps)

	codes, err := rt.Vocab.Encode("oz")
	require.NoError(t, err)
	assert.Equal(t, vocab.PadPre(codes, rt.Window), s.windows[0])
}

func TestGenerateUnknownSeedCharacter(t *testing.T) {
	rt, s := scripted(t, names, "vali\n")
	g := newGenerator(t, rt, DefaultOptions())

	got, err := g.Generate(context.Background(), "xyz")
	var charErr *vocab.UnknownCharError
	require.ErrorAs(t, err, &charErr)
	assert.Equal(t, 'x', charErr.Char)
	assert.Equal(t, "xyz", got.Seed)
	assert.Empty(t, s.windows, "predictor must not be called")
}

func TestGeneratePredictorFailures(t *testing.T) {
	tests := []struct {
		name     string
		probs    []float64
		err      error
		wantCode string
	}{
		{
			name:     "predictor error",
			err:      predictor.Error{Code: predictor.Unavailable, Msg: "down"},
			wantCode: predictor.Unavailable,
		},
		{
			name:     "wrong length",
			probs:    []float64{0.5, 0.5},
			wantCode: predictor.BadOutput,
		},
		{
			name:     "negative",
			probs:    []float64{-0.5, 0.5, 0.5, 0.5, 0, 0, 0},
			wantCode: predictor.BadOutput,
		},
		{
			name:     "nan",
			probs:    []float64{math.NaN(), 0.5, 0.5, 0, 0, 0, 0},
			wantCode: predictor.BadOutput,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := NewRuntime(corpus.New(names), predictor.Func(func(context.Context, []int) ([]float64, error) {
				return tc.probs, tc.err
			}))
			require.NoError(t, err)
			g := newGenerator(t, rt, DefaultOptions())

			_, err = g.Generate(context.Background(), "")
			var perr predictor.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.wantCode, perr.Code)
		})
	}
}

func TestGenerateCanceled(t *testing.T) {
	rt, s := scripted(t, names, "vali\n")
	g := newGenerator(t, rt, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.windows)
}

func TestGenerateTrace(t *testing.T) {
	rt, _ := scripted(t, names, "ali\nvali\n")
	opts := DefaultOptions()
	opts.Trace = true
	g := newGenerator(t, rt, opts)

	got, err := g.Generate(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got.Trace, got.Steps)

	contexts := make([]string, 0, len(got.Trace))
	chosen := make([]string, 0, len(got.Trace))
	for _, step := range got.Trace {
		assert.Equal(t, 2, step.Attempt)
		assert.Equal(t, 1, step.ChosenRank)
		assert.Equal(t, 1.0, step.ChosenProb)
		assert.Equal(t, 1.0, step.CumAfter)
		assert.GreaterOrEqual(t, step.RandomU, 0.0)
		assert.Less(t, step.RandomU, 1.0)
		assert.Len(t, step.TopK, traceTopK)
		contexts = append(contexts, step.Context)
		chosen = append(chosen, step.ChosenChar)
	}
	assert.Equal(t, []string{"", "v", "va", "val", "vali"}, contexts)
	assert.Equal(t, []string{"v", "a", "l", "i", "<END>"}, chosen)
}

func TestGenerateWithoutTrace(t *testing.T) {
	rt, _ := scripted(t, names, "vali\n")
	g := newGenerator(t, rt, DefaultOptions())

	got, err := g.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got.Trace)
}

// spread is a fixed distribution over the vocabulary of names.
func spread(context.Context, []int) ([]float64, error) {
	return []float64{0.05, 0.2, 0.2, 0.25, 0.1, 0.1, 0.1}, nil
}

func TestGenerateIsDeterministicForASeed(t *testing.T) {
	rt, err := NewRuntime(corpus.New(names), predictor.Func(spread))
	require.NoError(t, err)

	run := func() []Result {
		g, err := New(rt, DefaultOptions(), rand.New(rand.NewSource(42)), testr.New(t))
		require.NoError(t, err)
		results, err := g.GenerateN(context.Background(), 5, "")
		require.NoError(t, err)
		return results
	}

	first, second := run(), run()
	if diff := cmp.Diff(first, second, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("same seed produced different names (-first +second):\n%s", diff)
	}
	for _, res := range first {
		assert.False(t, rt.Corpus.Contains(res.Name), "returned corpus name %q", res.Name)
	}
}

func TestGenerateN(t *testing.T) {
	rt, _ := scripted(t, names, "vali\neli\n")
	g := newGenerator(t, rt, DefaultOptions())

	results, err := g.GenerateN(context.Background(), 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vali\n", results[0].Name)
	assert.Equal(t, "eli\n", results[1].Name)

	results, err = g.GenerateN(context.Background(), 0, "")
	assert.NoError(t, err)
	assert.Empty(t, results)

	_, err = g.GenerateN(context.Background(), -1, "")
	assert.Error(t, err)
}

func TestGenerateNContinuesAfterExhaustion(t *testing.T) {
	rt, _ := scripted(t, names, "ali\nvali\n")
	opts := DefaultOptions()
	opts.MaxRetries = 0
	g := newGenerator(t, rt, opts)

	results, err := g.GenerateN(context.Background(), 2, "")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	require.Len(t, results, 2)
	assert.Equal(t, "ali\n", results[0].Name)
	assert.Equal(t, "vali\n", results[1].Name)
}

func TestGenerateNStopsOnError(t *testing.T) {
	rt, _ := scripted(t, names, "vali\n")
	g := newGenerator(t, rt, DefaultOptions())

	results, err := g.GenerateN(context.Background(), 3, "")
	assert.Error(t, err)
	assert.Len(t, results, 1)
}

func TestGenerateConcurrent(t *testing.T) {
	rt, err := NewRuntime(corpus.New(names), predictor.Func(spread))
	require.NoError(t, err)
	g := newGenerator(t, rt, DefaultOptions())

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			res, err := g.Generate(context.Background(), "a")
			if err != nil {
				return err
			}
			if rt.Corpus.Contains(res.Name) {
				return fmt.Errorf("returned corpus name %q", res.Name)
			}
			return nil
		})
	}
	assert.NoError(t, eg.Wait())
}
