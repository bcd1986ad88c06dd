// Package generator implements the autoregressive name sampling loop: it
// extends a seed one character at a time from predictor distributions until a
// terminator, and retries when the result is already a corpus name.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"turkish-name-generator/internal/corpus"
	"turkish-name-generator/internal/logging"
	"turkish-name-generator/internal/metrics"
	"turkish-name-generator/internal/predictor"
	"turkish-name-generator/internal/translit"
	"turkish-name-generator/internal/vocab"
)

const (
	// DefaultMaxSteps caps the characters sampled in one attempt.
	DefaultMaxSteps = 40
	// DefaultMaxRetries caps the attempts discarded as corpus duplicates.
	DefaultMaxRetries = 100
)

// ErrRetriesExhausted is returned with the last candidate when every attempt
// produced a name already in the corpus.
var ErrRetriesExhausted = errors.New("every attempt produced a known name")

// StopReason tells why sampling of a name ended.
type StopReason string

const (
	// StopTerminator means the end-of-name newline was sampled.
	StopTerminator StopReason = "terminator"
	// StopNull means the null code was sampled.
	StopNull StopReason = "null"
	// StopStepLimit means the step cap was reached.
	StopStepLimit StopReason = "step_limit"
)

// Runtime is the state computed once at startup and shared read-only by every
// generation.
type Runtime struct {
	Vocab     *vocab.Vocabulary
	Corpus    *corpus.Corpus
	Window    int
	Predictor predictor.Predictor
}

// NewRuntime derives the vocabulary and window length from c. The window is
// one shorter than the longest record.
func NewRuntime(c *corpus.Corpus, p predictor.Predictor) (Runtime, error) {
	if c == nil || c.Len() == 0 {
		return Runtime{}, errors.New("corpus is empty")
	}
	window := c.MaxLen() - 1
	if window < 1 {
		return Runtime{}, fmt.Errorf("longest corpus record has %d characters, need at least 2", c.MaxLen())
	}
	return Runtime{
		Vocab:     vocab.Build(c.Records()),
		Corpus:    c,
		Window:    window,
		Predictor: p,
	}, nil
}

// Options tunes generation.
type Options struct {
	MaxSteps   int
	MaxRetries int
	// Trace records every sampling step in Result.Trace.
	Trace bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{MaxSteps: DefaultMaxSteps, MaxRetries: DefaultMaxRetries}
}

// Result is one generated name.
type Result struct {
	// Name includes the trailing newline when Stop is StopTerminator.
	Name string
	// Seed is the normalised seed the name was grown from.
	Seed     string
	Attempts int
	Stop     StopReason
	Steps    int
	// Trace covers the returned attempt only.
	Trace []TraceStep
}

// Generator samples names. It is safe for concurrent use.
type Generator struct {
	rt     Runtime
	opts   Options
	logger logr.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator. A nil rng is seeded from the clock.
func New(rt Runtime, opts Options, rng *rand.Rand, logger logr.Logger) (*Generator, error) {
	var errs error
	if rt.Vocab == nil {
		errs = multierr.Append(errs, errors.New("runtime has no vocabulary"))
	}
	if rt.Corpus == nil {
		errs = multierr.Append(errs, errors.New("runtime has no corpus"))
	}
	if rt.Predictor == nil {
		errs = multierr.Append(errs, errors.New("runtime has no predictor"))
	}
	if rt.Window < 1 {
		errs = multierr.Append(errs, fmt.Errorf("window length must be at least 1, got %d", rt.Window))
	}
	if opts.MaxSteps < 1 {
		errs = multierr.Append(errs, fmt.Errorf("max steps must be at least 1, got %d", opts.MaxSteps))
	}
	if opts.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max retries must not be negative, got %d", opts.MaxRetries))
	}
	if errs != nil {
		return nil, errs
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rt: rt, opts: opts, rng: rng, logger: logger.WithName("generator")}, nil
}

// Generate grows one name from seed that is not a corpus record.
//
// The seed is lower-cased and transliterated first. A seed character outside
// the vocabulary fails with a *vocab.UnknownCharError. When all
// 1+MaxRetries attempts hit corpus names the last one is returned together
// with ErrRetriesExhausted.
func (g *Generator) Generate(ctx context.Context, seed string) (Result, error) {
	logger := g.logger.WithValues("generationID", uuid.NewString())
	raw := translit.NormalizeSeed(seed)
	res := Result{Seed: raw}

	if _, err := g.rt.Vocab.Encode(raw); err != nil {
		metrics.RecordGenerationError("unknown_char")
		return res, fmt.Errorf("invalid seed %q: %w", seed, err)
	}

	for attempt := 1; attempt <= g.opts.MaxRetries+1; attempt++ {
		c, err := g.attempt(ctx, logger, raw, attempt)
		if err != nil {
			metrics.RecordGenerationError(errorReason(err))
			return res, err
		}
		res.Name, res.Stop, res.Steps, res.Trace = c.name, c.stop, c.steps, c.trace
		res.Attempts = attempt

		if !g.rt.Corpus.Contains(c.name) {
			metrics.RecordNameGenerated(string(c.stop))
			logger.V(logging.DEBUG).Info("Generated name", "name", c.name, "attempts", attempt, "stop", c.stop)
			return res, nil
		}
		metrics.RecordDuplicateRetry()
		logger.V(logging.DEBUG).Info("Discarding known name", "name", c.name, "attempt", attempt)
	}

	metrics.RecordGenerationError("retries_exhausted")
	logger.V(logging.DEFAULT).Info("Giving up on a new name", "name", res.Name, "attempts", res.Attempts)
	return res, ErrRetriesExhausted
}

// GenerateN generates n names one after another. Exhausted retries are
// collected and generation continues; any other error stops it.
func (g *Generator) GenerateN(ctx context.Context, n int, seed string) ([]Result, error) {
	if n < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", n)
	}
	results := make([]Result, 0, n)
	var errs error
	for i := 0; i < n; i++ {
		res, err := g.Generate(ctx, seed)
		if err != nil && !errors.Is(err, ErrRetriesExhausted) {
			return results, multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, err)
		results = append(results, res)
	}
	return results, errs
}

type candidate struct {
	name  string
	stop  StopReason
	steps int
	trace []TraceStep
}

// attempt samples a single candidate from raw.
func (g *Generator) attempt(ctx context.Context, logger logr.Logger, raw string, attempt int) (candidate, error) {
	var c candidate
	text := []rune(raw)

	for pos := 0; pos < g.opts.MaxSteps; pos++ {
		if err := ctx.Err(); err != nil {
			return candidate{}, err
		}

		codes, err := g.rt.Vocab.Encode(string(text))
		if err != nil {
			return candidate{}, err
		}
		window := vocab.PadPre(codes, g.rt.Window)

		start := time.Now()
		probs, err := g.rt.Predictor.Predict(ctx, window)
		metrics.RecordPredictDuration(time.Since(start))
		if err != nil {
			return candidate{}, fmt.Errorf("failed to predict step %d: %w", pos, err)
		}
		if err := predictor.ValidateOutput(probs, g.rt.Vocab.Size()); err != nil {
			return candidate{}, fmt.Errorf("invalid prediction at step %d: %w", pos, err)
		}

		s := sampleIndex(probs, g.draw())
		if g.opts.Trace {
			step := newTraceStep(attempt, pos, string(text), probs, s, g.rt.Vocab)
			c.trace = append(c.trace, step)
			logger.V(logging.TRACE).Info("Sampled", "attempt", attempt, "position", pos, "char", step.ChosenChar,
				"prob", step.ChosenProb, "rank", step.ChosenRank, "u", step.RandomU)
		}

		c.steps++
		if s.Index == vocab.Null {
			c.name, c.stop = string(text), StopNull
			return c, nil
		}
		r, err := g.rt.Vocab.DecodeCode(s.Index)
		if err != nil {
			return candidate{}, err
		}
		text = append(text, r)
		if r == '\n' {
			c.name, c.stop = string(text), StopTerminator
			return c, nil
		}
	}
	c.name, c.stop = string(text), StopStepLimit
	return c, nil
}

func (g *Generator) draw() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func errorReason(err error) string {
	var perr predictor.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &perr):
		return perr.Code
	default:
		return "unknown"
	}
}
