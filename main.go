package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"turkish-name-generator/internal/corpus"
	"turkish-name-generator/internal/generator"
	"turkish-name-generator/internal/logging"
	"turkish-name-generator/internal/metrics"
	"turkish-name-generator/internal/predictor"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, flush := logging.NewLogger(cfg.Verbosity, cfg.Development)
	defer flush()
	setupLog := logger.WithName("setup")
	setupLog.V(logging.VERBOSE).Info("Configuration loaded", "config", cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, reg, logger); err != nil {
		logging.Fatal(setupLog, err, "Name generator failed")
	}
}

// run starts the ops server, loads everything generation needs and serves
// the interactive shell until it exits or ctx is done.
func run(ctx context.Context, cfg *Config, in io.Reader, out io.Writer, gatherer prometheus.Gatherer, logger logr.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	srv := NewServer(gatherer, logger)
	if cfg.MetricsAddr != "" {
		eg.Go(func() error {
			return srv.Run(ctx, cfg.MetricsAddr)
		})
	}

	eg.Go(func() error {
		defer cancel()
		gen, err := setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		srv.SetReady(true)

		err = newShell(gen, in, out, cfg.Generation.Trace, logger).run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return eg.Wait()
}

// setup loads the corpus and predictor, warms the predictor up and builds
// the generator.
func setup(ctx context.Context, cfg *Config, logger logr.Logger) (*generator.Generator, error) {
	setupLog := logger.WithName("setup")

	c, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}
	rt, err := generator.NewRuntime(c, nil)
	if err != nil {
		return nil, fmt.Errorf("unusable corpus %s: %w", cfg.CorpusPath, err)
	}
	setupLog.Info("Corpus loaded", "path", cfg.CorpusPath, "names", c.Len(),
		"vocabSize", rt.Vocab.Size(), "window", rt.Window)

	p, err := buildPredictor(cfg, rt.Vocab.Size())
	if err != nil {
		return nil, err
	}
	if cfg.Model.CacheSize > 0 {
		if p, err = predictor.NewCached(p, cfg.Model.CacheSize); err != nil {
			return nil, fmt.Errorf("failed to create predictor cache: %w", err)
		}
	}
	rt.Predictor = p

	// The first prediction pays for lazy initialisation; do it before the
	// user is waiting.
	probs, err := p.Predict(ctx, make([]int, rt.Window))
	if err != nil {
		return nil, fmt.Errorf("predictor warm-up failed: %w", err)
	}
	if err := predictor.ValidateOutput(probs, rt.Vocab.Size()); err != nil {
		return nil, fmt.Errorf("predictor warm-up failed: %w", err)
	}
	setupLog.Info("Predictor ready", "kind", cfg.Model.Kind)

	var rng *rand.Rand
	if cfg.Generation.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*cfg.Generation.RandomSeed))
	}
	return generator.New(rt, cfg.generatorOptions(), rng, logger)
}

func buildPredictor(cfg *Config, vocabSize int) (predictor.Predictor, error) {
	switch cfg.Model.Kind {
	case ModelKindRemote:
		return predictor.NewRemote(cfg.Model.URL, cfg.Model.Timeout.Duration), nil
	case ModelKindArtifact:
		m, err := predictor.LoadFile(cfg.Model.Path)
		if err != nil {
			return nil, err
		}
		if m.VocabSize() != vocabSize {
			return nil, fmt.Errorf("model %s predicts %d codes but the corpus vocabulary has %d",
				cfg.Model.Path, m.VocabSize(), vocabSize)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", cfg.Model.Kind)
	}
}
