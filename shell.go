package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"turkish-name-generator/internal/generator"
	"turkish-name-generator/internal/logging"
)

var (
	errNotInteger = errors.New("please type an integer number")
	errNegative   = errors.New("please type zero or a positive number")
	errNotAlpha   = errors.New("please type alphabetical character(s)")
	errEmptySeed  = errors.New("please type at least one character")
)

// nameGenerator is the part of *generator.Generator the shell drives.
type nameGenerator interface {
	Generate(ctx context.Context, seed string) (generator.Result, error)
	GenerateN(ctx context.Context, n int, seed string) ([]generator.Result, error)
}

// shell is the interactive menu loop.
type shell struct {
	gen    nameGenerator
	in     io.Reader
	out    io.Writer
	trace  bool
	logger logr.Logger

	lines chan string
}

func newShell(gen nameGenerator, in io.Reader, out io.Writer, trace bool, logger logr.Logger) *shell {
	return &shell{gen: gen, in: in, out: out, trace: trace, logger: logger.WithName("shell")}
}

// parseCount validates the number of names to generate.
func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errNotInteger
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

// validateSeed accepts letters only and returns them lower-cased.
func validateSeed(s string, allowEmpty bool) (string, error) {
	if s == "" {
		if allowEmpty {
			return "", nil
		}
		return "", errEmptySeed
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return "", errNotAlpha
		}
	}
	return strings.ToLowerSpecial(unicode.TurkishCase, s), nil
}

// run serves the menu until the user exits, input ends or ctx is done. Only
// the last case returns an error.
func (s *shell) run(ctx context.Context) error {
	s.lines = make(chan string)
	done := make(chan struct{})
	defer close(done)
	go s.scan(done)

	s.printf("\nWelcome to the Turkish Name Generator!\n")
	s.printf("These created names will NOT be REAL NAMES!\n")
	s.printf("They are being created by Artificial Intelligence.\n")

	for {
		s.menu()
		choice, err := s.prompt(ctx, "\nType your choice here: ")
		if err != nil {
			return eofIsExit(err)
		}

		switch strings.TrimSpace(choice) {
		case "1":
			res, err := s.gen.Generate(ctx, "")
			s.printName(res, err)
		case "2":
			seed, err := s.promptSeed(ctx, false)
			if err != nil {
				return eofIsExit(err)
			}
			res, err := s.gen.Generate(ctx, seed)
			s.printName(res, err)
		case "3":
			n, err := s.promptCount(ctx)
			if err != nil {
				return eofIsExit(err)
			}
			s.printf("\nYour Turkish Names:\n\n")
			results, err := s.gen.GenerateN(ctx, n, "")
			s.printNames(results, err)
		case "4":
			n, err := s.promptCount(ctx)
			if err != nil {
				return eofIsExit(err)
			}
			seed, err := s.promptSeed(ctx, true)
			if err != nil {
				return eofIsExit(err)
			}
			s.printf("\nYour Turkish Names starting with '%s':\n\n", seed)
			results, err := s.gen.GenerateN(ctx, n, seed)
			s.printNames(results, err)
		case "5":
			s.logger.V(logging.VERBOSE).Info("Exiting on user request")
			return nil
		default:
			s.printf("\nNot a valid choice!\n")
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (s *shell) menu() {
	s.printf("\nType '1' to generate a turkish name.\n")
	s.printf("Type '2' to generate a turkish name starting with characters you will enter.\n")
	s.printf("Type '3' to generate turkish names many as numbers you will enter.\n")
	s.printf("Type '4' to generate turkish names starting with characters you will enter.\n")
	s.printf("Type '5' to exit.\n")
}

// scan feeds input lines to s.lines and closes it at end of input or once
// done is closed.
func (s *shell) scan(done <-chan struct{}) {
	defer close(s.lines)
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		select {
		case s.lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-done:
			return
		}
	}
}

func (s *shell) prompt(ctx context.Context, msg string) (string, error) {
	s.printf("%s", msg)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (s *shell) promptCount(ctx context.Context) (int, error) {
	for {
		line, err := s.prompt(ctx, "\nType number of Turkish names: ")
		if err != nil {
			return 0, err
		}
		n, err := parseCount(line)
		if err == nil {
			return n, nil
		}
		s.printf("\n%s.\n", capitalize(err.Error()))
	}
}

func (s *shell) promptSeed(ctx context.Context, allowEmpty bool) (string, error) {
	for {
		line, err := s.prompt(ctx, "\nType initial characters: ")
		if err != nil {
			return "", err
		}
		seed, err := validateSeed(line, allowEmpty)
		if err == nil {
			return seed, nil
		}
		s.printf("\n%s.\n", capitalize(err.Error()))
	}
}

func (s *shell) printName(res generator.Result, err error) {
	if err != nil && !errors.Is(err, generator.ErrRetriesExhausted) {
		s.generationFailed(err)
		return
	}
	s.printTrace(res)
	s.printf("\nYour Turkish Name: %s\n", displayName(res.Name))
	if err != nil {
		s.printf("(every attempt matched a real name)\n")
	}
}

func (s *shell) printNames(results []generator.Result, err error) {
	for i, res := range results {
		s.printTrace(res)
		s.printf("%d: %s\n", i+1, displayName(res.Name))
	}
	if err == nil {
		return
	}
	if errors.Is(err, generator.ErrRetriesExhausted) {
		s.printf("(some attempts matched real names every time)\n")
	}
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, generator.ErrRetriesExhausted) {
			s.generationFailed(e)
		}
	}
}

func (s *shell) printTrace(res generator.Result) {
	if !s.trace {
		return
	}
	for _, step := range res.Trace {
		s.printf("  [attempt %d, step %d] context=%q chose %s (p=%.4f, rank %d)\n",
			step.Attempt, step.Position, step.Context, step.ChosenChar, step.ChosenProb, step.ChosenRank)
		s.printf("    %s\n", step.Reason)
	}
}

func (s *shell) generationFailed(err error) {
	s.logger.V(logging.VERBOSE).Info("Generation failed", "error", err.Error())
	s.printf("\nCould not generate a name: %v\n", err)
}

func (s *shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// displayName drops the end-of-name newline.
func displayName(name string) string {
	return strings.TrimSuffix(name, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func eofIsExit(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
