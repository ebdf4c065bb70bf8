package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conceptlab/conceptci/internal/dataset"
	"github.com/conceptlab/conceptci/internal/statistics"
	"github.com/conceptlab/conceptci/internal/wizard"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type ciOptions struct {
	file       string
	columns    []string
	nBoot      int
	seed       int64
	confidence float64
	format     string
}

// ciResult is one estimated sample.
type ciResult struct {
	Sample          string  `json:"sample"`
	N               int     `json:"n"`
	Mean            float64 `json:"mean"`
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	StdErr          float64 `json:"std_err"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NBoot           int     `json:"n_boot"`
}

type namedSample struct {
	name   string
	values []float64
}

func newCICommand(app *appContext) *cobra.Command {
	opts := &ciOptions{}

	cmd := &cobra.Command{
		Use:   "ci [values...]",
		Short: "Estimate a mean with a percentile bootstrap confidence interval",
		Long: `Estimate the mean of a numeric sample and its percentile bootstrap
confidence interval.

Values come from the arguments, from --file (one or more --column of a CSV,
or a plain list of numbers), or from stdin. Numbers may be separated by
spaces, commas or semicolons and may carry a % suffix (1.5% = 0.015).

Several --column flags are estimated concurrently, each with its own
generator seeded with seed+i. A negative --seed is non-deterministic.`,
		Example: `  conceptci ci 0.01 0.02 0.015 0.025 0.018
  conceptci ci --file returns.csv --column a --column b --seed 42
  cat values.txt | conceptci ci --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCI(cmd, app, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read values from a CSV or plain text file")
	cmd.Flags().StringArrayVarP(&opts.columns, "column", "c", nil, "CSV column to estimate (repeatable)")
	cmd.Flags().IntVarP(&opts.nBoot, "n-boot", "n", statistics.DefaultIterations, "Number of bootstrap resamples")
	cmd.Flags().Int64Var(&opts.seed, "seed", -1, "Random seed (negative for non-deterministic)")
	cmd.Flags().Float64Var(&opts.confidence, "confidence", statistics.DefaultConfidenceLevel, "Two-sided confidence level")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table or json")

	return cmd
}

func runCI(cmd *cobra.Command, app *appContext, opts *ciOptions, args []string) error {
	if opts.format != "table" && opts.format != "json" {
		return inputError(fmt.Errorf("unsupported format %q: must be table or json", opts.format))
	}

	// Config supplies defaults for flags the user did not set.
	cfg, err := app.config()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("n-boot") {
		opts.nBoot = cfg.Bootstrap.Iterations
	}
	if !cmd.Flags().Changed("seed") {
		opts.seed = cfg.Seed()
	}
	if !cmd.Flags().Changed("confidence") {
		opts.confidence = cfg.Bootstrap.Confidence
	}
	if opts.nBoot < 1 {
		return inputError(fmt.Errorf("%w: got %d", statistics.ErrInvalidIterations, opts.nBoot))
	}

	samples, err := loadSamples(cmd, opts, args)
	if err != nil {
		return err
	}

	results, err := estimateAll(samples, opts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	printCITable(cmd, results)
	return nil
}

func loadSamples(cmd *cobra.Command, opts *ciOptions, args []string) ([]namedSample, error) {
	switch {
	case len(args) > 0 && opts.file != "":
		return nil, inputError(errors.New("pass values as arguments or with --file, not both"))
	case len(opts.columns) > 0 && opts.file == "":
		return nil, inputError(errors.New("--column requires --file"))
	case len(args) > 0:
		values, err := dataset.ParseArgs(args)
		if err != nil {
			return nil, inputError(err)
		}
		return []namedSample{{name: "args", values: values}}, nil
	case opts.file != "" && len(opts.columns) > 0:
		rows, err := dataset.LoadCSV(opts.file)
		if err != nil {
			return nil, err
		}
		samples := make([]namedSample, 0, len(opts.columns))
		for _, c := range opts.columns {
			values, err := dataset.Column(rows, c)
			if err != nil {
				return nil, inputError(fmt.Errorf("%s: %w", opts.file, err))
			}
			samples = append(samples, namedSample{name: c, values: values})
		}
		return samples, nil
	case opts.file != "":
		f, err := os.Open(opts.file)
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck
		values, err := dataset.ParseValues(f)
		if err != nil {
			return nil, inputError(fmt.Errorf("%s: %w", opts.file, err))
		}
		return []namedSample{{name: filepath.Base(opts.file), values: values}}, nil
	default:
		in := cmd.InOrStdin()
		if wizard.IsTTY(in) {
			return nil, inputError(errors.New("no values given: pass them as arguments, with --file or on stdin"))
		}
		values, err := dataset.ParseValues(in)
		if err != nil {
			return nil, inputError(fmt.Errorf("stdin: %w", err))
		}
		return []namedSample{{name: "stdin", values: values}}, nil
	}
}

// estimateAll runs one estimator per sample concurrently. Each goroutine
// owns its generator.
func estimateAll(samples []namedSample, opts *ciOptions) ([]ciResult, error) {
	results := make([]ciResult, len(samples))
	var g errgroup.Group
	for i, s := range samples {
		seed := opts.seed
		if seed >= 0 {
			seed += int64(i)
		}
		g.Go(func() error {
			ci, err := statistics.BootstrapCI(s.values, statistics.Options{
				Iterations:      opts.nBoot,
				ConfidenceLevel: opts.confidence,
				Rand:            statistics.NewRand(seed),
			})
			if err != nil {
				return fmt.Errorf("sample %q: %w", s.name, err)
			}
			results[i] = ciResult{
				Sample:          s.name,
				N:               len(s.values),
				Mean:            ci.Mean,
				Lower:           ci.Lower,
				Upper:           ci.Upper,
				StdErr:          ci.StdErr,
				ConfidenceLevel: ci.ConfidenceLevel,
				NBoot:           ci.NumBootstraps,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printCITable(cmd *cobra.Command, results []ciResult) {
	level := statistics.DefaultConfidenceLevel
	if len(results) > 0 {
		level = results[0].ConfidenceLevel
	}
	t := newTable("SAMPLE", "N", "MEAN", fmt.Sprintf("%g%% LOWER", level*100), "UPPER", "WIDTH").alignRight(1, 2, 3, 4, 5)
	for _, r := range results {
		t.add(r.Sample, fmt.Sprint(r.N), formatFloat(r.Mean), formatFloat(r.Lower), formatFloat(r.Upper), formatFloat(r.Upper-r.Lower))
	}
	t.render(cmd.OutOrStdout(), nil)
}
