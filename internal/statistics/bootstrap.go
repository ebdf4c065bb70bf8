package statistics

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/aclements/go-moremath/stats"
)

// DefaultIterations is the number of bootstrap resamples used when the caller
// does not ask for a specific count.
const DefaultIterations = 1000

// DefaultConfidenceLevel is the two-sided confidence level of Bootstrap95.
const DefaultConfidenceLevel = 0.95

var (
	// ErrEmptySample is returned when there is nothing to resample.
	ErrEmptySample = errors.New("sample is empty")
	// ErrInvalidIterations is returned for a non-positive resample count.
	ErrInvalidIterations = errors.New("bootstrap iterations must be positive")
	// ErrInvalidConfidence is returned for a confidence level outside (0, 1).
	ErrInvalidConfidence = errors.New("confidence level must be in (0, 1)")
	// ErrNonFinite is returned when the sample holds NaN or an infinity.
	ErrNonFinite = errors.New("sample contains a non-finite value")
	// ErrNilRand is returned when no random source was supplied.
	ErrNilRand = errors.New("random source is nil")
)

// Estimate is the sample mean together with its percentile interval.
type Estimate struct {
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	StdErr          float64 `json:"std_err"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// Estimate returns the mean and bounds of ci.
func (ci ConfidenceInterval) Estimate() Estimate {
	return Estimate{Mean: ci.Mean, Lower: ci.Lower, Upper: ci.Upper}
}

// Width returns Upper - Lower.
func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// Options configures BootstrapCI. Zero values select the defaults, except
// Rand, which is required.
type Options struct {
	Iterations      int
	ConfidenceLevel float64
	Rand            *rand.Rand
}

// NewRand returns a generator for bootstrap resampling. A non-negative seed
// gives a reproducible stream; a negative seed uses a non-deterministic one.
func NewRand(seed int64) *rand.Rand {
	if seed < 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

// Bootstrap95 computes the sample mean and a 95% percentile interval from
// nBoot resamples drawn with rng. The sample is not modified.
func Bootstrap95(rng *rand.Rand, sample []float64, nBoot int) (Estimate, error) {
	if nBoot < 1 {
		return Estimate{}, fmt.Errorf("%w: got %d", ErrInvalidIterations, nBoot)
	}
	ci, err := BootstrapCI(sample, Options{
		Iterations:      nBoot,
		ConfidenceLevel: DefaultConfidenceLevel,
		Rand:            rng,
	})
	if err != nil {
		return Estimate{}, err
	}
	return ci.Estimate(), nil
}

// BootstrapCI computes a bootstrap confidence interval for the mean of sample
// using the percentile method. The bounds are the 100*(1-c)/2 and
// 100*(1+c)/2 percentiles of the resample means, interpolated linearly
// between order statistics.
func BootstrapCI(sample []float64, opts Options) (ConfidenceInterval, error) {
	if err := checkSample(sample); err != nil {
		return ConfidenceInterval{}, err
	}
	if opts.Rand == nil {
		return ConfidenceInterval{}, ErrNilRand
	}

	iters := opts.Iterations
	if iters == 0 {
		iters = DefaultIterations
	}
	if iters < 0 {
		return ConfidenceInterval{}, fmt.Errorf("%w: got %d", ErrInvalidIterations, iters)
	}

	level := opts.ConfidenceLevel
	if level == 0 {
		level = DefaultConfidenceLevel
	}
	if !(level > 0 && level < 1) {
		return ConfidenceInterval{}, fmt.Errorf("%w: got %g", ErrInvalidConfidence, level)
	}

	n := len(sample)
	m := stats.Mean(sample)

	// Resample with replacement, record the mean of each resample.
	bootMeans := make([]float64, iters)
	resample := make([]float64, n)
	for i := range iters {
		for j := range n {
			resample[j] = sample[opts.Rand.Intn(n)]
		}
		bootMeans[i] = stats.Mean(resample)
	}

	stdErr := 0.0
	if iters > 1 {
		stdErr = stats.StdDev(bootMeans)
	}

	sort.Float64s(bootMeans)

	alpha := 1.0 - level
	return ConfidenceInterval{
		Lower:           Percentile(bootMeans, 100*alpha/2),
		Upper:           Percentile(bootMeans, 100*(1-alpha/2)),
		Mean:            m,
		StdErr:          stdErr,
		ConfidenceLevel: level,
		NumBootstraps:   iters,
	}, nil
}

// Percentile returns the p-th percentile (p in [0, 100]) of an ascending
// slice, interpolating linearly between the two nearest order statistics.
// Returns NaN for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	p = math.Max(0, math.Min(100, p))

	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// IsSignificant returns true if the confidence interval does not contain zero,
// indicating statistical significance at the given confidence level.
func IsSignificant(ci ConfidenceInterval) bool {
	return ci.Lower > 0 || ci.Upper < 0
}

func checkSample(sample []float64) error {
	if len(sample) == 0 {
		return ErrEmptySample
	}
	for i, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}
