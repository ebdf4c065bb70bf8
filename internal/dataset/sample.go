package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrColumnNotFound is returned when a CSV has no column of the
	// requested name.
	ErrColumnNotFound = errors.New("column not found")
	// ErrInvalidNumber is returned for cells and tokens that are not numbers.
	ErrInvalidNumber = errors.New("invalid number")
)

// Column extracts the named column from rows as a numeric sample.
// Blank cells are skipped; anything else that fails to parse is an error
// reporting the 1-based data row.
func Column(rows []Row, name string) ([]float64, error) {
	if len(rows) > 0 {
		if _, ok := rows[0][name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
	}

	values := make([]float64, 0, len(rows))
	for i, row := range rows {
		cell := strings.TrimSpace(row[name])
		if cell == "" {
			continue
		}
		v, err := parseNumber(cell)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i+1, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseValues reads numbers separated by whitespace, commas or semicolons.
// Lines starting with '#' are ignored.
func ParseValues(r io.Reader) ([]float64, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
		for _, f := range fields {
			v, err := parseNumber(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}
	return values, nil
}

// ParseArgs parses command-line arguments as numbers.
func ParseArgs(args []string) ([]float64, error) {
	return ParseValues(strings.NewReader(strings.Join(args, " ")))
}

// parseNumber accepts plain floats and percentages ("1.5%" -> 0.015).
func parseNumber(s string) (float64, error) {
	p, percent := strings.CutSuffix(s, "%")
	v, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidNumber, s)
	}
	if percent {
		v /= 100
	}
	return v, nil
}
