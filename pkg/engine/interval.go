package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultIntervalWidth is the uncertainty interval width used when the
// configuration leaves it unset.
const DefaultIntervalWidth = 0.8

// ParseIntervalWidth parses an uncertainty interval width from either
// decimal notation (0.8, 0.95) or percent notation (80%, 95%).
//
// Examples:
//   - "0.8"  → 0.80
//   - "0.95" → 0.95
//   - "80%"  → 0.80
//   - ""     → DefaultIntervalWidth
//
// Returns an error if the format is invalid or the value is outside (0, 1).
func ParseIntervalWidth(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultIntervalWidth, nil
	}

	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval width %q: %w", s, err)
		}
		if pct <= 0 || pct >= 100 {
			return 0, fmt.Errorf("interval width %v%% out of range (0, 100)", pct)
		}
		return pct / 100.0, nil
	}

	width, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval width %q: %w", s, err)
	}
	if width <= 0 || width >= 1 {
		return 0, fmt.Errorf("interval width %v out of range (0, 1)", width)
	}
	return width, nil
}

// zScoreForWidth returns the two-sided normal z-score for an uncertainty
// interval of the given width: a width of 0.8 covers quantiles 0.1..0.9,
// so it maps to z(0.9) ≈ 1.2816.
func zScoreForWidth(width float64) float64 {
	if width <= 0 || width >= 1 {
		width = DefaultIntervalWidth
	}
	return normQuantile(0.5 + width/2)
}

// normQuantile approximates the standard normal inverse CDF using the
// Beasley–Springer–Moro algorithm. Accurate to ~1e-9 over (0, 1), which
// is far beyond what forecast bands need.
func normQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [4]float64{2.50662823884, -18.61500062529, 41.39119773534, -25.44106049637}
	b := [4]float64{-8.47351093090, 23.08336743743, -21.06224101826, 3.13082909833}
	c := [9]float64{
		0.3374754822726147, 0.9761690190917186, 0.1607979714918209,
		0.0276438810333863, 0.0038405729373609, 0.0003951896511919,
		0.0000321767881768, 0.0000002888167364, 0.0000003960315187,
	}

	y := p - 0.5
	if math.Abs(y) < 0.42 {
		r := y * y
		num := y * (((a[3]*r+a[2])*r+a[1])*r + a[0])
		den := (((b[3]*r+b[2])*r+b[1])*r+b[0])*r + 1
		return num / den
	}

	r := p
	if y > 0 {
		r = 1 - p
	}
	r = math.Log(-math.Log(r))
	x := c[0]
	for i, pow := 1, r; i < len(c); i, pow = i+1, pow*r {
		x += c[i] * pow
	}
	if y < 0 {
		x = -x
	}
	return x
}
