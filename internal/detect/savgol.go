package detect

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SavitzkyGolay smooths y with a least-squares polynomial filter: each
// output point is the value at the window center of an order-degree
// polynomial fitted to the surrounding window samples. Unlike a moving
// average this preserves the shape and depth of narrow dips, which is why
// it is used ahead of the minimum and peak searches.
//
// window must be odd and larger than order; len(y) must be at least
// window. The first and last half-window points are filled by evaluating
// the edge-window polynomial fits at their positions rather than by
// shrinking the window.
func SavitzkyGolay(y []float64, window, order int) ([]float64, error) {
	if window < 3 || window%2 == 0 {
		return nil, fmt.Errorf("smoothing window must be odd and at least 3, got %d", window)
	}
	if order < 1 || order >= window {
		return nil, fmt.Errorf("polynomial order must be in [1, window), got order %d window %d", order, window)
	}
	if len(y) < window {
		return nil, fmt.Errorf("smoothing needs at least %d samples, got %d", window, len(y))
	}

	pinv, err := designPseudoInverse(window, order)
	if err != nil {
		return nil, err
	}
	half := window / 2
	n := len(y)
	out := make([]float64, n)

	// Interior: convolve with the center-point coefficients, the row of
	// the pseudo-inverse that evaluates the fitted polynomial at x=0.
	center := mat.Row(nil, 0, pinv)
	for i := half; i < n-half; i++ {
		sum := 0.0
		for k := 0; k < window; k++ {
			sum += center[k] * y[i-half+k]
		}
		out[i] = sum
	}

	// Edges: fit one polynomial to the first (and last) full window and
	// evaluate it at the uncovered positions.
	theta := polyCoeffs(pinv, y[:window])
	for i := 0; i < half; i++ {
		out[i] = polyEval(theta, float64(i-half))
	}
	theta = polyCoeffs(pinv, y[n-window:])
	for i := n - half; i < n; i++ {
		out[i] = polyEval(theta, float64(i-(n-1-half)))
	}

	return out, nil
}

// designPseudoInverse returns (A^T A)^-1 A^T for the centered Vandermonde
// design matrix A with rows [1, x, x^2, ... x^order], x = -half..half.
// Row j of the result maps a window of samples to the j-th fitted
// polynomial coefficient.
func designPseudoInverse(window, order int) (*mat.Dense, error) {
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i - half)
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}

	eye := mat.NewDense(window, window, nil)
	for i := 0; i < window; i++ {
		eye.Set(i, i, 1)
	}

	var pinv mat.Dense
	if err := pinv.Solve(a, eye); err != nil {
		return nil, fmt.Errorf("smoothing design matrix is singular: %w", err)
	}
	return &pinv, nil
}

func polyCoeffs(pinv *mat.Dense, window []float64) []float64 {
	var theta mat.VecDense
	theta.MulVec(pinv, mat.NewVecDense(len(window), window))
	out := make([]float64, theta.Len())
	for i := range out {
		out[i] = theta.AtVec(i)
	}
	return out
}

func polyEval(theta []float64, x float64) float64 {
	sum := 0.0
	for j := len(theta) - 1; j >= 0; j-- {
		sum = sum*x + theta[j]
	}
	return sum
}
