// Package simplex implements a derivative-free Nelder–Mead maximizer.
package simplex

import "math"

// Func is the objective being maximized.
type Func func(x []float64) float64

// Settings controls convergence. A tolerance of zero or less disables that
// test. MaxIter of zero means no iteration cap. Do not disable both
// tolerances or Maximize returns immediately.
type Settings struct {
	FTol    float64
	XTol    float64
	MaxIter int
}

// DefaultSettings returns the standard tolerances.
func DefaultSettings() Settings {
	return Settings{FTol: 1e-4, XTol: 1e-4, MaxIter: 500}
}

// Result is the best vertex found.
type Result struct {
	X          []float64
	F          float64
	Iterations int
}

// Converged reports whether the run stopped before hitting the cap.
func (r Result) Converged(s Settings) bool {
	return s.MaxIter == 0 || r.Iterations < s.MaxIter
}

// Maximize oozes a simplex uphill from start. scale gives the initial step
// along each axis and normalizes the simplex-size test. Convergence requires
// both the relative spread of function values to drop below FTol and the
// scaled distance of the worst vertex from the centroid to drop below XTol.
func Maximize(f Func, start, scale []float64, s Settings) Result {
	nvar := len(start)
	nsimplex := nvar + 1

	simplex := make([][]float64, nsimplex)
	simplex[0] = append([]float64(nil), start...)
	for i := 0; i < nvar; i++ {
		simplex[i+1] = append([]float64(nil), start...)
		simplex[i+1][i] += scale[i]
	}
	fvalue := make([]float64, nsimplex)
	for i := range simplex {
		fvalue[i] = f(simplex[i])
	}

	pavg := make([]float64, nvar)
	iteration := 0
	for {
		best, worst := 0, 0
		for i := range fvalue {
			if fvalue[i] > fvalue[best] {
				best = i
			}
			if fvalue[i] < fvalue[worst] {
				worst = i
			}
		}

		// Centroid of every vertex except the worst.
		for j := range pavg {
			pavg[j] = 0
		}
		for i := range simplex {
			if i == worst {
				continue
			}
			for j := range pavg {
				pavg[j] += simplex[i][j]
			}
		}
		simscale := 0.0
		for j := range pavg {
			pavg[j] /= float64(nvar)
			simscale += math.Abs(pavg[j]-simplex[worst][j]) / scale[j]
		}
		simscale /= float64(nvar)

		frange := 0.0
		if fscale := (math.Abs(fvalue[best]) + math.Abs(fvalue[worst])) / 2; fscale != 0 {
			frange = math.Abs(fvalue[best]-fvalue[worst]) / fscale
		}

		fDone := s.FTol <= 0 || frange < s.FTol
		xDone := s.XTol <= 0 || simscale < s.XTol
		if (fDone && xDone) || (s.MaxIter != 0 && iteration >= s.MaxIter) {
			return Result{
				X:          append([]float64(nil), simplex[best]...),
				F:          fvalue[best],
				Iterations: iteration,
			}
		}

		pnew := make([]float64, nvar)
		for j := range pnew {
			pnew[j] = 2*pavg[j] - simplex[worst][j]
		}
		fnew := f(pnew)

		switch {
		case fnew <= fvalue[worst]:
			// Worse than the worst: pull everything toward the best vertex.
			for i := range simplex {
				if i == best || i == worst {
					continue
				}
				for j := range simplex[i] {
					simplex[i][j] = 0.5*simplex[best][j] + 0.5*simplex[i][j]
				}
				fvalue[i] = f(simplex[i])
			}
			for j := range pnew {
				pnew[j] = 0.5*simplex[best][j] + 0.5*simplex[worst][j]
			}
			fnew = f(pnew)
		case fnew >= fvalue[best]:
			pnew2 := make([]float64, nvar)
			for j := range pnew2 {
				pnew2[j] = 3*pavg[j] - 2*simplex[worst][j]
			}
			if fnew2 := f(pnew2); fnew2 > fnew {
				pnew, fnew = pnew2, fnew2
			}
		}

		simplex[worst] = pnew
		fvalue[worst] = fnew
		iteration++
	}
}
