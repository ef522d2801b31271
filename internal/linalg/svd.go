package linalg

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	svdEps     = 1e-15
	svdTol     = 1e-64 / svdEps
	svdMaxIter = 50
)

// SVDResult holds a = U·diag(W)·Vᵀ. U is m×n, W has n entries and V is n×n.
// Singular values are not sorted.
type SVDResult struct {
	U *mat.Dense
	W []float64
	V *mat.Dense

	// Unconverged lists the singular value indices whose QR iteration hit
	// the iteration cap. Their values are the best available approximation.
	Unconverged []int
}

// SVD computes the singular value decomposition of a, which must have at
// least as many rows as columns. It follows the Golub–Reinsch algorithm:
// Householder reduction to bidiagonal form, then implicit-shift QR on the
// bidiagonal.
func SVD(a mat.Matrix) (*SVDResult, error) {
	m, n := a.Dims()
	if m < n {
		return nil, errors.Wrapf(ErrShape, "svd needs rows >= columns, got %dx%d", m, n)
	}

	u := Rows(a)
	e := make([]float64, n)
	q := make([]float64, n)
	v := make([][]float64, n)
	for i := range v {
		v[i] = make([]float64, n)
	}

	// Householder reduction to bidiagonal form.
	var g, x, s, f, h, y, z float64
	l := 0
	for i := 0; i < n; i++ {
		e[i] = g
		s = 0
		l = i + 1
		for j := i; j < m; j++ {
			s += u[j][i] * u[j][i]
		}
		if s <= svdTol {
			g = 0
		} else {
			f = u[i][i]
			if f < 0 {
				g = math.Sqrt(s)
			} else {
				g = -math.Sqrt(s)
			}
			h = f*g - s
			u[i][i] = f - g
			for j := l; j < n; j++ {
				s = 0
				for k := i; k < m; k++ {
					s += u[k][i] * u[k][j]
				}
				f = s / h
				for k := i; k < m; k++ {
					u[k][j] += f * u[k][i]
				}
			}
		}
		q[i] = g
		s = 0
		for j := l; j < n; j++ {
			s += u[i][j] * u[i][j]
		}
		if s <= svdTol {
			g = 0
		} else {
			f = u[i][i+1]
			if f < 0 {
				g = math.Sqrt(s)
			} else {
				g = -math.Sqrt(s)
			}
			h = f*g - s
			u[i][i+1] = f - g
			for j := l; j < n; j++ {
				e[j] = u[i][j] / h
			}
			for j := l; j < m; j++ {
				s = 0
				for k := l; k < n; k++ {
					s += u[j][k] * u[i][k]
				}
				for k := l; k < n; k++ {
					u[j][k] += s * e[k]
				}
			}
		}
		y = math.Abs(q[i]) + math.Abs(e[i])
		if y > x {
			x = y
		}
	}

	// Accumulate right-hand transformations.
	for i := n - 1; i >= 0; i-- {
		if g != 0 {
			h = g * u[i][i+1]
			for j := l; j < n; j++ {
				v[j][i] = u[i][j] / h
			}
			for j := l; j < n; j++ {
				s = 0
				for k := l; k < n; k++ {
					s += u[i][k] * v[k][j]
				}
				for k := l; k < n; k++ {
					v[k][j] += s * v[k][i]
				}
			}
		}
		for j := l; j < n; j++ {
			v[i][j] = 0
			v[j][i] = 0
		}
		v[i][i] = 1
		g = e[i]
		l = i
	}

	// Accumulate left-hand transformations.
	for i := n - 1; i >= 0; i-- {
		l = i + 1
		g = q[i]
		for j := l; j < n; j++ {
			u[i][j] = 0
		}
		if g != 0 {
			h = u[i][i] * g
			for j := l; j < n; j++ {
				s = 0
				for k := l; k < m; k++ {
					s += u[k][i] * u[k][j]
				}
				f = s / h
				for k := i; k < m; k++ {
					u[k][j] += f * u[k][i]
				}
			}
			for j := i; j < m; j++ {
				u[j][i] /= g
			}
		} else {
			for j := i; j < m; j++ {
				u[j][i] = 0
			}
		}
		u[i][i]++
	}

	// Diagonalize the bidiagonal form.
	var unconverged []int
	eps := svdEps * x
	for k := n - 1; k >= 0; k-- {
		for iter := 0; iter < svdMaxIter; iter++ {
			// Test for splitting. e[0] is always zero so the scan stops at l=0.
			converging := false
			for l = k; l >= 0; l-- {
				if math.Abs(e[l]) <= eps {
					converging = true
					break
				}
				if l > 0 && math.Abs(q[l-1]) <= eps {
					break
				}
			}
			if !converging {
				// Cancellation of e[l] for l > 0.
				c, sn := 0.0, 1.0
				l1 := l - 1
				for i := l; i <= k; i++ {
					f = sn * e[i]
					e[i] = c * e[i]
					if math.Abs(f) <= eps {
						break
					}
					g = q[i]
					h = pythag(f, g)
					q[i] = h
					c = g / h
					sn = -f / h
					for j := 0; j < m; j++ {
						y = u[j][l1]
						z = u[j][i]
						u[j][l1] = y*c + z*sn
						u[j][i] = -y*sn + z*c
					}
				}
			}

			z = q[k]
			if l == k {
				if z < 0 {
					q[k] = -z
					for j := 0; j < n; j++ {
						v[j][k] = -v[j][k]
					}
				}
				break
			}
			if iter >= svdMaxIter-1 {
				unconverged = append(unconverged, k)
				break
			}

			// Shift from the bottom 2x2 minor.
			x = q[l]
			y = q[k-1]
			g = e[k-1]
			h = e[k]
			f = ((y-z)*(y+z) + (g-h)*(g+h)) / (2 * h * y)
			g = pythag(f, 1)
			if f < 0 {
				f = ((x-z)*(x+z) + h*(y/(f-g)-h)) / x
			} else {
				f = ((x-z)*(x+z) + h*(y/(f+g)-h)) / x
			}

			// Next QR transformation.
			c, sn := 1.0, 1.0
			for i := l + 1; i <= k; i++ {
				g = e[i]
				y = q[i]
				h = sn * g
				g = c * g
				z = pythag(f, h)
				e[i-1] = z
				c = f / z
				sn = h / z
				f = x*c + g*sn
				g = -x*sn + g*c
				h = y * sn
				y = y * c
				for j := 0; j < n; j++ {
					x = v[j][i-1]
					z = v[j][i]
					v[j][i-1] = x*c + z*sn
					v[j][i] = -x*sn + z*c
				}
				z = pythag(f, h)
				q[i-1] = z
				c = f / z
				sn = h / z
				f = c*g + sn*y
				x = -sn*g + c*y
				for j := 0; j < m; j++ {
					y = u[j][i-1]
					z = u[j][i]
					u[j][i-1] = y*c + z*sn
					u[j][i] = -y*sn + z*c
				}
			}
			e[l] = 0
			e[k] = f
			q[k] = x
		}
	}

	U, err := FromRows(u)
	if err != nil {
		return nil, err
	}
	V, err := FromRows(v)
	if err != nil {
		return nil, err
	}
	return &SVDResult{U: U, W: q, V: V, Unconverged: unconverged}, nil
}

// pythag returns sqrt(a²+b²) without destructive underflow or overflow.
func pythag(a, b float64) float64 {
	absa, absb := math.Abs(a), math.Abs(b)
	if absa > absb {
		r := absb / absa
		return absa * math.Sqrt(1+r*r)
	}
	if absb == 0 {
		return 0
	}
	r := absa / absb
	return absb * math.Sqrt(1+r*r)
}
