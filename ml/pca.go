package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientRows is returned when a model cannot be fit on so few rows.
	ErrInsufficientRows = errors.New("insufficient rows to fit model")

	// ErrEigenDecomposition is returned when the covariance matrix cannot be factorized.
	ErrEigenDecomposition = errors.New("eigendecomposition of covariance matrix failed")
)

// PCAModel is a reduced-rank principal component model of the baseline.
// Targets are scored by how much of their centered vector the retained
// components fail to reconstruct.
type PCAModel struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"` // unit eigenvectors, largest variance first
	Variances  []float64   `json:"variances"`
}

// FitPCA fits a rank-k model on rows (all of equal length). Rank is capped
// at the feature dimension.
func FitPCA(rows [][]float64, rank int) (*PCAModel, error) {
	n := len(rows)
	if n < 2 {
		return nil, fmt.Errorf("%w: have %d, need at least 2", ErrInsufficientRows, n)
	}
	d := len(rows[0])
	if d == 0 {
		return nil, fmt.Errorf("%w: zero-width feature vectors", ErrInsufficientRows)
	}
	if rank <= 0 || rank > d {
		rank = d
	}

	data := make([]float64, 0, n*d)
	for i, r := range rows {
		if len(r) != d {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(r), d)
		}
		data = append(data, r...)
	}
	x := mat.NewDense(n, d, data)

	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean[j] = stat.Mean(col, nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, ErrEigenDecomposition
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	model := &PCAModel{
		Mean:       mean,
		Components: make([][]float64, 0, rank),
		Variances:  make([]float64, 0, rank),
	}
	for _, idx := range order[:rank] {
		model.Components = append(model.Components, mat.Col(nil, idx, &vectors))
		model.Variances = append(model.Variances, values[idx])
	}
	return model, nil
}

// Score returns the L2 norm of the reconstruction residual of x.
func (m *PCAModel) Score(x []float64) float64 {
	centered := make([]float64, len(m.Mean))
	floats.SubTo(centered, x[:len(m.Mean)], m.Mean)

	residual := make([]float64, len(centered))
	copy(residual, centered)
	for _, c := range m.Components {
		floats.AddScaled(residual, -floats.Dot(centered, c), c)
	}
	return floats.Norm(residual, 2)
}
