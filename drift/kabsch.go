package drift

import (
	"gonum.org/v1/gonum/mat"

	"github.com/nerfedge/spatialsync/common/types"
)

// correspondence pairs a locally observed anchor position with the
// consensus position believed to be the same physical point.
type correspondence struct {
	local     types.Vector3
	consensus types.Vector3
}

// rigid is a rotation plus translation mapping local positions onto the
// consensus frame.
type rigid struct {
	rotation    *mat.Dense
	translation types.Vector3
}

func (r rigid) apply(v types.Vector3) types.Vector3 {
	m := r.rotation
	return types.Vector3{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}.Add(r.translation)
}

func (r rigid) residual(c correspondence) float64 {
	return r.apply(c.local).Distance(c.consensus)
}

// smallAngles extracts the small-angle rotation vector of the transform,
// valid for the sub-degree drifts this package corrects.
func (r rigid) smallAngles() types.Vector3 {
	m := r.rotation
	return types.Vector3{
		X: (m.At(2, 1) - m.At(1, 2)) / 2,
		Y: (m.At(0, 2) - m.At(2, 0)) / 2,
		Z: (m.At(1, 0) - m.At(0, 1)) / 2,
	}
}

func (r rigid) correction() types.Correction {
	angles := r.smallAngles()
	return types.Correction{
		r.translation.X, r.translation.Y, r.translation.Z,
		angles.X, angles.Y, angles.Z,
	}
}

func centroid(points []types.Vector3) types.Vector3 {
	var sum types.Vector3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// solveRigid computes the least-squares rigid transform mapping the local
// side of the correspondences onto the consensus side, via the SVD of the
// cross-covariance (the Kabsch solution). Reports false when the
// factorization fails.
func solveRigid(pairs []correspondence) (rigid, bool) {
	if len(pairs) < 3 {
		return rigid{}, false
	}
	locals := make([]types.Vector3, len(pairs))
	targets := make([]types.Vector3, len(pairs))
	for i, pair := range pairs {
		locals[i] = pair.local
		targets[i] = pair.consensus
	}
	cLocal := centroid(locals)
	cTarget := centroid(targets)

	cov := mat.NewDense(3, 3, nil)
	for i := range pairs {
		p := locals[i].Sub(cLocal)
		q := targets[i].Sub(cTarget)
		pv := []float64{p.X, p.Y, p.Z}
		qv := []float64{q.X, q.Y, q.Z}
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				cov.Set(row, col, cov.At(row, col)+pv[row]*qv[col])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(cov, mat.SVDFull) {
		return rigid{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// guard against reflections in degenerate configurations
	var rot mat.Dense
	rot.Mul(&v, u.T())
	d := mat.Det(&rot)
	sign := mat.NewDiagDense(3, []float64{1, 1, 1})
	if d < 0 {
		sign = mat.NewDiagDense(3, []float64{1, 1, -1})
	}
	var vd mat.Dense
	vd.Mul(&v, sign)
	rotation := mat.NewDense(3, 3, nil)
	rotation.Mul(&vd, u.T())

	rotatedCentroid := rigid{rotation: rotation}.apply(cLocal)
	return rigid{
		rotation:    rotation,
		translation: cTarget.Sub(rotatedCentroid),
	}, true
}
