/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package mip

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Status is the terminal state of a Solve call.
type Status int

const (
	// StatusUnknown means Solve has not produced a verdict.
	StatusUnknown Status = iota
	// StatusOptimal means the incumbent is proven optimal.
	StatusOptimal
	// StatusFeasible means an integer solution was found but the search
	// stopped (deadline or node cap) before proving optimality.
	StatusFeasible
	// StatusInfeasible means no integer solution exists.
	StatusInfeasible
	// StatusDeadlineExceeded means the search stopped with no integer
	// solution found; feasibility is unknown.
	StatusDeadlineExceeded
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusDeadlineExceeded:
		return "deadline exceeded"
	}
	return "unknown"
}

// Solution holds the outcome of a Solve call. Values is indexed by Var and
// only meaningful for StatusOptimal and StatusFeasible; integer variables
// are rounded to exact integers.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
}

const (
	defaultMaxNodes = 200000
	intTol          = 1e-6
	pruneTol        = 1e-9
	fixTol          = 1e-9
	consTol         = 1e-7
)

// errAbandoned marks a relaxation cut short by the context deadline.
var errAbandoned = errors.New("mip: relaxation abandoned")

// Solve runs branch and bound to minimize the model's objective. The
// context deadline bounds the search, including any relaxation still in
// flight; expiry with an incumbent yields StatusFeasible, without one
// StatusDeadlineExceeded. A numerical failure in the underlying simplex
// is an error only when no incumbent exists to fall back on.
func (m *Model) Solve(ctx context.Context) (Solution, error) {
	if err := m.validate(); err != nil {
		return Solution{}, err
	}

	n := len(m.cols)
	rootLB := make([]float64, n)
	rootUB := make([]float64, n)
	for j, c := range m.cols {
		rootLB[j] = c.lb
		rootUB[j] = c.ub
	}

	maxNodes := m.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}

	type node struct {
		lb, ub []float64
	}
	stack := []node{{lb: rootLB, ub: rootUB}}

	var best []float64
	bestObj := math.Inf(1)
	if m.start != nil && m.Feasible(m.start) {
		best = make([]float64, n)
		copy(best, m.start)
		for j, c := range m.cols {
			if c.integer {
				best[j] = math.Round(best[j])
			}
		}
		bestObj = m.ObjValue(best)
	}
	nodes := 0
	stopped := false

	for len(stack) > 0 {
		if ctx.Err() != nil || nodes >= maxNodes {
			stopped = true
			break
		}
		nodes++

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		obj, x, feasible, err := m.relax(ctx, nd.lb, nd.ub)
		if err != nil {
			if errors.Is(err, errAbandoned) {
				stopped = true
				break
			}
			if best != nil {
				// numerical trouble in the relaxation; the incumbent is
				// still a valid round
				stopped = true
				break
			}
			return Solution{}, err
		}
		if !feasible {
			continue
		}
		if obj >= bestObj-pruneTol {
			continue
		}

		// pick the most fractional integer variable
		branch := -1
		branchDist := intTol
		for j, c := range m.cols {
			if !c.integer {
				continue
			}
			f := x[j] - math.Floor(x[j])
			d := math.Min(f, 1-f)
			if d > branchDist {
				branchDist = d
				branch = j
			}
		}

		if branch < 0 {
			// integral relaxation; new incumbent
			bestObj = obj
			best = make([]float64, n)
			copy(best, x)
			for j, c := range m.cols {
				if c.integer {
					best[j] = math.Round(best[j])
				}
			}
			continue
		}

		fl := math.Floor(x[branch])
		downUB := make([]float64, n)
		copy(downUB, nd.ub)
		downUB[branch] = fl
		upLB := make([]float64, n)
		copy(upLB, nd.lb)
		upLB[branch] = fl + 1

		down := node{lb: nd.lb, ub: downUB}
		up := node{lb: upLB, ub: nd.ub}

		// dive toward the nearer integer first (LIFO, so push it last)
		if x[branch]-fl > 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	switch {
	case best != nil && !stopped:
		return Solution{Status: StatusOptimal, Objective: bestObj, Values: best}, nil
	case best != nil:
		return Solution{Status: StatusFeasible, Objective: bestObj, Values: best}, nil
	case stopped:
		return Solution{Status: StatusDeadlineExceeded}, nil
	default:
		return Solution{Status: StatusInfeasible}, nil
	}
}

// relax solves the LP relaxation of the model under the given bounds.
// Variables with lb==ub are substituted out; the rest are shifted to a
// nonnegative origin and handed to gonum's simplex in standard form.
// The simplex run is abandoned when ctx expires.
func (m *Model) relax(ctx context.Context, lb, ub []float64) (obj float64, x []float64, feasible bool, err error) {
	n := len(m.cols)

	freePos := make([]int, n)
	nFree := 0
	for j := 0; j < n; j++ {
		if ub[j]-lb[j] <= fixTol {
			freePos[j] = -1
		} else {
			freePos[j] = nFree
			nFree++
		}
	}

	objConst := 0.0
	for j, c := range m.cols {
		objConst += c.obj * lb[j]
	}

	type row struct {
		coefs []float64 // indexed by free position
		rhs   float64
		slack bool // true for <= rows
	}
	var rows []row
	coefBuf := make([]float64, nFree)

	addRow := func(coefs []float64, rhs float64, slack bool) {
		own := make([]float64, nFree)
		copy(own, coefs)
		rows = append(rows, row{coefs: own, rhs: rhs, slack: slack})
	}

	for _, cn := range m.cons {
		for i := range coefBuf {
			coefBuf[i] = 0
		}
		rhs := cn.rhs
		for _, t := range cn.terms {
			rhs -= t.Coef * lb[t.Var]
			if p := freePos[t.Var]; p >= 0 {
				coefBuf[p] += t.Coef
			}
		}
		nz := false
		for _, v := range coefBuf {
			if v != 0 {
				nz = true
				break
			}
		}
		if !nz {
			// fully substituted; just a feasibility check
			switch cn.rel {
			case LE:
				if rhs < -consTol {
					return 0, nil, false, nil
				}
			case GE:
				if rhs > consTol {
					return 0, nil, false, nil
				}
			case EQ:
				if math.Abs(rhs) > consTol {
					return 0, nil, false, nil
				}
			}
			continue
		}
		switch cn.rel {
		case LE:
			addRow(coefBuf, rhs, true)
		case GE:
			for i := range coefBuf {
				coefBuf[i] = -coefBuf[i]
			}
			addRow(coefBuf, -rhs, true)
		case EQ:
			addRow(coefBuf, rhs, false)
		}
	}

	if nFree == 0 {
		xOut := make([]float64, n)
		copy(xOut, lb)
		return objConst, xOut, true, nil
	}

	// upper-bound rows for the shifted variables
	for j := 0; j < n; j++ {
		p := freePos[j]
		if p < 0 {
			continue
		}
		for i := range coefBuf {
			coefBuf[i] = 0
		}
		coefBuf[p] = 1
		addRow(coefBuf, ub[j]-lb[j], true)
	}

	nSlack := 0
	for _, r := range rows {
		if r.slack {
			nSlack++
		}
	}
	nCols := nFree + nSlack
	nRows := len(rows)

	c := make([]float64, nCols)
	for j := 0; j < n; j++ {
		if p := freePos[j]; p >= 0 {
			c[p] = m.cols[j].obj
		}
	}

	aData := make([]float64, nRows*nCols)
	b := make([]float64, nRows)
	slackIdx := nFree
	for i, r := range rows {
		sign := 1.0
		// keep b nonnegative for the phase-1 start
		if r.rhs < 0 {
			sign = -1.0
		}
		base := i * nCols
		for p, v := range r.coefs {
			aData[base+p] = sign * v
		}
		b[i] = sign * r.rhs
		if r.slack {
			aData[base+slackIdx] = sign
			slackIdx++
		}
	}
	A := mat.NewDense(nRows, nCols, aData)

	// the simplex has no deadline of its own; run it aside and abandon
	// it if the context expires first (the goroutine finishes in the
	// background and its result is discarded)
	type simplexOut struct {
		f   float64
		x   []float64
		err error
	}
	ch := make(chan simplexOut, 1)
	go func() {
		f, xOut, err := lp.Simplex(c, A, b, 0, nil)
		ch <- simplexOut{f: f, x: xOut, err: err}
	}()

	var optF float64
	var optX []float64
	select {
	case <-ctx.Done():
		return 0, nil, false, errAbandoned
	case out := <-ch:
		optF, optX, err = out.f, out.x, out.err
	}
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return 0, nil, false, nil
		}
		if errors.Is(err, lp.ErrUnbounded) {
			return 0, nil, false, fmt.Errorf("mip: relaxation unbounded with finite bounds: %w", err)
		}
		return 0, nil, false, fmt.Errorf("mip: simplex failed: %w", err)
	}

	xOut := make([]float64, n)
	for j := 0; j < n; j++ {
		if p := freePos[j]; p >= 0 {
			xOut[j] = lb[j] + optX[p]
		} else {
			xOut[j] = lb[j]
		}
	}
	return objConst + optF, xOut, true, nil
}
