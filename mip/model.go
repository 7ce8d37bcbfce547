/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 *
 * Package mip provides a small mixed-integer linear programming layer:
 * a model builder plus a branch-and-bound solver that relaxes integrality
 * and solves the resulting linear programs with gonum's simplex method.
 * It is sized for scheduling problems with a few hundred binaries, not for
 * industrial MIP workloads.
 */
package mip

import (
	"fmt"
	"math"
)

// Rel is a linear constraint relation.
type Rel int

const (
	LE Rel = iota
	GE
	EQ
)

// Var indexes a decision variable within its Model.
type Var int

// Term is one coefficient*variable entry of a linear expression. Repeated
// entries for the same variable are summed.
type Term struct {
	Var  Var
	Coef float64
}

type column struct {
	name    string
	lb, ub  float64
	integer bool
	obj     float64
}

type constraint struct {
	terms []Term
	rel   Rel
	rhs   float64
}

// Model is a minimization MIP under construction. All variable bounds must
// be finite; binaries are [0,1].
type Model struct {
	cols []column
	cons []constraint

	// MaxNodes caps the branch-and-bound tree size. Zero means the
	// default cap.
	MaxNodes int

	start []float64
}

func NewModel() *Model {
	return &Model{}
}

// AddBinary adds a {0,1} integer variable and returns its index.
func (m *Model) AddBinary(name string) Var {
	m.cols = append(m.cols, column{name: name, lb: 0, ub: 1, integer: true})
	return Var(len(m.cols) - 1)
}

// AddContinuous adds a bounded continuous variable and returns its index.
func (m *Model) AddContinuous(name string, lb, ub float64) Var {
	m.cols = append(m.cols, column{name: name, lb: lb, ub: ub})
	return Var(len(m.cols) - 1)
}

// AddObjTerm accumulates coef onto v's objective coefficient. The model
// always minimizes; callers wanting maximization negate their coefficients.
func (m *Model) AddObjTerm(v Var, coef float64) {
	m.cols[v].obj += coef
}

// AddCons appends the linear constraint sum(terms) rel rhs.
func (m *Model) AddCons(terms []Term, rel Rel, rhs float64) {
	own := make([]Term, len(terms))
	copy(own, terms)
	m.cons = append(m.cons, constraint{terms: own, rel: rel, rhs: rhs})
}

func (m *Model) NumVars() int { return len(m.cols) }
func (m *Model) NumCons() int { return len(m.cons) }

// Name returns the variable's name, for diagnostics.
func (m *Model) Name(v Var) string { return m.cols[v].name }

// SetStart provides a candidate solution used to seed the incumbent. A
// start that fails the model's constraints is ignored at solve time.
func (m *Model) SetStart(values []float64) {
	own := make([]float64, len(values))
	copy(own, values)
	m.start = own
}

// Feasible reports whether x satisfies all bounds, integrality
// requirements, and constraints of the model.
func (m *Model) Feasible(x []float64) bool {
	if len(x) != len(m.cols) {
		return false
	}
	for j, c := range m.cols {
		if x[j] < c.lb-consTol || x[j] > c.ub+consTol {
			return false
		}
		if c.integer && math.Abs(x[j]-math.Round(x[j])) > intTol {
			return false
		}
	}
	for _, cn := range m.cons {
		lhs := 0.0
		for _, t := range cn.terms {
			lhs += t.Coef * x[t.Var]
		}
		switch cn.rel {
		case LE:
			if lhs > cn.rhs+consTol {
				return false
			}
		case GE:
			if lhs < cn.rhs-consTol {
				return false
			}
		case EQ:
			if math.Abs(lhs-cn.rhs) > consTol {
				return false
			}
		}
	}
	return true
}

// ObjValue evaluates the objective at x.
func (m *Model) ObjValue(x []float64) float64 {
	v := 0.0
	for j, c := range m.cols {
		v += c.obj * x[j]
	}
	return v
}

func (m *Model) validate() error {
	for i, c := range m.cols {
		if math.IsInf(c.lb, 0) || math.IsInf(c.ub, 0) ||
			math.IsNaN(c.lb) || math.IsNaN(c.ub) {
			return fmt.Errorf("mip: variable %v (%s) has non-finite bounds",
				i, c.name)
		}
		if c.lb > c.ub {
			return fmt.Errorf("mip: variable %v (%s) has lb %v > ub %v",
				i, c.name, c.lb, c.ub)
		}
	}
	return nil
}
