/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package rating

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is a skill belief: mean and uncertainty.
type Gaussian struct {
	Mu    float64
	Sigma float64
}

// TTTConfig tunes the through-time recompute. Beta is the per-game
// performance noise, Gamma the per-day skill drift.
type TTTConfig struct {
	Mu         float64
	Sigma      float64
	Beta       float64
	Gamma      float64
	Iterations int
	Tol        float64
}

func DefaultTTTConfig() TTTConfig {
	return TTTConfig{
		Mu:         25.0,
		Sigma:      25.0 / 3.0,
		Beta:       1.0,
		Gamma:      0.03,
		Iterations: 30,
		Tol:        1e-4,
	}
}

// Game is one completed match: Teams[0] beat Teams[1]. Time is a day
// number; games sharing a day share each player's skill node.
type Game struct {
	Teams [2][]string
	Time  int
}

// tttEpoch anchors day numbering for match timestamps.
var tttEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// DayNumber converts a match timestamp to the day count used as Game.Time.
func DayNumber(t time.Time) int {
	return int(t.Sub(tttEpoch).Hours() / 24)
}

// gauss is a Gaussian in natural parameters; pi == 0 is the uniform
// (uninformative) message.
type gauss struct {
	pi, tau float64
}

func fromMuSigma(mu, sigma float64) gauss {
	pi := 1 / (sigma * sigma)
	return gauss{pi: pi, tau: pi * mu}
}

func (g gauss) mul(o gauss) gauss {
	return gauss{pi: g.pi + o.pi, tau: g.tau + o.tau}
}

func (g gauss) div(o gauss) gauss {
	return gauss{pi: g.pi - o.pi, tau: g.tau - o.tau}
}

func (g gauss) proper() bool {
	return g.pi > 0
}

func (g gauss) mean() float64 {
	return g.tau / g.pi
}

func (g gauss) variance() float64 {
	return 1 / g.pi
}

// drift widens a belief by gamma^2 per elapsed day.
func (g gauss) drift(gamma float64, days int) gauss {
	if !g.proper() || days <= 0 || gamma == 0 {
		return g
	}
	variance := g.variance() + gamma*gamma*float64(days)
	pi := 1 / variance
	return gauss{pi: pi, tau: pi * g.mean()}
}

type gameLink struct {
	game int // index into History.games
	team int
	slot int
}

type skillNode struct {
	time  int
	fw    gauss
	bw    gauss
	links []gameLink
}

type historyGame struct {
	teams [2][]int // player indexes
	nodes [2][]int // matching node index within each player's chain
	time  int
	msgs  [2][]gauss
}

// History is the full-match-history factor graph. Each player has a chain
// of skill nodes over game days, tied together by drift; each game hangs a
// likelihood message off its participants' nodes. Converge runs EP-style
// sweeps until the messages settle.
type History struct {
	// Progress, when set, is invoked after every sweep.
	Progress func(iter int, delta float64)

	cfg    TTTConfig
	names  []string
	index  map[string]int
	chains [][]skillNode
	priors []gauss
	games  []historyGame
	normal distuv.Normal
}

// NewHistory builds the graph over the given games. Priors override the
// config default for specific players.
func NewHistory(games []Game, priors map[string]Gaussian, cfg TTTConfig) *History {
	h := &History{
		cfg:    cfg,
		index:  make(map[string]int),
		normal: distuv.Normal{Mu: 0, Sigma: 1},
	}

	ordered := make([]Game, len(games))
	copy(ordered, games)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time < ordered[j].Time
	})

	playerIdx := func(name string) int {
		if i, ok := h.index[name]; ok {
			return i
		}
		i := len(h.names)
		h.index[name] = i
		h.names = append(h.names, name)
		h.chains = append(h.chains, nil)
		prior := fromMuSigma(cfg.Mu, cfg.Sigma)
		if p, ok := priors[name]; ok {
			prior = fromMuSigma(p.Mu, p.Sigma)
		}
		h.priors = append(h.priors, prior)
		return i
	}

	for _, g := range ordered {
		hg := historyGame{time: g.Time}
		gi := len(h.games)
		for ti, team := range g.Teams {
			for si, name := range team {
				pi := playerIdx(name)
				chain := h.chains[pi]
				if len(chain) == 0 || chain[len(chain)-1].time != g.Time {
					chain = append(chain, skillNode{time: g.Time})
				}
				ni := len(chain) - 1
				chain[ni].links = append(chain[ni].links,
					gameLink{game: gi, team: ti, slot: si})
				h.chains[pi] = chain
				hg.teams[ti] = append(hg.teams[ti], pi)
				hg.nodes[ti] = append(hg.nodes[ti], ni)
				hg.msgs[ti] = append(hg.msgs[ti], gauss{})
			}
		}
		h.games = append(h.games, hg)
	}

	return h
}

func (h *History) nodeMsgProduct(pi, ni int) gauss {
	g := gauss{}
	for _, l := range h.chains[pi][ni].links {
		g = g.mul(h.games[l.game].msgs[l.team][l.slot])
	}
	return g
}

// Converge runs message-passing sweeps until quiescence or the iteration
// cap, returning the sweeps used and the final maximum message change.
func (h *History) Converge() (int, float64) {
	iters := h.cfg.Iterations
	if iters <= 0 {
		iters = DefaultTTTConfig().Iterations
	}
	tol := h.cfg.Tol
	if tol <= 0 {
		tol = DefaultTTTConfig().Tol
	}

	delta := math.Inf(1)
	i := 0
	for ; i < iters && delta > tol; i++ {
		delta = h.sweep()
		if h.Progress != nil {
			h.Progress(i+1, delta)
		}
	}
	return i, delta
}

func (h *History) sweep() float64 {
	gamma := h.cfg.Gamma

	// chain passes: propagate priors forward and future evidence backward
	for pi, chain := range h.chains {
		for ni := range chain {
			if ni == 0 {
				chain[ni].fw = h.priors[pi]
				continue
			}
			prev := chain[ni-1]
			g := prev.fw.mul(h.nodeMsgProduct(pi, ni-1))
			chain[ni].fw = g.drift(gamma, chain[ni].time-prev.time)
		}
		for ni := len(chain) - 1; ni >= 0; ni-- {
			if ni == len(chain)-1 {
				chain[ni].bw = gauss{}
				continue
			}
			next := chain[ni+1]
			g := next.bw.mul(h.nodeMsgProduct(pi, ni+1))
			chain[ni].bw = g.drift(gamma, next.time-chain[ni].time)
		}
	}

	maxDelta := 0.0
	for gi := range h.games {
		d := h.updateGame(gi)
		if d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}

// updateGame recomputes the likelihood messages of one game from the
// current cavity beliefs of its participants.
func (h *History) updateGame(gi int) float64 {
	g := &h.games[gi]

	var mu [2][]float64
	var variance [2][]float64
	var cavity [2][]gauss

	cSq := 0.0
	teamMu := [2]float64{}
	for ti := 0; ti < 2; ti++ {
		for si, pi := range g.teams[ti] {
			node := &h.chains[pi][g.nodes[ti][si]]
			cav := node.fw.mul(node.bw).mul(h.nodeMsgProduct(pi, g.nodes[ti][si])).
				div(g.msgs[ti][si])
			if !cav.proper() {
				cav = h.priors[pi]
			}
			m, v := cav.mean(), cav.variance()
			mu[ti] = append(mu[ti], m)
			variance[ti] = append(variance[ti], v)
			cavity[ti] = append(cavity[ti], cav)
			teamMu[ti] += m
			cSq += v + h.cfg.Beta*h.cfg.Beta
		}
	}

	c := math.Sqrt(cSq)
	t := (teamMu[0] - teamMu[1]) / c

	// truncated-Gaussian moments of the win margin
	cdf := h.normal.CDF(t)
	var v float64
	if cdf < 1e-300 {
		v = -t
	} else {
		v = h.normal.Prob(t) / cdf
	}
	w := v * (v + t)
	if w >= 1 {
		w = 1 - 1e-9
	}

	maxDelta := 0.0
	for ti := 0; ti < 2; ti++ {
		sign := 1.0
		if ti == 1 {
			sign = -1.0
		}
		for si := range g.teams[ti] {
			m, varI := mu[ti][si], variance[ti][si]
			postMu := m + sign*(varI/c)*v
			postVar := varI * (1 - (varI/cSq)*w)
			if postVar < 1e-9 {
				postVar = 1e-9
			}
			post := fromMuSigma(postMu, math.Sqrt(postVar))
			newMsg := post.div(cavity[ti][si])

			old := g.msgs[ti][si]
			d := math.Abs(newMsg.pi-old.pi) + math.Abs(newMsg.tau-old.tau)
			if d > maxDelta {
				maxDelta = d
			}
			g.msgs[ti][si] = newMsg
		}
	}
	return maxDelta
}

// Ratings returns each player's final skill belief, after their last game.
func (h *History) Ratings() map[string]Gaussian {
	out := make(map[string]Gaussian, len(h.names))
	for pi, name := range h.names {
		chain := h.chains[pi]
		if len(chain) == 0 {
			prior := h.priors[pi]
			out[name] = Gaussian{Mu: prior.mean(),
				Sigma: math.Sqrt(prior.variance())}
			continue
		}
		ni := len(chain) - 1
		belief := chain[ni].fw.mul(chain[ni].bw).mul(h.nodeMsgProduct(pi, ni))
		if !belief.proper() {
			belief = h.priors[pi]
		}
		out[name] = Gaussian{Mu: belief.mean(),
			Sigma: math.Sqrt(belief.variance())}
	}
	return out
}
