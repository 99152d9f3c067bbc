package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientObservations is returned when too few multiplier samples
// exist within the growth window to fit a regression line.
var ErrInsufficientObservations = errors.New("oracle: insufficient multiplier observations for growth projection")

type observation struct {
	at    time.Time
	value *big.Int // multiplier, RAY-scaled
}

// GrowthTracker records multiplier observations per source and fits a
// least-squares growth rate (std_growth_per_sec) over a trailing window,
// used by the predicted-transaction price composition (spec §4.5.2).
type GrowthTracker struct {
	window time.Duration

	mu  sync.Mutex
	obs map[common.Address][]observation
}

// NewGrowthTracker constructs a tracker retaining observations no older
// than window.
func NewGrowthTracker(window time.Duration) *GrowthTracker {
	return &GrowthTracker{window: window, obs: make(map[common.Address][]observation)}
}

// Record adds a multiplier observation for source at time at, pruning
// anything that has aged out of the window.
func (g *GrowthTracker) Record(source common.Address, at time.Time, value *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := append(g.obs[source], observation{at: at, value: new(big.Int).Set(value)})
	cutoff := at.Add(-g.window)
	pruned := list[:0]
	for _, o := range list {
		if !o.at.Before(cutoff) {
			pruned = append(pruned, o)
		}
	}
	g.obs[source] = pruned
}

// StdGrowthPerSec fits a least-squares line through the recorded
// observations (seconds elapsed since the earliest sample vs. value) and
// returns its slope: the multiplier's growth per second.
func (g *GrowthTracker) StdGrowthPerSec(source common.Address) (float64, error) {
	g.mu.Lock()
	samples := append([]observation(nil), g.obs[source]...)
	g.mu.Unlock()

	if len(samples) < 2 {
		return 0, ErrInsufficientObservations
	}

	origin := samples[0].at
	base := samples[0].value
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, o := range samples {
		xs[i] = o.at.Sub(origin).Seconds()
		// Values are taken relative to the earliest sample before the float64
		// conversion, so small growth on a RAY-scale multiplier is not rounded
		// away; the slope is unchanged by the offset.
		ys[i], _ = new(big.Float).SetInt(new(big.Int).Sub(o.value, base)).Float64()
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope, nil
}

// ProjectMultiplier projects current, a RAY-scaled multiplier value,
// forward by secondsAhead using source's recorded growth rate.
func (g *GrowthTracker) ProjectMultiplier(source common.Address, current *big.Int, secondsAhead float64) (*big.Int, error) {
	slope, err := g.StdGrowthPerSec(source)
	if err != nil {
		return nil, err
	}
	delta := slope * secondsAhead
	deltaRay, _ := big.NewFloat(delta).Int(nil)
	projected := new(big.Int).Add(current, deltaRay)
	return projected, nil
}
