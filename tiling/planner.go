package tiling

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

// BudgetSource reports how many bytes a tile may occupy.
type BudgetSource interface {
	UsableBytes() (uint64, error)
}

// SizeLimits bound the tile size along the axes of one group.
type SizeLimits struct {
	Min int
	Max int
}

// DefaultSizeLimits are the per-group tile size bounds.
var DefaultSizeLimits = map[field.AxisGroup]SizeLimits{
	field.Spatial:  {Min: 32, Max: 128},
	field.Phase:    {Min: 16, Max: 64},
	field.Temporal: {Min: 8, Max: 32},
}

// cacheSlack is how far the budget may shrink below a cached plan's estimate
// before the plan is recomputed.
const cacheSlack = 1.1

// A Plan is the tile shape chosen for a domain.
type Plan struct {
	Domain    field.Shape
	TileShape field.Shape
	Estimate  uint64
	Usable    uint64

	// Reductions counts the shapes tried after the heuristic one.
	Reductions int
}

type planKey struct {
	domain   field.Shape
	elemSize int
	overhead float64
}

// A Planner picks the largest tile shape that fits the memory budget.
type Planner struct {
	budget   BudgetSource
	logger   *zap.Logger
	elemSize int
	overhead float64
	override int
	limits   map[field.AxisGroup]SizeLimits

	lock  sync.Mutex
	cache map[planKey]Plan
}

// Estimate returns the bytes needed to solve a tile of the given shape.
func (p *Planner) Estimate(tile field.Shape) uint64 {
	return uint64(math.Ceil(
		float64(tile.Size()) * float64(p.elemSize) * p.overhead))
}

// Plan returns the tile shape for a domain.
func (p *Planner) Plan(domain field.Shape) (Plan, error) {
	if err := domain.Validate(); err != nil {
		return Plan{}, err
	}

	if p.override > 0 {
		return p.overridePlan(domain), nil
	}

	usable, err := p.budget.UsableBytes()
	if err != nil {
		return Plan{}, err
	}

	key := planKey{domain: domain, elemSize: p.elemSize, overhead: p.overhead}

	p.lock.Lock()
	defer p.lock.Unlock()

	if cached, ok := p.cache[key]; ok {
		if float64(cached.Estimate) <= cacheSlack*float64(usable) {
			return cached, nil
		}

		p.logger.Debug("tile plan invalidated",
			zap.Stringer("domain", domain),
			zap.Uint64("estimate", cached.Estimate),
			zap.Uint64("usable", usable))
		delete(p.cache, key)
	}

	plan := p.compute(domain, usable)
	p.cache[key] = plan

	p.logger.Debug("tile plan computed",
		zap.Stringer("domain", domain),
		zap.Stringer("tile", plan.TileShape),
		zap.Uint64("estimate", plan.Estimate),
		zap.Uint64("usable", usable),
		zap.Int("reductions", plan.Reductions))

	return plan, nil
}

// Invalidate drops every cached plan.
func (p *Planner) Invalidate() {
	p.lock.Lock()
	defer p.lock.Unlock()

	clear(p.cache)
}

func (p *Planner) overridePlan(domain field.Shape) Plan {
	var tile field.Shape
	for a := range tile {
		tile[a] = min(p.override, domain[a])
	}

	return Plan{
		Domain:    domain,
		TileShape: tile,
		Estimate:  p.Estimate(tile),
	}
}

// compute walks a chain of tile shapes that grows along every axis at once
// and returns the largest one that fits. The chain first raises a uniform
// edge up to the group minimums, then follows the clamped heuristic up to the
// edge derived from the budget. Since no axis ever shrinks along the chain, a
// larger budget never yields a smaller tile.
func (p *Planner) compute(domain field.Shape, usable uint64) Plan {
	maxElements := float64(usable) / (float64(p.elemSize) * p.overhead)
	side := max(1, int(math.Floor(math.Pow(maxElements, 1.0/field.Rank)+1e-9)))

	var lo, hi field.Shape
	for a := range lo {
		l := p.limits[field.GroupOf(a)]
		lo[a] = min(l.Min, domain[a])
		hi[a] = min(l.Max, domain[a])
	}

	plan := Plan{Domain: domain, Usable: usable}
	tile := clampedTile(side, lo, hi)

	for s := side - 1; s >= 1 && p.Estimate(tile) > usable; s-- {
		next := clampedTile(s, lo, hi)
		if next != tile {
			plan.Reductions++
		}
		tile = next
	}

	for s := largestExtent(lo) - 1; s >= 1 && p.Estimate(tile) > usable; s-- {
		next := belowMinimum(s, lo)
		if next != tile {
			plan.Reductions++
		}
		tile = next
	}

	plan.TileShape = tile
	plan.Estimate = p.Estimate(tile)

	return plan
}

func clampedTile(side int, lo, hi field.Shape) field.Shape {
	var tile field.Shape
	for a := range tile {
		tile[a] = min(max(side, lo[a]), hi[a])
	}

	return tile
}

func belowMinimum(side int, lo field.Shape) field.Shape {
	var tile field.Shape
	for a := range tile {
		tile[a] = min(side, lo[a])
	}

	return tile
}

func largestExtent(s field.Shape) int {
	best := 0
	for a := 1; a < field.Rank; a++ {
		if s[a] > s[best] {
			best = a
		}
	}

	return s[best]
}

// PlannerBuilder can build planners.
type PlannerBuilder struct {
	budget   BudgetSource
	logger   *zap.Logger
	elemSize int
	overhead float64
	override int
	limits   map[field.AxisGroup]SizeLimits
}

// MakePlannerBuilder creates a builder with default parameters.
func MakePlannerBuilder() PlannerBuilder {
	return PlannerBuilder{
		elemSize: field.ElementSize,
		overhead: 6,
		limits:   DefaultSizeLimits,
	}
}

// WithBudget sets where the planner reads the usable memory from.
func (b PlannerBuilder) WithBudget(src BudgetSource) PlannerBuilder {
	b.budget = src
	return b
}

// WithLogger sets the logger.
func (b PlannerBuilder) WithLogger(logger *zap.Logger) PlannerBuilder {
	b.logger = logger
	return b
}

// WithElementSize sets the bytes per element.
func (b PlannerBuilder) WithElementSize(n int) PlannerBuilder {
	b.elemSize = n
	return b
}

// WithOverheadFactor sets how many tile-sized buffers a solve needs.
func (b PlannerBuilder) WithOverheadFactor(f float64) PlannerBuilder {
	b.overhead = f
	return b
}

// WithTileOverride forces a uniform tile size, skipping the heuristic.
func (b PlannerBuilder) WithTileOverride(size int) PlannerBuilder {
	b.override = size
	return b
}

// WithSizeLimits replaces the bounds of one axis group.
func (b PlannerBuilder) WithSizeLimits(
	g field.AxisGroup,
	l SizeLimits,
) PlannerBuilder {
	limits := make(map[field.AxisGroup]SizeLimits, len(b.limits))
	for k, v := range b.limits {
		limits[k] = v
	}
	limits[g] = l
	b.limits = limits

	return b
}

func (b PlannerBuilder) validate() error {
	if b.elemSize <= 0 {
		return errs.Configf("element_size", "must be positive, got %d", b.elemSize)
	}

	if b.overhead < 1 {
		return errs.Configf("overhead_factor", "must be at least 1, got %g", b.overhead)
	}

	if b.override < 0 {
		return errs.Configf("tile_override", "must not be negative, got %d", b.override)
	}

	for g, l := range b.limits {
		if l.Min < 1 || l.Max < l.Min {
			return errs.Configf("size_limits",
				"%s limits [%d, %d] are invalid", g, l.Min, l.Max)
		}
	}

	if b.override == 0 && b.budget == nil {
		return errs.Configf("budget", "a budget source is required")
	}

	return nil
}

// Build creates the planner.
func (b PlannerBuilder) Build() (*Planner, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Planner{
		budget:   b.budget,
		logger:   logger,
		elemSize: b.elemSize,
		overhead: b.overhead,
		override: b.override,
		limits:   b.limits,
		cache:    make(map[planKey]Plan),
	}, nil
}
