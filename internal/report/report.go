// Package report reconstructs historical pool balances by replaying the
// transaction log backward from the current state, and aggregates flows
// per interval and per tag in a single reporting currency.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"moneypools/internal/core"
	"moneypools/internal/exchange"
	"moneypools/internal/log"
)

// Store is the read side of the ledger the engine needs.
type Store interface {
	LoadPools(ctx context.Context, owner string) ([]core.Pool, error)
	LoadTransactions(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error)
}

type Config struct {
	// MaxTransactions caps the transactions inside one report window.
	MaxTransactions int
	// PageSize is used while rewinding transactions newer than the window.
	PageSize int
	// RateConcurrency bounds parallel rate lookups.
	RateConcurrency int
	// MaxPoints bounds the number of snapshots per report.
	MaxPoints int
}

func DefaultConfig() Config {
	return Config{
		MaxTransactions: 10000,
		PageSize:        500,
		RateConcurrency: 4,
		MaxPoints:       1000,
	}
}

type Request struct {
	Start time.Time
	// End defaults to now when zero.
	End      time.Time
	Points   int
	Currency core.Currency
}

type CurrencyFraction struct {
	Currency core.Currency `json:"currency"`
	Fraction float64       `json:"fraction"`
}

type PoolStats struct {
	Pool      core.Pool          `json:"pool"`
	Total     core.Money         `json:"total"`
	Fractions []CurrencyFraction `json:"fractions"`
}

// TagTotal is the net flow for one tag. A nil Tag groups untagged
// transactions.
type TagTotal struct {
	Tag *string    `json:"tag"`
	Net core.Money `json:"net"`
}

// Snapshot is the state of every pool at Timestamp. TagTotals cover the
// flow between this snapshot and the next earlier one.
type Snapshot struct {
	Timestamp time.Time   `json:"timestamp"`
	Pools     []PoolStats `json:"pools"`
	Total     core.Money  `json:"total"`
	TagTotals []TagTotal  `json:"tag_totals"`
}

// Report lists snapshots latest first: Snapshots[0] is at End and the last
// one at Start.
type Report struct {
	Currency  core.Currency `json:"currency"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Snapshots []Snapshot    `json:"snapshots"`
	Spent     core.Money    `json:"spent"`
	Made      core.Money    `json:"made"`
	TagTotals []TagTotal    `json:"tag_totals"`
}

type Engine struct {
	store  Store
	rates  exchange.Source
	config Config
	logger *log.Logger
	now    func() time.Time
}

func NewEngine(store Store, rates exchange.Source, config Config, logger *log.Logger) *Engine {
	def := DefaultConfig()
	if config.MaxTransactions <= 0 {
		config.MaxTransactions = def.MaxTransactions
	}
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if config.RateConcurrency <= 0 {
		config.RateConcurrency = def.RateConcurrency
	}
	if config.MaxPoints <= 0 {
		config.MaxPoints = def.MaxPoints
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{
		store:  store,
		rates:  rates,
		config: config,
		logger: logger.WithComponent(log.ComponentReport),
		now:    time.Now,
	}
}

// WithClock replaces the time source used for a zero End.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) validate(req *Request) error {
	if req.End.IsZero() {
		req.End = e.now()
	}
	req.Start = req.Start.UTC()
	req.End = req.End.UTC()
	switch {
	case req.Currency.IsZero():
		return fmt.Errorf("missing report currency: %w", core.ErrValidation)
	case req.Points < 2:
		return fmt.Errorf("points must be at least 2, got %d: %w", req.Points, core.ErrValidation)
	case req.Points > e.config.MaxPoints:
		return fmt.Errorf("points must be at most %d, got %d: %w", e.config.MaxPoints, req.Points, core.ErrValidation)
	case !req.Start.Before(req.End):
		return fmt.Errorf("start must be before end: %w", core.ErrValidation)
	}
	return nil
}

// Build produces the report for owner over [req.Start, req.End].
func (e *Engine) Build(ctx context.Context, owner string, req Request) (Report, error) {
	if err := e.validate(&req); err != nil {
		return Report{}, err
	}

	pools, err := e.store.LoadPools(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("load pools: %w", err)
	}
	if err := e.rewind(ctx, owner, pools, req.End); err != nil {
		return Report{}, err
	}

	window, err := e.loadWindow(ctx, owner, req.Start, req.End)
	if err != nil {
		return Report{}, err
	}

	boundaries := Boundaries(req.Start, req.End, req.Points)
	states, subsets, err := walk(pools, window, boundaries)
	if err != nil {
		return Report{}, err
	}

	table, err := exchange.Prefetch(ctx, e.rates, req.Currency, currenciesOf(pools, window), e.config.RateConcurrency)
	if err != nil {
		return Report{}, err
	}

	rep, err := aggregate(table, req, boundaries, states, subsets, window)
	if err != nil {
		return Report{}, err
	}

	e.logger.InfoContext(ctx, "Report built",
		log.FieldOperation, log.OpReport,
		log.FieldOwner, owner,
		log.FieldCount, len(window),
		"points", req.Points,
		log.FieldCurrency, req.Currency.Code)
	return rep, nil
}

// rewind undoes every transaction newer than end, leaving pools as they
// were at end.
func (e *Engine) rewind(ctx context.Context, owner string, pools []core.Pool, end time.Time) error {
	index := poolIndex(pools)
	after := end
	filter := core.TransactionFilter{After: &after}
	for offset := 0; ; offset += e.config.PageSize {
		page, err := e.store.LoadTransactions(ctx, owner, filter, core.LatestFirst, offset, e.config.PageSize)
		if err != nil {
			return fmt.Errorf("load transactions after window: %w", err)
		}
		for _, t := range page {
			if err := undo(pools, index, t); err != nil {
				return err
			}
		}
		if len(page) < e.config.PageSize {
			return nil
		}
	}
}

func (e *Engine) loadWindow(ctx context.Context, owner string, start, end time.Time) ([]core.Transaction, error) {
	filter := core.TransactionFilter{MinTimestamp: &start, MaxTimestamp: &end}
	ts, err := e.store.LoadTransactions(ctx, owner, filter, core.LatestFirst, 0, e.config.MaxTransactions+1)
	if err != nil {
		return nil, fmt.Errorf("load window transactions: %w", err)
	}
	if len(ts) > e.config.MaxTransactions {
		return nil, fmt.Errorf("more than %d transactions in window: %w", e.config.MaxTransactions, core.ErrTooManyTransactions)
	}
	core.SortTransactions(ts, core.LatestFirst)
	return ts, nil
}

// Boundaries returns points timestamps from end down to start inclusive,
// equally spaced.
func Boundaries(start, end time.Time, points int) []time.Time {
	out := make([]time.Time, points)
	span := float64(end.Sub(start))
	for k := 0; k < points-1; k++ {
		out[k] = end.Add(-time.Duration(span * float64(k) / float64(points-1)))
	}
	out[points-1] = start
	return out
}

// walk replays window (latest first) backward from pools, which must hold
// the state at boundaries[0]. states[k] is the pool state at boundaries[k];
// subsets[k] holds the transactions between boundaries[k+1] and
// boundaries[k]. pools is consumed. Buckets are closed before a transaction
// is appended, so a transaction earlier than boundaries[k+1] lands in
// subsets[k+1] or later, and one exactly on boundaries[k+1] stays in subsets[k].
func walk(pools []core.Pool, window []core.Transaction, boundaries []time.Time) ([][]core.Pool, [][]core.Transaction, error) {
	points := len(boundaries)
	index := poolIndex(pools)
	states := make([][]core.Pool, 0, points)
	subsets := make([][]core.Transaction, points)

	states = append(states, core.ClonePools(pools))
	k := 0
	for _, t := range window {
		for k+1 < points && t.Timestamp.Before(boundaries[k+1]) {
			k++
			states = append(states, core.ClonePools(pools))
		}
		subsets[k] = append(subsets[k], t)
		if err := undo(pools, index, t); err != nil {
			return nil, nil, err
		}
	}
	for len(states) < points {
		states = append(states, core.ClonePools(pools))
	}

	if len(states) != points || len(subsets) != points {
		return nil, nil, fmt.Errorf("report walk produced %d states and %d subsets for %d points", len(states), len(subsets), points)
	}
	return states, subsets, nil
}

func undo(pools []core.Pool, index map[string]int, t core.Transaction) error {
	i, ok := index[t.PoolID]
	if !ok {
		return fmt.Errorf("transaction %s references unknown pool %s: %w", t.ID, t.PoolID, core.ErrPoolNotFound)
	}
	last := pools[i].LastUpdated
	if _, _, err := core.ApplyTransaction(&pools[i], t.Inverted(), time.Time{}); err != nil {
		return fmt.Errorf("replay transaction %s: %w", t.ID, err)
	}
	pools[i].LastUpdated = last
	return nil
}

func poolIndex(pools []core.Pool) map[string]int {
	index := make(map[string]int, len(pools))
	for i, p := range pools {
		index[p.ID] = i
	}
	return index
}

func currenciesOf(pools []core.Pool, ts []core.Transaction) []core.Currency {
	seen := make(map[string]bool)
	var out []core.Currency
	add := func(c core.Currency) {
		if !seen[c.Code] {
			seen[c.Code] = true
			out = append(out, c)
		}
	}
	for _, p := range pools {
		for _, m := range p.Balance {
			add(m.Currency)
		}
	}
	for _, t := range ts {
		add(t.Sum.Currency)
	}
	return out
}

func aggregate(table *exchange.Table, req Request, boundaries []time.Time, states [][]core.Pool, subsets [][]core.Transaction, window []core.Transaction) (Report, error) {
	target := req.Currency
	rep := Report{
		Currency:  target,
		Start:     req.Start,
		End:       req.End,
		Snapshots: make([]Snapshot, len(states)),
	}

	for k, pools := range states {
		snap := Snapshot{Timestamp: boundaries[k], Pools: make([]PoolStats, len(pools))}
		var overall float64
		for i, p := range pools {
			stats, total, err := poolStats(table, p, target)
			if err != nil {
				return Report{}, err
			}
			snap.Pools[i] = stats
			overall += total
		}
		snap.Total = core.NewMoneyFromFloat(overall, target)
		tags, err := tagTotals(table, subsets[k], target)
		if err != nil {
			return Report{}, err
		}
		snap.TagTotals = tags
		rep.Snapshots[k] = snap
	}

	var spent, made float64
	for _, t := range window {
		v, err := table.ToTarget(t.Sum.Float64(), t.Sum.Currency)
		if err != nil {
			return Report{}, err
		}
		if v < 0 {
			spent -= v
		} else {
			made += v
		}
	}
	rep.Spent = core.NewMoneyFromFloat(spent, target)
	rep.Made = core.NewMoneyFromFloat(made, target)

	tags, err := tagTotals(table, window, target)
	if err != nil {
		return Report{}, err
	}
	rep.TagTotals = tags
	return rep, nil
}

// poolStats converts every balance line of p. When the converted total is
// exactly zero each currency gets an equal share.
func poolStats(table *exchange.Table, p core.Pool, target core.Currency) (PoolStats, float64, error) {
	values := make([]float64, len(p.Balance))
	var total float64
	for i, line := range p.Balance {
		v, err := table.ToTarget(line.Float64(), line.Currency)
		if err != nil {
			return PoolStats{}, 0, err
		}
		values[i] = v
		total += v
	}

	fractions := make([]CurrencyFraction, len(p.Balance))
	for i, line := range p.Balance {
		f := 1 / float64(len(p.Balance))
		if total != 0 {
			f = values[i] / total
		}
		fractions[i] = CurrencyFraction{Currency: line.Currency, Fraction: f}
	}
	return PoolStats{Pool: p, Total: core.NewMoneyFromFloat(total, target), Fractions: fractions}, total, nil
}

// tagTotals groups ts by tag. A transaction with several tags counts in
// full under each. Results are sorted by net ascending.
func tagTotals(table *exchange.Table, ts []core.Transaction, target core.Currency) ([]TagTotal, error) {
	type acc struct {
		tag *string
		net float64
	}
	var untagged *acc
	byTag := make(map[string]*acc)
	var order []*acc

	for _, t := range ts {
		v, err := table.ToTarget(t.Sum.Float64(), t.Sum.Currency)
		if err != nil {
			return nil, err
		}
		if len(t.Tags) == 0 {
			if untagged == nil {
				untagged = &acc{}
				order = append(order, untagged)
			}
			untagged.net += v
			continue
		}
		for _, tag := range t.Tags {
			a, ok := byTag[tag]
			if !ok {
				name := tag
				a = &acc{tag: &name}
				byTag[tag] = a
				order = append(order, a)
			}
			a.net += v
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].net != order[j].net {
			return order[i].net < order[j].net
		}
		return tagName(order[i].tag) < tagName(order[j].tag)
	})

	out := make([]TagTotal, len(order))
	for i, a := range order {
		out[i] = TagTotal{Tag: a.tag, Net: core.NewMoneyFromFloat(a.net, target)}
	}
	return out, nil
}

func tagName(tag *string) string {
	if tag == nil {
		return ""
	}
	return *tag
}
