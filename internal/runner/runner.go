package runner

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"uni-gocycle/internal/cycle"
	"uni-gocycle/internal/ethutil"
	"uni-gocycle/internal/executor"
	"uni-gocycle/internal/jsonl"
)

// Attempter performs one (account, step) attempt with full error containment.
// *executor.Executor satisfies it; tests supply fakes.
type Attempter interface {
	Attempt(ctx context.Context, acct ethutil.Account, step cycle.Step) executor.Outcome
}

// Config is the immutable wiring for the scheduler loop, passed explicitly at
// construction. Nothing here is read from ambient globals.
type Config struct {
	Accounts []ethutil.Account
	Table    *cycle.Table

	// Pacing delay after each account, uniformly sampled from
	// [DelayMin, DelayMax].
	DelayMin time.Duration
	DelayMax time.Duration

	// Rand drives delay sampling. Nil gets a time-seeded PCG; tests inject a
	// fixed-seed source.
	Rand *rand.Rand

	// TradeLog receives one structured event per attempt. Nil disables it.
	TradeLog *jsonl.Writer
}

// Runner drives the unbounded scheduler loop: accounts in fixed order, one
// attempt per account per pass, cycle state advanced unconditionally, then a
// pacing delay. Accounts run strictly sequentially; the loop goroutine is the
// only writer of cycle state, so no locking.
type Runner struct {
	cfg       Config
	exec      Attempter
	rng       *rand.Rand
	states    []*cycle.State
	startedAt time.Time
}

// New validates the config and creates per-account cycle state, all starting
// at index 0.
func New(cfg Config, exec Attempter) (*Runner, error) {
	if exec == nil {
		return nil, fmt.Errorf("runner: nil executor")
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("runner: no accounts")
	}
	if cfg.Table == nil || cfg.Table.Len() == 0 {
		return nil, fmt.Errorf("runner: empty cycle table")
	}
	if cfg.DelayMin < 0 || cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("runner: invalid delay range [%s, %s]", cfg.DelayMin, cfg.DelayMax)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()>>1)))
	}

	states := make([]*cycle.State, len(cfg.Accounts))
	for i := range states {
		states[i] = cycle.NewState(cfg.Table.Len())
	}

	return &Runner{cfg: cfg, exec: exec, rng: rng, states: states}, nil
}

// Run loops until ctx is cancelled and returns nil on cancellation. Ledger
// failures never escape the executor, so any other return path is a
// programming defect for the caller to treat as fatal.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = time.Now()

	logCycleEvent(r.cfg.TradeLog, cycleEvent{
		TsMs:     time.Now().UnixMilli(),
		Event:    "start",
		Accounts: len(r.cfg.Accounts),
		Steps:    r.cfg.Table.Len(),
	})

	for pass := 1; ; pass++ {
		log.Printf("[cycle] pass=%d accounts=%d steps=%d", pass, len(r.cfg.Accounts), r.cfg.Table.Len())

		for i, acct := range r.cfg.Accounts {
			if ctx.Err() != nil {
				return nil
			}

			stepIndex := r.states[i].Index()
			step := r.cfg.Table.StepAt(stepIndex)
			log.Printf("[task] account=%s step=%d/%d %s", acct.Address.Hex(), stepIndex, r.cfg.Table.Len(), step)

			outcome := r.exec.Attempt(ctx, acct, step)
			r.logOutcome(pass, acct, stepIndex, step, outcome)

			// Advance regardless of outcome so the cycle never stalls on a
			// single step.
			r.states[i].Advance()

			delay := r.sampleDelay()
			log.Printf("[wait] next action in %s", delay)
			if !sleep(ctx, delay) {
				return nil
			}
		}
	}
}

func (r *Runner) logOutcome(pass int, acct ethutil.Account, stepIndex int, step cycle.Step, outcome executor.Outcome) {
	switch outcome.Kind {
	case executor.KindSwapped:
		log.Printf("[swap] account=%s %s tx=%s", acct.Address.Hex(), step, outcome.TxHash.Hex())
	case executor.KindSkipped:
		log.Printf("[skip] account=%s %s: insufficient %s balance", acct.Address.Hex(), step, step.Source.Symbol)
	default:
		log.Printf("[warn] account=%s %s: %s: %v", acct.Address.Hex(), step, outcome.Kind, outcome.Err)
	}

	ev := cycleEvent{
		TsMs:        time.Now().UnixMilli(),
		Event:       "attempt",
		Pass:        pass,
		Account:     acct.Address.Hex(),
		StepIndex:   stepIndex,
		TokenIn:     step.Source.Symbol,
		TokenOut:    step.Dest.Symbol,
		AmountUnits: step.Amount.String(),
		Outcome:     outcome.Kind.String(),
		Ok:          outcome.Succeeded(),
		UptimeMs:    time.Since(r.startedAt).Milliseconds(),
	}
	if outcome.TxHash != (common.Hash{}) {
		ev.TxHash = outcome.TxHash.Hex()
	}
	if outcome.Err != nil {
		ev.Err = outcome.Err.Error()
	}
	logCycleEvent(r.cfg.TradeLog, ev)
}

func (r *Runner) sampleDelay() time.Duration {
	if r.cfg.DelayMax <= r.cfg.DelayMin {
		return r.cfg.DelayMin
	}
	span := int64(r.cfg.DelayMax - r.cfg.DelayMin)
	return r.cfg.DelayMin + time.Duration(r.rng.Int64N(span+1))
}

// sleep waits for d or cancellation; false means the context was cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
