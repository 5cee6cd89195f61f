package cycle

import (
	"fmt"
	"math/big"
	"strings"

	"uni-gocycle/internal/assets"
)

// Step is one fixed swap instruction: sell Amount (smallest Source units) of
// Source for Dest. Amount is a quantity, never a balance fraction.
type Step struct {
	Source assets.Asset
	Dest   assets.Asset
	Amount *big.Int
}

func (s Step) String() string {
	return fmt.Sprintf("%s>%s:%s", s.Source.Symbol, s.Dest.Symbol,
		assets.FormatUnits(s.Amount, s.Source.Decimals))
}

// Table is the ordered swap sequence shared read-only by every account. It is
// built once at startup and never mutated.
type Table struct {
	steps []Step
}

// NewTable copies steps into an immutable table. At least one step is
// required.
func NewTable(steps []Step) (*Table, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("cycle table needs at least one step")
	}
	return &Table{steps: append([]Step(nil), steps...)}, nil
}

// Len reports the cycle length N.
func (t *Table) Len() int { return len(t.steps) }

// StepAt returns the step at position i. Callers index modulo Len, so i is
// always in range by construction.
func (t *Table) StepAt(i int) Step { return t.steps[i] }

// ParseTable parses a cycle spec of the form
//
//	USDC>WETH:1.5,WETH>USDC:0.0004
//
// against the configured assets. Amounts are decimal strings in whole source
// tokens and are converted to smallest units using the source asset's
// precision.
func ParseTable(raw string, bySymbol map[string]assets.Asset) (*Table, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty cycle spec")
	}

	entries := strings.Split(trimmed, ",")
	steps := make([]Step, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		pairPart, amountPart, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("cycle entry %q: want SRC>DST:amount", entry)
		}
		srcPart, dstPart, ok := strings.Cut(pairPart, ">")
		if !ok {
			return nil, fmt.Errorf("cycle entry %q: want SRC>DST:amount", entry)
		}

		src, ok := bySymbol[strings.ToUpper(strings.TrimSpace(srcPart))]
		if !ok {
			return nil, fmt.Errorf("cycle entry %q: unknown asset %q", entry, strings.TrimSpace(srcPart))
		}
		dst, ok := bySymbol[strings.ToUpper(strings.TrimSpace(dstPart))]
		if !ok {
			return nil, fmt.Errorf("cycle entry %q: unknown asset %q", entry, strings.TrimSpace(dstPart))
		}
		if src.Address == dst.Address {
			return nil, fmt.Errorf("cycle entry %q: source and destination are the same asset", entry)
		}

		amount, err := assets.ParseUnits(amountPart, src.Decimals)
		if err != nil {
			return nil, fmt.Errorf("cycle entry %q: %w", entry, err)
		}
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf("cycle entry %q: amount must be positive", entry)
		}

		steps = append(steps, Step{Source: src, Dest: dst, Amount: amount})
	}

	return NewTable(steps)
}

// State is one account's position in the cycle. It is owned by the scheduler
// loop: created at index 0, advanced exactly once per pass, never persisted.
type State struct {
	index int
	n     int
}

// NewState starts a cycle position at index 0 for a table of length n.
func NewState(n int) *State { return &State{n: n} }

// Index reports the current cycle index in [0, n).
func (s *State) Index() int { return s.index }

// Advance moves to the next step, wrapping modulo the cycle length. It runs
// after every attempt regardless of outcome, so the cycle never stalls on a
// single step.
func (s *State) Advance() { s.index = (s.index + 1) % s.n }
