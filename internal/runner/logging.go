package runner

import (
	"log"

	"uni-gocycle/internal/jsonl"
)

type cycleEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // start | attempt

	Accounts int `json:"accounts,omitempty"`
	Steps    int `json:"steps,omitempty"`

	Pass      int    `json:"pass,omitempty"`
	Account   string `json:"account,omitempty"`
	StepIndex int    `json:"step_index"`

	TokenIn     string `json:"token_in,omitempty"`
	TokenOut    string `json:"token_out,omitempty"`
	AmountUnits string `json:"amount_units,omitempty"`

	Outcome string `json:"outcome,omitempty"`
	Ok      bool   `json:"ok,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	Err     string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func logCycleEvent(w *jsonl.Writer, ev cycleEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] trade log write failed: %v", err)
	}
}
