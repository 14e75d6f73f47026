package optimizer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Change is one proposed config adjustment.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Proposal is what the agent hands back for review. Nothing in it takes
// effect until the envelope check passes in full; a single violation
// refuses the whole proposal.
type Proposal struct {
	Summary         string   `json:"summary"`
	Changes         []Change `json:"changes"`
	DeleteState     []string `json:"delete_state"`
	RestartRequired bool     `json:"restart_required"`
}

// Violation describes one envelope breach. HighImpact violations escalate
// the cycle alert to urgent.
type Violation struct {
	Field      string `json:"field"`
	Reason     string `json:"reason"`
	HighImpact bool   `json:"high_impact"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// Envelope is the hard limit on what an optimization run may change.
// It is enforced here, in code, before any apply; the agent receives it
// as instruction text but is never trusted to honor it.
type Envelope struct {
	MaxPositionSizePct float64
	StrategyFlags      []string
	RiskFields         []string
}

// Check validates a proposal against the envelope. current holds the bot
// config as it stands, so flag changes can be judged against the values
// they leave behind. An empty return means the proposal may be applied.
func (e Envelope) Check(p Proposal, current map[string]string) []Violation {
	var vs []Violation

	for _, path := range p.DeleteState {
		vs = append(vs, Violation{
			Field:      path,
			Reason:     "deletion of persisted state is never permitted",
			HighImpact: true,
		})
	}

	for _, c := range p.Changes {
		if slices.Contains(e.RiskFields, c.Field) && disabled(c.New) {
			vs = append(vs, Violation{
				Field:      c.Field,
				Reason:     "risk control cannot be disabled or removed",
				HighImpact: true,
			})
		}
		if c.Field == "max_position_size_pct" {
			v, err := strconv.ParseFloat(strings.TrimSpace(c.New), 64)
			if err != nil {
				vs = append(vs, Violation{Field: c.Field, Reason: "unparsable position size", HighImpact: true})
			} else if v > e.MaxPositionSizePct {
				vs = append(vs, Violation{
					Field:      c.Field,
					Reason:     fmt.Sprintf("position size ceiling %.1f%% exceeds the %.1f%% maximum", v, e.MaxPositionSizePct),
					HighImpact: true,
				})
			}
		}
	}

	if e.allStrategiesDisabled(p, current) {
		vs = append(vs, Violation{
			Field:  strings.Join(e.StrategyFlags, ","),
			Reason: "proposal would disable every strategy",
		})
	}
	return vs
}

// allStrategiesDisabled overlays the proposed changes on the current config
// and reports whether no strategy flag would remain enabled.
func (e Envelope) allStrategiesDisabled(p Proposal, current map[string]string) bool {
	if len(e.StrategyFlags) == 0 {
		return false
	}
	effective := make(map[string]string, len(e.StrategyFlags))
	for _, f := range e.StrategyFlags {
		effective[f] = current[f]
	}
	for _, c := range p.Changes {
		if _, ok := effective[c.Field]; ok {
			effective[c.Field] = c.New
		}
	}
	for _, v := range effective {
		if !disabled(v) {
			return false
		}
	}
	return true
}

// disabled treats empty, false-like and zero values as "off".
func disabled(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "off", "no", "none", "null", "disabled":
		return true
	}
	return false
}
