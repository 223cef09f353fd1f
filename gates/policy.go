package gates

import "time"

// GatePolicy configures which evidence kinds are required for completion,
// how fresh that evidence must be, and whether a test run must follow the
// most recent passing guard run.
type GatePolicy struct {
	RequireGuard           bool  `json:"requireGuard"`
	RequireTest            bool  `json:"requireTest"`
	FreshnessWindowMs      int64 `json:"freshnessWindowMs"`
	RequireGuardBeforeTest bool  `json:"requireGuardBeforeTest"`
	BlockOnFail            bool  `json:"blockOnFail"`
}

// DefaultFreshnessWindow is the freshness window used by DefaultGatePolicy:
// ten minutes.
const DefaultFreshnessWindow = 10 * time.Minute

// DefaultGatePolicy returns the policy defaults from the specification: both
// guard and test evidence required, a ten-minute freshness window,
// guard-before-test ordering enforced, and failures block completion.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		RequireGuard:           true,
		RequireTest:            true,
		FreshnessWindowMs:      DefaultFreshnessWindow.Milliseconds(),
		RequireGuardBeforeTest: true,
		BlockOnFail:            true,
	}
}

// GatePolicyPatch is a partial GatePolicy update. Nil fields are left
// unchanged by Engine.UpdateConfig; this is how "merge atomically into the
// current policy" is expressed without reflection-based field diffing.
type GatePolicyPatch struct {
	RequireGuard           *bool
	RequireTest            *bool
	FreshnessWindowMs      *int64
	RequireGuardBeforeTest *bool
	BlockOnFail            *bool
}

// Apply returns a copy of policy with every non-nil field of patch applied.
func (patch GatePolicyPatch) Apply(policy GatePolicy) GatePolicy {
	if patch.RequireGuard != nil {
		policy.RequireGuard = *patch.RequireGuard
	}
	if patch.RequireTest != nil {
		policy.RequireTest = *patch.RequireTest
	}
	if patch.FreshnessWindowMs != nil {
		policy.FreshnessWindowMs = *patch.FreshnessWindowMs
	}
	if patch.RequireGuardBeforeTest != nil {
		policy.RequireGuardBeforeTest = *patch.RequireGuardBeforeTest
	}
	if patch.BlockOnFail != nil {
		policy.BlockOnFail = *patch.BlockOnFail
	}
	return policy
}
