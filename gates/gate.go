package gates

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// GateStatus is the outcome of a single gate evaluation.
type GateStatus string

const (
	GateStatusPassed  GateStatus = "passed"
	GateStatusBlocked GateStatus = "blocked"
	GateStatusPending GateStatus = "pending"
)

// kind names used both as EvidenceState lookup keys and as nextToolCalls tool
// discriminators.
const (
	kindGuard = "guard"
	kindTest  = "test"
)

// Tool names emitted in NextToolCall.Tool.
const (
	ToolGuardValidate = "guard_validate"
	ToolTestingRun    = "testing_run"
)

// Numeric priorities for nextToolCalls: lower runs first. Guard always sorts
// ahead of test ("guard-first"); a re-run entry inherits its kind's priority.
const (
	PriorityGuard = 10
	PriorityTest  = 20
)

// maxFailingDetails caps the failing rule/test names surfaced per kind so
// gate payloads stay bounded (spec §4.2 step 4: "capped to keep payloads
// bounded").
const maxFailingDetails = 10

// FailingEvidenceDetail names one evidence kind that is in a failed state.
type FailingEvidenceDetail struct {
	Type    string   `json:"type"`
	Reason  string   `json:"reason"`
	Details []string `json:"details,omitempty"`
}

// NextToolCall is one suggested remediation the caller should invoke.
// Priority orders the list: lower values come first.
type NextToolCall struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	Reason   string         `json:"reason"`
	Priority int            `json:"priority"`
}

// GateEvaluationResult is the outcome of one evaluateCompletionGates call.
type GateEvaluationResult struct {
	Status          GateStatus              `json:"status"`
	MissingEvidence []string                `json:"missingEvidence,omitempty"`
	StaleEvidence   []string                `json:"staleEvidence,omitempty"`
	FailingEvidence []FailingEvidenceDetail `json:"failingEvidence,omitempty"`
	BlockedReason   string                  `json:"blockedReason,omitempty"`
	NextToolCalls   []NextToolCall          `json:"nextToolCalls,omitempty"`
}

// Context carries the task-scoped information the gate engine needs to
// produce human-readable reasons and ruleset hints. TaskType, TaskName, and
// Tags are optional.
type Context struct {
	TaskID   string
	TaskType string
	TaskName string
	Tags     []string
}

// Engine evaluates completion gates against its current GatePolicy, which
// UpdateConfig can change between evaluations. It holds no
// evidence itself: evidence is supplied by the caller on every call, read
// from an external State Manager collaborator.
type Engine struct {
	mu     sync.RWMutex
	policy GatePolicy

	// Now returns the current time. Overridable for deterministic tests;
	// defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an Engine with the given policy. A zero-value policy is
// replaced with DefaultGatePolicy.
func NewEngine(policy GatePolicy) *Engine {
	if policy == (GatePolicy{}) {
		policy = DefaultGatePolicy()
	}
	return &Engine{policy: policy, Now: time.Now}
}

// GetConfig returns the engine's current policy.
func (e *Engine) GetConfig() GatePolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// UpdateConfig atomically merges patch into the current policy.
func (e *Engine) UpdateConfig(patch GatePolicyPatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = patch.Apply(e.policy)
}

// EvaluateCompletionGates is a pure function of (evidence, policy, context):
// identical inputs always produce an equal result, so repeated evaluation is
// idempotent (see spec §8 "Gate idempotence").
func (e *Engine) EvaluateCompletionGates(evidence EvidenceState, ctx Context) GateEvaluationResult {
	policy := e.GetConfig()
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return evaluate(evidence, policy, ctx, now())
}

// evaluate implements the algorithm in spec §4.2 as a free function so its
// determinism does not depend on Engine state beyond the three inputs.
func evaluate(evidence EvidenceState, policy GatePolicy, ctx Context, now time.Time) GateEvaluationResult {
	guardPresent := evidence.LastGuardRun != nil
	testPresent := evidence.LastTestRun != nil

	var missing, stale []string
	guardStale, testStale := false, false

	if policy.RequireGuard {
		if !guardPresent {
			missing = append(missing, kindGuard)
		} else if !isFresh(evidence.LastGuardRun.Timestamp, policy.FreshnessWindowMs, now) {
			stale = append(stale, kindGuard)
			guardStale = true
		}
	}
	if policy.RequireTest {
		if !testPresent {
			missing = append(missing, kindTest)
		} else if !isFresh(evidence.LastTestRun.Timestamp, policy.FreshnessWindowMs, now) {
			stale = append(stale, kindTest)
			testStale = true
		}
	}

	// Step 3: precedence. Test must not predate the guard run it is meant to
	// validate.
	if policy.RequireGuardBeforeTest && guardPresent && testPresent &&
		evidence.LastTestRun.Timestamp.Before(evidence.LastGuardRun.Timestamp) {
		return GateEvaluationResult{
			Status:        GateStatusBlocked,
			BlockedReason: "test must be re-run after guard passed",
			NextToolCalls: []NextToolCall{testToolCall(ctx, "test must be re-run after guard passed", PriorityTest)},
		}
	}

	// Step 4: pass-state.
	var failing []FailingEvidenceDetail
	guardFailing, testFailing := false, false
	if policy.BlockOnFail {
		if guardPresent && evidence.LastGuardRun.Status == StatusFailed {
			guardFailing = true
			failing = append(failing, FailingEvidenceDetail{
				Type:    kindGuard,
				Reason:  "guard check failed",
				Details: capDetails(evidence.LastGuardRun.FailingRules),
			})
		}
		if testPresent && evidence.LastTestRun.Status == StatusFailed {
			testFailing = true
			failing = append(failing, FailingEvidenceDetail{
				Type:    kindTest,
				Reason:  "test run failed",
				Details: capDetails(evidence.LastTestRun.FailingTests),
			})
		}
	}

	result := GateEvaluationResult{
		MissingEvidence: missing,
		StaleEvidence:   stale,
		FailingEvidence: failing,
	}

	switch {
	case len(failing) > 0:
		result.Status = GateStatusBlocked
		result.BlockedReason = blockedReasonFor(failing)
	case len(missing) > 0 || len(stale) > 0:
		result.Status = GateStatusPending
	default:
		result.Status = GateStatusPassed
		return result
	}

	result.NextToolCalls = buildNextToolCalls(ctx, missing, stale, guardFailing, testFailing, guardStale, testStale)
	return result
}

func isFresh(timestamp time.Time, freshnessWindowMs int64, now time.Time) bool {
	window := time.Duration(freshnessWindowMs) * time.Millisecond
	return now.Sub(timestamp) <= window
}

func capDetails(details []string) []string {
	if len(details) <= maxFailingDetails {
		return details
	}
	return details[:maxFailingDetails]
}

func blockedReasonFor(failing []FailingEvidenceDetail) string {
	kinds := make([]string, 0, len(failing))
	for _, f := range failing {
		kinds = append(kinds, f.Type)
	}
	return strings.Join(kinds, ", ") + " failing"
}

// buildNextToolCalls produces one entry per kind touched by missing, stale,
// or failing evidence. A kind that is simultaneously stale and failing gets a
// single entry reflecting the failure — failing takes precedence over
// staleness, the deliberate tie-break recorded in spec §9.
func buildNextToolCalls(ctx Context, missing, stale []string, guardFailing, testFailing, guardStale, testStale bool) []NextToolCall {
	touch := map[string]bool{}
	for _, k := range missing {
		touch[k] = true
	}
	for _, k := range stale {
		touch[k] = true
	}
	if guardFailing {
		touch[kindGuard] = true
	}
	if testFailing {
		touch[kindTest] = true
	}

	var calls []NextToolCall
	if touch[kindGuard] {
		reason := guardReason(guardFailing, guardStale, contains(missing, kindGuard))
		calls = append(calls, guardToolCall(ctx, reason, PriorityGuard))
	}
	if touch[kindTest] {
		reason := testReason(testFailing, testStale, contains(missing, kindTest))
		calls = append(calls, testToolCall(ctx, reason, PriorityTest))
	}

	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Priority < calls[j].Priority })
	return calls
}

func guardReason(failing, stale, missing bool) string {
	switch {
	case failing:
		return "guard check failed and must be re-run"
	case stale:
		return "guard evidence is stale and must be re-run"
	case missing:
		return "no guard evidence recorded"
	default:
		return "guard evidence required"
	}
}

func testReason(failing, stale, missing bool) string {
	switch {
	case failing:
		return "test run failed and must be re-run"
	case stale:
		return "test evidence is stale and must be re-run"
	case missing:
		return "no test evidence recorded"
	default:
		return "test evidence required"
	}
}

func guardToolCall(ctx Context, reason string, priority int) NextToolCall {
	args := map[string]any{"taskId": ctx.TaskID}
	if ruleset := rulesetHint(ctx); ruleset != "" {
		args["ruleset"] = ruleset
	}
	return NextToolCall{Tool: ToolGuardValidate, Args: args, Reason: reason, Priority: priority}
}

func testToolCall(ctx Context, reason string, priority int) NextToolCall {
	args := map[string]any{"taskId": ctx.TaskID, "scope": "affected"}
	if ruleset := rulesetHint(ctx); ruleset != "" {
		args["ruleset"] = ruleset
	}
	return NextToolCall{Tool: ToolTestingRun, Args: args, Reason: reason, Priority: priority}
}

// rulesetHint inspects the task's name and tags for a case-insensitive
// "frontend"/"backend" substring and returns the matching ruleset, or "" if
// neither is suggested.
func rulesetHint(ctx Context) string {
	haystack := strings.ToLower(ctx.TaskName)
	for _, tag := range ctx.Tags {
		haystack += " " + strings.ToLower(tag)
	}
	switch {
	case strings.Contains(haystack, "frontend"):
		return "frontend"
	case strings.Contains(haystack, "backend"):
		return "backend"
	default:
		return ""
	}
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
