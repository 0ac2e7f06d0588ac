// Package budget trims conversation input to fit a model's context window.
// Trimming is a documented degradation, never an error: the budgeter always
// returns a usable triple.
package budget

import (
	"github.com/sweetpotato0/modelgate/message"
)

const (
	// DefaultResponseReserve is subtracted from the context window to leave
	// room for the model's reply.
	DefaultResponseReserve = 50

	// systemFloor and promptFloor are the minimum retained lengths, in
	// characters, when tail truncation kicks in.
	systemFloor = 100
	promptFloor = 50
)

// Budgeter trims (system, history, prompt) triples to a token target.
type Budgeter struct {
	est     Estimator
	reserve int
}

// Option configures a Budgeter.
type Option func(*Budgeter)

// WithEstimator swaps the token estimator.
func WithEstimator(est Estimator) Option {
	return func(b *Budgeter) {
		if est != nil {
			b.est = est
		}
	}
}

// WithResponseReserve overrides the response token reserve.
func WithResponseReserve(reserve int) Option {
	return func(b *Budgeter) {
		if reserve > 0 {
			b.reserve = reserve
		}
	}
}

// New creates a Budgeter with the heuristic estimator and default reserve.
func New(opts ...Option) *Budgeter {
	b := &Budgeter{
		est:     HeuristicEstimator{},
		reserve: DefaultResponseReserve,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result is the trimmed triple plus what was done to reach it.
type Result struct {
	System  string
	History []*message.Message
	Prompt  string

	// DroppedHistory counts removed history entries, oldest first.
	DroppedHistory int
	// TruncatedSystem and TruncatedPrompt report tail truncation.
	TruncatedSystem bool
	TruncatedPrompt bool
	// Exhausted is set when the triple still exceeds the target after all
	// floors were hit. The call proceeds regardless.
	Exhausted bool
	// EstimatedTokens is the final estimate for the returned triple.
	EstimatedTokens int
}

// Degraded reports whether any trimming took place.
func (r Result) Degraded() bool {
	return r.DroppedHistory > 0 || r.TruncatedSystem || r.TruncatedPrompt
}

// Adjust trims the triple to fit contextWindow minus the response reserve.
// History entries are dropped from the oldest end only and never reordered.
// If dropping all history is not enough, the system tail and then the prompt
// tail are truncated by roughly the remaining overage, never below their
// floors. Adjust never fails.
func (b *Budgeter) Adjust(system string, history []*message.Message, prompt string, contextWindow int) Result {
	target := contextWindow - b.reserve
	if target < 0 {
		target = 0
	}

	res := Result{
		System:  system,
		History: message.CloneMessages(history),
		Prompt:  prompt,
	}

	estimate := b.estimateAll(res.System, res.History, res.Prompt)
	for estimate > target && len(res.History) > 0 {
		res.History = res.History[1:]
		res.DroppedHistory++
		estimate = b.estimateAll(res.System, res.History, res.Prompt)
	}

	if estimate > target && len(res.System) > systemFloor {
		res.System = truncateTail(res.System, estimate-target, systemFloor)
		res.TruncatedSystem = true
		estimate = b.estimateAll(res.System, res.History, res.Prompt)
	}

	if estimate > target && len(res.Prompt) > promptFloor {
		res.Prompt = truncateTail(res.Prompt, estimate-target, promptFloor)
		res.TruncatedPrompt = true
		estimate = b.estimateAll(res.System, res.History, res.Prompt)
	}

	res.Exhausted = estimate > target
	res.EstimatedTokens = estimate
	return res
}

func (b *Budgeter) estimateAll(system string, history []*message.Message, prompt string) int {
	total := perMessageOverhead + countText(b.est, system)
	total += perMessageOverhead + countText(b.est, prompt)
	for _, msg := range history {
		total += countMessage(b.est, msg)
	}
	return total
}

// truncateTail removes about overageTokens worth of characters from the end
// of s, keeping at least floor characters.
func truncateTail(s string, overageTokens, floor int) string {
	keep := len(s) - overageTokens*charsPerToken
	if keep < floor {
		keep = floor
	}
	if keep >= len(s) {
		return s
	}
	// Back up to a rune boundary so truncation never splits a character.
	for keep > 0 && keep < len(s) && (s[keep]&0xC0) == 0x80 {
		keep--
	}
	return s[:keep]
}
