package budget

import (
	"unicode/utf8"

	"github.com/sweetpotato0/modelgate/message"
)

// charsPerToken is the rough ratio used by the fallback estimator. It is an
// approximation, not a verified token count.
const charsPerToken = 4

// perMessageOverhead accounts for role and framing tokens around each message.
const perMessageOverhead = 10

// Estimator counts tokens for a piece of text. Implementations may be exact
// (a real tokenizer) or heuristic; the budgeter treats them interchangeably.
type Estimator interface {
	CountTokens(text string) (int, error)
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(text string) (int, error)

func (f EstimatorFunc) CountTokens(text string) (int, error) { return f(text) }

// HeuristicEstimator is the default message-aware estimator: rune count
// divided by four. It never fails.
type HeuristicEstimator struct{}

func (HeuristicEstimator) CountTokens(text string) (int, error) {
	return utf8.RuneCountInString(text) / charsPerToken, nil
}

// fallbackCount is used when the configured estimator errors out.
func fallbackCount(text string) int {
	return len(text) / charsPerToken
}

// countText runs the estimator and degrades to the character heuristic on
// failure.
func countText(est Estimator, text string) int {
	if est == nil {
		return fallbackCount(text)
	}
	n, err := est.CountTokens(text)
	if err != nil {
		return fallbackCount(text)
	}
	return n
}

// countMessage estimates a whole message including tool call payloads.
func countMessage(est Estimator, msg *message.Message) int {
	if msg == nil {
		return 0
	}
	total := perMessageOverhead + countText(est, msg.Content)
	for _, tc := range msg.ToolCalls {
		total += perMessageOverhead + countText(est, tc.Name) + countText(est, tc.Args)
	}
	return total
}
