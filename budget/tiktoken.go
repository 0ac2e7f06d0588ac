package budget

import (
	"github.com/pkoukk/tiktoken-go"
)

// TiktokenEstimator counts tokens with a real BPE encoding. Use it when the
// target model's encoding is known; the budgeter falls back to the character
// heuristic if encoding fails.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator resolves an encoding by model name, then by encoding
// name.
func NewTiktokenEstimator(name string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by encoding name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (t *TiktokenEstimator) CountTokens(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}
