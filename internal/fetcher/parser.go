package fetcher

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Answer is the outcome extracted from one source response.
type Answer struct {
	Outcome    bool
	Confidence float64
}

// rawAnswer covers the response shapes sources are known to return:
//
//	{"outcome": true, "confidence": 0.9}
//	{"answer": "yes"}
//	{"probability": 0.85}
type rawAnswer struct {
	Outcome     *bool    `json:"outcome"`
	Confidence  *float64 `json:"confidence"`
	Answer      string   `json:"answer"`
	Probability *float64 `json:"probability"`
}

// ParseAnswer extracts a yes/no answer with confidence from a source
// response body. Responses that carry no recognizable answer shape fail.
func ParseAnswer(body []byte) (Answer, error) {
	var raw rawAnswer
	if err := json.Unmarshal(body, &raw); err != nil {
		return Answer{}, eris.Wrap(err, "fetcher: unmarshal source response")
	}

	switch {
	case raw.Outcome != nil:
		ans := Answer{Outcome: *raw.Outcome, Confidence: 1.0}
		if raw.Confidence != nil {
			ans.Confidence = clampConfidence(*raw.Confidence)
		}
		return ans, nil

	case raw.Answer != "":
		switch strings.ToLower(strings.TrimSpace(raw.Answer)) {
		case "yes", "true":
			ans := Answer{Outcome: true, Confidence: 1.0}
			if raw.Confidence != nil {
				ans.Confidence = clampConfidence(*raw.Confidence)
			}
			return ans, nil
		case "no", "false":
			ans := Answer{Outcome: false, Confidence: 1.0}
			if raw.Confidence != nil {
				ans.Confidence = clampConfidence(*raw.Confidence)
			}
			return ans, nil
		default:
			return Answer{}, eris.Errorf("fetcher: unrecognized answer %q", raw.Answer)
		}

	case raw.Probability != nil:
		p := clampConfidence(*raw.Probability)
		// Probability p of yes maps to outcome yes with confidence p, or
		// outcome no with confidence 1-p.
		if p >= 0.5 {
			return Answer{Outcome: true, Confidence: p}, nil
		}
		return Answer{Outcome: false, Confidence: 1 - p}, nil

	default:
		return Answer{}, eris.New("fetcher: response carries no answer")
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
