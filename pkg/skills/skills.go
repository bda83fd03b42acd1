// Package skills implements the four bounded prompt protocols the engine
// drives: Formulation, Offer, Coordinator, SubNegotiation. Each is a pure
// function of a typed input plus the services it needs (an llms.Provider
// or a channel.Agent) to a typed output — no hidden state, mirroring the
// teacher's reasoning.Strategy shape of pure functions over an explicit
// state argument.
package skills

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
)

// codeFence strips a ```json ... ``` or ``` ... ``` wrapper, and
// leadingJunk trims any prose preceding the first '{' or '['.
var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseStructured unmarshals a model's structured-output text into T,
// tolerating code-fence wrapping and incidental prose around the JSON
// payload (permissive on framing, strict on content per spec.md §4.4). On
// failure it returns a SkillContractViolation carrying the raw text so a
// caller can inspect exactly what the model said.
func parseStructured[T any](skill, raw string) (T, error) {
	var zero T

	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return zero, negerrors.NewSkillContractViolation(skill, "no JSON object or array found in output", raw)
	}
	end := matchingBracketEnd(text, start)
	if end < 0 {
		return zero, negerrors.NewSkillContractViolation(skill, "unterminated JSON payload", raw)
	}
	candidate := text[start : end+1]

	var out T
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return zero, negerrors.NewSkillContractViolation(skill, "json parse failed: "+err.Error(), raw)
	}
	return out, nil
}

// matchingBracketEnd finds the index of the bracket/brace matching the one
// at start, respecting nested brackets and quoted strings.
func matchingBracketEnd(s string, start int) int {
	open := s[start]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// confidenceBucket labels a [0,1] confidence into the low/med/high band
// used by MaskOffers, never the raw number.
func confidenceBucket(c float64) string {
	switch {
	case c < 0.34:
		return "low"
	case c < 0.67:
		return "med"
	default:
		return "high"
	}
}

// firstWords returns the first n whitespace-separated words of s.
func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func floatToStr(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
