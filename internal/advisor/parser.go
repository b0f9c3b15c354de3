package advisor

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kingston115/pidtune/internal/control"
)

// ParseProposal extracts a gain proposal from raw advisory text. Three
// fallback stages run in order, first success wins:
//
//  1. the whole text as a JSON object with numeric p/i/d
//  2. the first balanced brace-delimited substring, retried as (1) —
//     handles replies wrapped in prose or code fences
//  3. per-field regex extraction; a field the regex cannot find keeps the
//     current gain for that term (never zero: zeroing a term silently
//     disables it, which is worse than leaving it unchanged)
//
// All stages failing yields ErrUnparsableResponse, which callers treat as
// a no-op round rather than a session abort.
func ParseProposal(text string, current control.Gains) (Proposal, error) {
	if p, ok := parseObject(text); ok {
		return validate(p)
	}

	if inner, ok := firstBracedObject(text); ok {
		if p, ok := parseObject(inner); ok {
			return validate(p)
		}
	}

	if p, ok := scanFields(text, current); ok {
		return validate(p)
	}

	return Proposal{}, ErrUnparsableResponse
}

type rawProposal struct {
	Analysis string   `json:"analysis"`
	P        *float64 `json:"p"`
	I        *float64 `json:"i"`
	D        *float64 `json:"d"`
	Status   string   `json:"status"`
}

func parseObject(text string) (Proposal, bool) {
	var raw rawProposal
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Proposal{}, false
	}
	if raw.P == nil || raw.I == nil || raw.D == nil {
		return Proposal{}, false
	}
	return Proposal{
		Gains:     control.Gains{Kp: *raw.P, Ki: *raw.I, Kd: *raw.D},
		Rationale: raw.Analysis,
		Status:    parseStatus(raw.Status),
	}, true
}

// firstBracedObject returns the first balanced {...} substring.
func firstBracedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch text[i] {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

var (
	pFieldRe        = regexp.MustCompile(`["']?\bp["']?\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	iFieldRe        = regexp.MustCompile(`["']?\bi["']?\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	dFieldRe        = regexp.MustCompile(`["']?\bd["']?\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	statusFieldRe   = regexp.MustCompile(`["']?status["']?\s*:\s*["']?([A-Za-z]+)`)
	analysisFieldRe = regexp.MustCompile(`"analysis"\s*:\s*"([^"]*)"`)
)

// scanFields regex-extracts each term independently. Succeeds when at
// least one gain field is present in the text.
func scanFields(text string, current control.Gains) (Proposal, bool) {
	g := current
	found := 0
	if v, ok := matchFloat(pFieldRe, text); ok {
		g.Kp = v
		found++
	}
	if v, ok := matchFloat(iFieldRe, text); ok {
		g.Ki = v
		found++
	}
	if v, ok := matchFloat(dFieldRe, text); ok {
		g.Kd = v
		found++
	}
	if found == 0 {
		return Proposal{}, false
	}

	p := Proposal{Gains: g}
	if m := analysisFieldRe.FindStringSubmatch(text); m != nil {
		p.Rationale = m[1]
	}
	if m := statusFieldRe.FindStringSubmatch(text); m != nil {
		p.Status = parseStatus(m[1])
	}
	return p, true
}

func matchFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseStatus maps the advisor's status string. Anything unrecognized
// defaults to continue; only an explicit DONE converges a session.
func parseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), "DONE") {
		return StatusConverged
	}
	return StatusContinue
}

func validate(p Proposal) (Proposal, error) {
	for _, v := range []float64{p.Gains.Kp, p.Gains.Ki, p.Gains.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Proposal{}, fmt.Errorf("%w: gains out of range (p=%g i=%g d=%g)",
				ErrUnparsableResponse, p.Gains.Kp, p.Gains.Ki, p.Gains.Kd)
		}
	}
	return p, nil
}
