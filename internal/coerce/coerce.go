// Package coerce normalizes the loosely-shaped turn payloads returned by the
// guidance service. The service has gone through several response shapes;
// every field is resolved against a fixed, ordered list of candidate paths
// and degrades to an empty or false default on a miss. Nothing here returns
// an error.
package coerce

import (
	"strings"
	"time"

	"github.com/zenyourself/reflection-core/internal/model"
)

const (
	maxTalkLines = 2
	maxFollowups = 3
)

// Result is the normalized step-construction record extracted from one turn.
type Result struct {
	Mirror    string
	Question  string
	TalkLines []string
	Risk      bool
	Followups []string

	// MoodPrompt and RecommendEnd are the closure signals.
	MoodPrompt   bool
	RecommendEnd bool

	// Session is the echoed correlation handle; HasSession is false when the
	// payload carried none and the caller should synthesize a local one.
	Session    model.SessionHandle
	HasSession bool
}

// Closure reports whether the turn signals the move to mood capture.
func (r Result) Closure() bool {
	return r.MoodPrompt || r.RecommendEnd
}

// Turn extracts a normalized Result from an arbitrary turn payload. The
// payload may be a plain string, a nested map, or anything else; unknown
// shapes produce zero values.
func Turn(payload any) Result {
	var res Result

	// A bare string is the oldest response shape: the whole reply text.
	if s, ok := payload.(string); ok {
		s = strings.TrimSpace(s)
		if strings.HasSuffix(s, "?") {
			res.Question = s
		} else {
			res.Mirror = s
		}
		return res
	}

	res.Mirror = mirrorText(payload)
	res.Question = strings.TrimSpace(firstString(payload,
		p("question"),
		p("questions"),
		p("primary", "question"),
		p("flow", "question"),
	))

	res.TalkLines = stringList(payload, maxTalkLines,
		p("talk"),
		p("talk_lines"),
		p("flow", "talk"),
	)

	res.Risk = riskFlag(payload)
	res.Followups = Followups(rawList(payload,
		p("followups"),
		p("suggestions"),
		p("answer_helpers"),
		p("flow", "followups"),
	))

	res.MoodPrompt = truthyAt(payload, p("mood", "prompt")) ||
		truthyAt(payload, p("flow", "mood_prompt"))
	res.RecommendEnd = truthyAt(payload, p("flow", "recommend_end"))

	res.Session, res.HasSession = sessionHandle(payload)
	return res
}

// Session resolves the echoed session handle, synthesizing a local fallback
// when the payload omits one. The service is the source of truth; the
// fallback only exists so the next call has something consistent to send.
func Session(payload any, now time.Time) model.SessionHandle {
	if h, ok := sessionHandle(payload); ok {
		return h
	}
	return model.NewLocalSessionHandle(now)
}

// mirrorText resolves the mirror statement. A candidate ending with "?" is
// rejected so a question-shaped string under a mirror key is never presented
// as a mirror.
func mirrorText(payload any) string {
	paths := []path{
		p("mirror"),
		p("reply"),
		p("text"),
		p("message"),
		p("primary", "mirror"),
		p("flow", "mirror"),
	}
	for _, pt := range paths {
		s := strings.TrimSpace(asString(lookup(payload, pt)))
		if s == "" || strings.HasSuffix(s, "?") {
			continue
		}
		return s
	}
	return ""
}

// riskFlag resolves the risk signal. Both "high" and "mild" risk levels are
// actionable: the app shows the same safety banner for either. This
// conflation is product policy, preserved as-is.
func riskFlag(payload any) bool {
	for _, pt := range []path{p("risk"), p("is_risk"), p("flags", "risk")} {
		if b, ok := lookup(payload, pt).(bool); ok && b {
			return true
		}
	}
	for _, pt := range []path{p("risk_level"), p("risk", "level"), p("flow", "risk_level")} {
		switch strings.ToLower(strings.TrimSpace(asString(lookup(payload, pt)))) {
		case "high", "mild":
			return true
		}
	}
	return false
}

func sessionHandle(payload any) (model.SessionHandle, bool) {
	var raw any
	for _, pt := range []path{p("session"), p("meta", "session"), p("flow", "session")} {
		if v := lookup(payload, pt); v != nil {
			raw = v
			break
		}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return model.SessionHandle{}, false
	}

	h := model.SessionHandle{
		ThreadID:  strings.TrimSpace(firstString(m, p("thread_id"), p("threadId"), p("thread"), p("id"))),
		TurnIndex: firstInt(m, p("turn_index"), p("turnIndex"), p("turn"), p("index")),
		MaxTurns:  firstInt(m, p("max_turns"), p("maxTurns"), p("limit")),
	}
	if h.ThreadID == "" {
		return model.SessionHandle{}, false
	}
	if h.MaxTurns <= 0 {
		h.MaxTurns = model.DefaultMaxTurns
	}
	return h, true
}

func firstString(payload any, paths ...path) string {
	for _, pt := range paths {
		if s := asString(lookup(payload, pt)); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstInt(payload any, paths ...path) int {
	for _, pt := range paths {
		if n, ok := asInt(lookup(payload, pt)); ok {
			return n
		}
	}
	return 0
}

func stringList(payload any, max int, paths ...path) []string {
	var out []string
	for _, raw := range rawList(payload, paths...) {
		s := strings.TrimSpace(asString(raw))
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) >= max {
			break
		}
	}
	return out
}

func rawList(payload any, paths ...path) []any {
	for _, pt := range paths {
		switch v := lookup(payload, pt).(type) {
		case []any:
			if len(v) > 0 {
				return v
			}
		case string:
			if strings.TrimSpace(v) != "" {
				return []any{v}
			}
		}
	}
	return nil
}

func truthyAt(payload any, pt path) bool {
	switch v := lookup(payload, pt).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

type path []string

func p(segments ...string) path { return path(segments) }

// lookup walks a dot path through nested maps. Any shape mismatch along the
// way yields nil.
func lookup(payload any, pt path) any {
	cur := payload
	for _, key := range pt {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// asString coerces a leaf value to text. Lists yield their first non-empty
// string element (the "questions" shape sends a one-element list).
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, el := range t {
			if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}
