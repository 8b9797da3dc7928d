package guidance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/model"
)

// chatMessage is the provider-neutral chat turn handed to an LLM backend.
type chatMessage struct {
	Role    string
	Content string
}

const roleUser = "user"

// systemPrompt instructs the model to behave like the Worker: one mirror
// statement, at most one leading question, JSON out.
func systemPrompt(locale string) string {
	if locale == "" {
		locale = "de"
	}
	return fmt.Sprintf(`You are a gentle reflection companion. The user shares a thought; you respond in locale %q with a short mirroring restatement and at most one open leading question. Never give advice, never diagnose. If the user seems to be in acute distress, set risk_level to "high"; for milder distress use "mild", otherwise "none". After roughly three exchanges, set flow.recommend_end to true so the app can move to mood capture.

Respond with JSON only, in this shape:
{"mirror":"...","question":"...","talk":["..."],"risk_level":"none","followups":["..."],"flow":{"mood_prompt":false,"recommend_end":false}}

followups are up to three short answer starters for the user, never questions.`, locale)
}

func turnMessages(sess model.SessionHandle, text, tz string, closing bool) []chatMessage {
	payload := map[string]any{
		"text": text,
		"tz":   tz,
	}
	if !sess.IsZero() {
		payload["session"] = map[string]any{
			"thread_id":  sess.ThreadID,
			"turn_index": sess.TurnIndex,
			"max_turns":  sess.MaxTurns,
		}
	}
	if closing {
		payload["closing"] = true
	}
	data, _ := json.Marshal(payload)
	return []chatMessage{{Role: roleUser, Content: string(data)}}
}

// parseTurn decodes the model's reply into a coerced result. Model output is
// not trusted to be valid JSON; a parse failure falls back to treating the
// whole reply as plain text, which the coercion layer accepts.
func parseTurn(content string, sess model.SessionHandle) coerce.Result {
	trimmed := stripFences(content)

	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		payload = strings.TrimSpace(content)
	}

	res := coerce.Turn(payload)
	if !res.HasSession {
		// LLM backends have no server-side session; the handle is advanced
		// locally and echoed back on the next call.
		if sess.IsZero() {
			res.Session = model.SessionHandle{
				ThreadID: uuid.Must(uuid.NewV7()).String(),
				MaxTurns: model.DefaultMaxTurns,
			}
		} else {
			sess.TurnIndex++
			res.Session = sess
		}
		res.HasSession = true
	}
	return res
}

// stripFences removes a wrapping markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
