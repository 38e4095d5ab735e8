package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoJSON is returned when no JSON object can be recovered from a reply.
var ErrNoJSON = eris.New("llm: no JSON object in response")

// reFlatObject matches objects with at most one level of nesting.
var reFlatObject = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

var answerMarkers = []string{
	"最终答案：", "Final Answer:", "答案：", "Answer:",
	"结果：", "Result:", "输出：", "Output:",
}

// ParseJSON recovers a JSON object from a model reply that may wrap it in
// code fences, reasoning text or an answer marker. Strategies, in order:
// a ```json fence, any fence, first "{" to last "}", balanced objects
// found by regex, the whole reply, then the text after an answer marker.
func ParseJSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoJSON
	}

	if obj, ok := fenced(text, "```json"); ok {
		return obj, nil
	}
	if obj, ok := fenced(text, "```"); ok {
		return obj, nil
	}
	if obj, ok := braces(text); ok {
		return obj, nil
	}
	for _, m := range reFlatObject.FindAllString(text, -1) {
		if obj, ok := decodeObject(m); ok && len(obj) > 0 {
			return obj, nil
		}
	}
	if obj, ok := decodeObject(text); ok {
		return obj, nil
	}
	for _, marker := range answerMarkers {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		if obj, ok := braces(text[idx+len(marker):]); ok {
			return obj, nil
		}
	}

	preview := text
	if len(preview) > 500 {
		preview = preview[:500]
	}
	zap.L().Warn("llm: could not extract JSON", zap.String("response", preview))
	return nil, ErrNoJSON
}

// Decode parses a reply with ParseJSON and decodes the object into v.
func Decode(text string, v any) error {
	obj, err := ParseJSON(text)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return eris.Wrap(err, "llm: re-encode object")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrap(err, "llm: decode object")
	}
	return nil
}

// StringValue renders a decoded JSON value as a record cell. Booleans
// map to the flag encoding ("1" or ""), null to "".
func StringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

func fenced(text, open string) (map[string]any, bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return nil, false
	}
	start += len(open)
	end := strings.Index(text[start:], "```")
	if end < 0 {
		return nil, false
	}
	return decodeObject(strings.TrimSpace(text[start : start+end]))
}

func braces(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return decodeObject(text[start : end+1])
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
