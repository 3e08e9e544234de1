// Package reply turns a Langflow run response of unknown shape into a display
// string.
//
// Langflow deployments answer with several different JSON layouts depending on
// version and flow components. Extract walks an ordered list of shape rules and
// returns the first match. When nothing matches, the whole payload is returned
// pretty-printed behind FallbackPrefix so callers can tell an understood reply
// from a raw one.
package reply

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// FallbackPrefix marks replies produced by the raw fallback.
const FallbackPrefix = "[unrecognized response] "

// RuleFallback names the raw fallback in Reply.Rule.
const RuleFallback = "fallback"

// Reply is the outcome of normalizing a response.
type Reply struct {
	Text     string
	Rule     string // name of the shape rule that matched
	Fallback bool   // no shape rule matched
}

type rule struct {
	name  string
	match func(root gjson.Result) (string, bool)
}

// rules are tried in order; the first match wins.
var rules = []rule{
	{name: "outputs.outputs.results", match: nestedResults},
	{name: "outputs.results", match: field("outputs.0.results", asString)},
	{name: "results", match: field("results", unwrapResults)},
	{name: "message", match: field("message", unwrapMessage)},
	{name: "text", match: field("text", asString)},
	{name: "answer", match: field("answer", asString)},
	{name: "output", match: field("output", asString)},
}

// Extract normalizes raw. It never fails: input that matches no rule,
// including invalid JSON, yields a fallback reply.
func Extract(raw []byte) Reply {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fallback([]byte("null"))
	}
	if !gjson.ValidBytes(raw) {
		return fallback(raw)
	}

	root := gjson.ParseBytes(raw)
	for _, r := range rules {
		if text, ok := r.match(root); ok {
			return Reply{Text: text, Rule: r.name}
		}
	}
	return fallback(raw)
}

// Text is Extract(raw).Text.
func Text(raw []byte) string {
	return Extract(raw).Text
}

// IsFallback reports whether text came from the raw fallback.
func IsFallback(text string) bool {
	return strings.HasPrefix(text, FallbackPrefix)
}

func fallback(raw []byte) Reply {
	var body string
	if gjson.ValidBytes(raw) {
		body = strings.TrimRight(string(pretty.Pretty(raw)), "\n")
	} else {
		body = strings.TrimSpace(string(raw))
	}
	return Reply{
		Text:     FallbackPrefix + body,
		Rule:     RuleFallback,
		Fallback: true,
	}
}

// field applies fn to the value at path when it is present.
func field(path string, fn func(gjson.Result) string) func(gjson.Result) (string, bool) {
	return func(root gjson.Result) (string, bool) {
		v := root.Get(path)
		if !present(v) {
			return "", false
		}
		return fn(v), true
	}
}

func nestedResults(root gjson.Result) (string, bool) {
	return field("outputs.0.outputs.0.results", unwrapResults)(root)
}

// unwrapResults handles a results value: a string, an object carrying a
// message or text, or anything else stringified.
func unwrapResults(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	if msg := v.Get("message"); present(msg) {
		return unwrapMessage(msg)
	}
	if text := v.Get("text"); present(text) {
		return asString(text)
	}
	return stringify(v)
}

// unwrapMessage returns a message string, its content string, or the
// stringified message.
func unwrapMessage(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	if content := v.Get("content"); content.Type == gjson.String {
		return content.String()
	}
	return stringify(v)
}

func asString(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return stringify(v)
}

func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

// stringify renders v as compact JSON text.
func stringify(v gjson.Result) string {
	return string(pretty.Ugly([]byte(v.Raw)))
}
