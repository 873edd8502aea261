package nodes

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RateLimitMessage replaces the output of a throttled LLM call.
const RateLimitMessage = "Rate limit due to heavy traffic. Please wait a moment and try again."

// MaxErrorLength bounds user-facing error messages, marker included.
const MaxErrorLength = 240

const truncationMarker = "..."

// NormalizeOutput treats stringified null values ("null", "undefined", any
// case, surrounding space) as empty output.
func NormalizeOutput(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "null", "undefined":
		return ""
	}
	return s
}

// TruncateMessage shortens msg to MaxErrorLength runes, ending truncated
// messages with "...".
func TruncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorLength-len(truncationMarker)]) + truncationMarker
}

// stringValue converts an upstream value to text. Missing values become "".
func stringValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// stringList flattens a value that may be a string or a list of strings.
func stringList(v interface{}) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if s := NormalizeOutput(x); strings.TrimSpace(s) != "" {
			return []string{s}
		}
		return nil
	case []string:
		var out []string
		for _, s := range x {
			out = append(out, stringList(s)...)
		}
		return out
	case []interface{}:
		var out []string
		for _, item := range x {
			out = append(out, stringList(item)...)
		}
		return out
	}
	return stringList(stringValue(v))
}
