package rules

import "strings"

// DefaultLexicon is the fixed set of I/O-suggestive verbs that mark a sync
// method name as one that should be asynchronous. Matching is
// case-insensitive, whole-word prefix or exact (word boundary = underscore).
func DefaultLexicon() []string {
	return []string{
		"read", "write", "fetch", "load", "save", "send", "receive",
		"get", "set", "update", "delete", "create", "execute",
		"publish", "subscribe", "register", "unregister",
		"open", "close", "connect", "disconnect", "query",
		"handle", "process", "can_handle", "invoke", "call",
	}
}

// lexicon answers whole-word prefix queries over a verb set.
type lexicon struct {
	verbs []string
}

func newLexicon(verbs []string) *lexicon {
	lowered := make([]string, 0, len(verbs))
	for _, v := range verbs {
		lowered = append(lowered, strings.ToLower(v))
	}
	return &lexicon{verbs: lowered}
}

// Matches reports whether name equals a verb or starts with `verb_`.
// "read_text" and "can_handle" match; "reader" does not.
func (l *lexicon) Matches(name string) bool {
	name = strings.ToLower(name)
	for _, v := range l.verbs {
		if name == v || strings.HasPrefix(name, v+"_") {
			return true
		}
	}
	return false
}
