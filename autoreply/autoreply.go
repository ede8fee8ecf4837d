// Package autoreply answers guild messages that match keyword rules.
package autoreply

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"tempo/assets"
)

// ErrInvalidRule is returned by New for a rule that can never be used.
var ErrInvalidRule = errors.New("invalid auto reply rule")

const mentionPlaceholder = "{mention}"

type rule struct {
	contains  string
	pattern   *regexp.Regexp
	maxLength int
	exclude   string
	reply     string
}

func (r rule) matches(content, lower string) bool {
	if r.contains != "" && !strings.Contains(lower, r.contains) {
		return false
	}
	if r.pattern != nil && !r.pattern.MatchString(lower) {
		return false
	}
	if r.maxLength > 0 {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > r.maxLength {
			return false
		}
	}
	if r.exclude != "" && strings.Contains(content, r.exclude) {
		return false
	}
	return true
}

// Responder picks the reply for a message.
type Responder struct {
	rules []rule
}

// New compiles rules into a Responder. Every rule needs a reply and at least
// one of contains, pattern or max_length.
func New(rules []assets.AutoReply) (*Responder, error) {
	r := &Responder{rules: make([]rule, 0, len(rules))}
	for n, ar := range rules {
		if ar.Reply == "" {
			return nil, fmt.Errorf("%w: rule %d has no reply", ErrInvalidRule, n)
		}
		if ar.Contains == "" && ar.Pattern == "" && ar.MaxLength <= 0 {
			return nil, fmt.Errorf("%w: rule %d matches every message", ErrInvalidRule, n)
		}

		compiled := rule{
			contains:  strings.ToLower(ar.Contains),
			maxLength: ar.MaxLength,
			exclude:   ar.Exclude,
			reply:     ar.Reply,
		}
		if ar.Pattern != "" {
			re, err := regexp.Compile(ar.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidRule, n, err)
			}
			compiled.pattern = re
		}
		r.rules = append(r.rules, compiled)
	}
	return r, nil
}

// Reply returns the reply of the first rule matching content, with the
// author mentioned where the rule asks for it.
func (r *Responder) Reply(content, authorID string) (string, bool) {
	lower := strings.ToLower(content)
	for _, ru := range r.rules {
		if ru.matches(content, lower) {
			return strings.ReplaceAll(ru.reply, mentionPlaceholder, "<@"+authorID+">"), true
		}
	}
	return "", false
}
