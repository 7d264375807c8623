// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package validator

import (
	"fmt"
	"regexp"
)

// Patterns is a compiled exclusion list.
type Patterns []*regexp.Regexp

// CompilePatterns compiles regular expressions from a validator config.
func CompilePatterns(exprs []string) (Patterns, error) {
	out := make(Patterns, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", e, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Match reports whether any pattern matches s.
func (p Patterns) Match(s string) bool {
	for _, re := range p {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
