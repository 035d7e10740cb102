package resolver

import "strings"

type token struct {
	text      string // placeholder including delimiters
	reference string // enclosed key, verbatim
}

// scan returns the non-overlapping placeholders of value from left to right.
// The first close delimiter after an open delimiter ends a token, an open
// delimiter without a close yields nothing, and a token never spans a line
// break.
func scan(value, open, close string) []token {
	var tokens []token
	for i := 0; i < len(value); {
		start := strings.Index(value[i:], open)
		if start < 0 {
			break
		}
		start += i
		inner := start + len(open)

		end := strings.Index(value[inner:], close)
		if end < 0 {
			break
		}
		end += inner

		reference := value[inner:end]
		if strings.Contains(reference, "\n") {
			i = start + 1
			continue
		}

		tokens = append(tokens, token{
			text:      value[start : end+len(close)],
			reference: reference,
		})
		i = end + len(close)
	}
	return tokens
}
