package skate

import "strings"

// Word is the full letter sequence; holding all of it loses the match.
const Word = "SKATE"

// Letters is a player's accumulated prefix of Word.
type Letters string

// Len returns the number of letters held.
func (l Letters) Len() int { return len(l) }

// Valid reports whether l is a prefix of Word.
func (l Letters) Valid() bool { return strings.HasPrefix(Word, string(l)) }

// Complete reports whether the holder has lost.
func (l Letters) Complete() bool { return string(l) == Word }

// Add returns l with the next letter appended. A full word is returned as is.
func (l Letters) Add() Letters {
	if len(l) >= len(Word) {
		return Letters(Word)
	}
	return Letters(Word[:len(l)+1])
}

// Drop returns l with its last letter removed.
func (l Letters) Drop() Letters {
	if len(l) == 0 {
		return l
	}
	return Letters(Word[:len(l)-1])
}

// ParseLetters validates a stored value.
func ParseLetters(s string) (Letters, error) {
	l := Letters(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", Errorf(CodeInvalidState, "letters %q are not a prefix of %s", s, Word)
	}
	return l, nil
}
