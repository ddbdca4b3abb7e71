// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package phrase normalizes and validates submitted phrases: shape rules,
// dictionary membership, and semantic distance from the phrases a copy
// must differ from.
package phrase

import (
	"fmt"
	"strings"
)

// Validation failure kinds.
const (
	KindInvalidShape    = "invalid_shape"
	KindNotInDictionary = "not_in_dictionary"
	KindDuplicatePhrase = "duplicate_phrase"
)

// Wire codes.  Shape and dictionary failures share one public code.
const (
	CodeInvalidPhrase   = "invalid_phrase"
	CodeDuplicatePhrase = "duplicate_phrase"
)

// Error is a phrase rejection carrying a stable kind and a human readable
// detail.
type Error struct {
	Kind   string
	Detail string
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return e.Detail
}

// Code maps the internal kind to its public wire code.
func (e *Error) Code() string {
	if e.Kind == KindDuplicatePhrase {
		return CodeDuplicatePhrase
	}
	return CodeInvalidPhrase
}

func shapeErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidShape, Detail: fmt.Sprintf(format, args...)}
}

func duplicateErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDuplicatePhrase, Detail: fmt.Sprintf(format, args...)}
}

// Phrase shape limits.
const (
	maxTokens      = 5
	minChars       = 2
	maxChars       = 100
	minTokenLen    = 2
	maxTokenLen    = 15
	significantLen = 4
)

// functionWords are permitted regardless of token length rules and are
// exempt from dictionary membership.
var functionWords = map[string]struct{}{
	"A":   {},
	"AN":  {},
	"THE": {},
	"I":   {},
}

// Normalize trims, collapses internal whitespace, and uppercases.
func Normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// IsFunctionWord reports whether the uppercase token is a permitted
// function word.
func IsFunctionWord(token string) bool {
	_, ok := functionWords[token]
	return ok
}

// SignificantWords returns the tokens of a normalized phrase that carry
// meaning for reuse checks: non function words of at least four letters.
func SignificantWords(normalized string) []string {
	var words []string
	for _, token := range strings.Fields(normalized) {
		if IsFunctionWord(token) || len(token) < significantLen {
			continue
		}
		words = append(words, token)
	}
	return words
}

// Validator checks submitted phrases against the dictionary and the
// similarity thresholds.  Safe for concurrent use.
type Validator struct {
	dict          *Dictionary
	simThreshold  float64
	wordThreshold float64
}

// NewValidator returns a validator over the dictionary.  simThreshold is
// the cosine similarity at or above which a copy is a duplicate,
// wordThreshold the per word Ratcliff/Obershelp ratio treated as reuse.
func NewValidator(dict *Dictionary, simThreshold float64, wordThreshold float64) *Validator {
	return &Validator{
		dict:          dict,
		simThreshold:  simThreshold,
		wordThreshold: wordThreshold,
	}
}

// checkShape validates the normalized phrase against the shape rules and
// dictionary.  Returns nil on success.
func (v *Validator) checkShape(normalized string) *Error {
	if len(normalized) < minChars || len(normalized) > maxChars {
		return shapeErr("phrase must be %d to %d characters", minChars, maxChars)
	}
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		if (c < 'A' || c > 'Z') && c != ' ' {
			return shapeErr("phrase may only contain letters and spaces")
		}
	}
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 || len(tokens) > maxTokens {
		return shapeErr("phrase must be 1 to %d words", maxTokens)
	}
	for _, token := range tokens {
		if IsFunctionWord(token) {
			continue
		}
		if len(token) < minTokenLen || len(token) > maxTokenLen {
			return shapeErr("word %q must be %d to %d letters", token,
				minTokenLen, maxTokenLen)
		}
		if !v.dict.Contains(token) {
			return &Error{
				Kind:   KindNotInDictionary,
				Detail: fmt.Sprintf("word %q is not in the dictionary", token),
			}
		}
	}
	return nil
}

// checkWordReuse rejects the candidate when any of its significant words
// equals or nearly equals a significant word of the reference text.
func (v *Validator) checkWordReuse(normalized string, reference string) *Error {
	refWords := SignificantWords(Normalize(reference))
	for _, word := range SignificantWords(normalized) {
		for _, ref := range refWords {
			if word == ref {
				return duplicateErr("word %q is already used", word)
			}
			if WordRatio(word, ref) >= v.wordThreshold {
				return duplicateErr("word %q is too close to %q", word, ref)
			}
		}
	}
	return nil
}

// ValidateOriginal validates a prompt round submission.  The phrase must
// pass the shape rules and must not reuse significant words of the prompt
// text.  Returns the normalized phrase.
func (v *Validator) ValidateOriginal(raw string, promptText string) (string, *Error) {
	normalized := Normalize(raw)
	if err := v.checkShape(normalized); err != nil {
		return "", err
	}
	if err := v.checkWordReuse(normalized, promptText); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateCopy validates a copy round submission.  Beyond the original
// rules the phrase must differ from every prior phrase of the set, reuse
// none of their significant words, and stay below the similarity
// threshold against each of them.  priorPhrases holds the original phrase
// and, for the second copy, the first copy.
func (v *Validator) ValidateCopy(raw string, promptText string, priorPhrases ...string) (string, *Error) {
	normalized := Normalize(raw)
	if err := v.checkShape(normalized); err != nil {
		return "", err
	}
	if err := v.checkWordReuse(normalized, promptText); err != nil {
		return "", err
	}
	for _, prior := range priorPhrases {
		prior = Normalize(prior)
		if normalized == prior {
			return "", duplicateErr("phrase matches an existing phrase")
		}
		if err := v.checkWordReuse(normalized, prior); err != nil {
			return "", err
		}
		if sim := Similarity(normalized, prior); sim >= v.simThreshold {
			return "", duplicateErr("phrase is too similar to an existing phrase")
		}
	}
	return normalized, nil
}
