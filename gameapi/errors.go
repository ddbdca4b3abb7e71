// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gameapi

// Machine readable error codes carried in ErrorResponse.Detail.  Clients
// branch on these values, so they are part of the wire contract and must
// never be renamed.
const (
	// Auth.
	CodeInvalidCredentials = "invalid_credentials"
	CodeTokenExpired       = "token_expired"
	CodeTokenRevoked       = "token_revoked"
	CodeUsernameNotFound   = "username_not_found"

	// Invariant violations.
	CodeAlreadyInRound        = "already_in_round"
	CodeMaxOutstandingPrompts = "max_outstanding_prompts"
	CodeInsufficientBalance   = "insufficient_balance"
	CodeAlreadyClaimedToday   = "already_claimed_today"

	// Availability.
	CodeNoPromptsAvailable = "no_prompts_available"
	// CodeNoPhrasesetsAvailable predates the phraseset rename and keeps
	// the wordset wording deployed clients match on.
	CodeNoPhrasesetsAvailable = "no_wordsets_available"

	// Phrase validation.
	CodeInvalidPhrase   = "invalid_phrase"
	CodeDuplicatePhrase = "duplicate_phrase"

	// Round and phraseset state.
	CodeExpired         = "expired"
	CodeAlreadyVoted    = "already_voted"
	CodeNotAContributor = "not_a_contributor"
	CodeNotFound        = "not_found"

	// Rate limiting and infrastructure.
	CodeRateLimited           = "rate_limited"
	CodeDependencyUnavailable = "dependency_unavailable"
)
