// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gameapi

// CreatePlayerResponse is returned by POST /player.  The api key is only
// ever shown here and by RotateKeyResponse.
type CreatePlayerResponse struct {
	PlayerId int64  `json:"player_id"`
	Username string `json:"username"`
	ApiKey   string `json:"api_key"`
	Balance  int64  `json:"balance"`
	Message  string `json:"message"`
}

// RotateKeyResponse is returned by POST /player/rotate-key.
type RotateKeyResponse struct {
	ApiKey  string `json:"api_key"`
	Message string `json:"message"`
}

// LegacyLoginResponse is returned by POST /player/login.
type LegacyLoginResponse struct {
	PlayerId int64  `json:"player_id"`
	Username string `json:"username"`
	ApiKey   string `json:"api_key"`
}

// TokenResponse is returned by POST /auth/login and POST /auth/refresh.
// TokenType is always "bearer".
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	PlayerId     int64  `json:"player_id"`
	Username     string `json:"username"`
}

// BalanceResponse is returned by GET /player/balance.
type BalanceResponse struct {
	PlayerId            int64  `json:"player_id"`
	Username            string `json:"username"`
	Balance             int64  `json:"balance"`
	DailyBonusAvailable bool   `json:"daily_bonus_available"`
	DailyBonusAmount    int64  `json:"daily_bonus_amount"`
	OutstandingPrompts  int64  `json:"outstanding_prompts"`
}

// DailyBonusResponse is returned by POST /player/daily-bonus.
type DailyBonusResponse struct {
	Success    bool  `json:"success"`
	Amount     int64 `json:"amount"`
	NewBalance int64 `json:"new_balance"`
}

// AvailabilityResponse is returned by GET /rounds/available.  CopyCost
// already reflects any queue depth discount.
type AvailabilityResponse struct {
	CanPrompt          bool   `json:"can_prompt"`
	CanCopy            bool   `json:"can_copy"`
	CanVote            bool   `json:"can_vote"`
	PromptsWaiting     int64  `json:"prompts_waiting"`
	PhrasesetsWaiting  int64  `json:"phrasesets_waiting"`
	CopyDiscountActive bool   `json:"copy_discount_active"`
	CopyCost           int64  `json:"copy_cost"`
	CurrentRoundId     *int64 `json:"current_round_id"`
}

// PromptRoundResponse is returned by POST /rounds/prompt.
type PromptRoundResponse struct {
	RoundId    int64  `json:"round_id"`
	PromptText string `json:"prompt_text"`
	Cost       int64  `json:"cost"`
	ExpiresAt  int64  `json:"expires_at"`
}

// CopyRoundResponse is returned by POST /rounds/copy.
type CopyRoundResponse struct {
	RoundId        int64  `json:"round_id"`
	OriginalPhrase string `json:"original_phrase"`
	Cost           int64  `json:"cost"`
	DiscountActive bool   `json:"discount_active"`
	ExpiresAt      int64  `json:"expires_at"`
}

// VoteRoundResponse is returned by POST /rounds/vote.  Phrases carry the
// per voter shuffle order persisted on the round.
type VoteRoundResponse struct {
	RoundId     int64    `json:"round_id"`
	PhrasesetId int64    `json:"phraseset_id"`
	PromptText  string   `json:"prompt_text"`
	Phrases     []string `json:"phrases"`
	ExpiresAt   int64    `json:"expires_at"`
}

// SubmitPhraseResponse is returned by POST /rounds/:id/submit.
type SubmitPhraseResponse struct {
	Success bool   `json:"success"`
	Phrase  string `json:"phrase"`
}

// RoundDetailsResponse is returned by GET /rounds/:id.  PromptText is set
// on prompt rounds, OriginalPhrase on copy rounds.
type RoundDetailsResponse struct {
	RoundId         int64  `json:"round_id"`
	RoundType       string `json:"round_type"`
	Status          string `json:"status"`
	ExpiresAt       int64  `json:"expires_at"`
	PromptText      string `json:"prompt_text,omitempty"`
	OriginalPhrase  string `json:"original_phrase,omitempty"`
	SubmittedPhrase string `json:"submitted_phrase,omitempty"`
	Cost            int64  `json:"cost"`
}

// RoundState carries the role specific fields of an active round.
type RoundState struct {
	PromptText     string   `json:"prompt_text,omitempty"`
	OriginalPhrase string   `json:"original_phrase,omitempty"`
	PhrasesetId    int64    `json:"phraseset_id,omitempty"`
	Phrases        []string `json:"phrases,omitempty"`
	Cost           int64    `json:"cost,omitempty"`
	DiscountActive bool     `json:"discount_active,omitempty"`
}

// CurrentRoundResponse is returned by GET /rounds/current.  All fields are
// null when the player has no active round.
type CurrentRoundResponse struct {
	RoundId   *int64      `json:"round_id"`
	RoundType *string     `json:"round_type"`
	ExpiresAt *int64      `json:"expires_at"`
	State     *RoundState `json:"state"`
}

// VoteResponse is returned by POST /phrasesets/:id/vote.
type VoteResponse struct {
	Correct        bool   `json:"correct"`
	Payout         int64  `json:"payout"`
	OriginalPhrase string `json:"original_phrase"`
	YourChoice     string `json:"your_choice"`
}

// Contributor is one row of PhrasesetDetailsResponse.Contributors.  Phrase
// is withheld until the phraseset finalizes unless the contributor is the
// requesting player.
type Contributor struct {
	Role     string `json:"role"`
	Username string `json:"username"`
	IsYou    bool   `json:"is_you"`
	Phrase   string `json:"phrase,omitempty"`
}

// VoteDetail is one row of PhrasesetDetailsResponse.Votes, only populated
// after finalization.
type VoteDetail struct {
	Username    string `json:"username"`
	VotedPhrase string `json:"voted_phrase"`
	Correct     bool   `json:"correct"`
	VotedAt     int64  `json:"voted_at"`
}

// ActivityEvent is one row of the phraseset timeline.
type ActivityEvent struct {
	Event string `json:"event"`
	At    int64  `json:"at"`
}

// PayoutLine is the per contributor outcome inside PhrasesetResults.
type PayoutLine struct {
	PlayerId int64  `json:"player_id"`
	Username string `json:"username"`
	Phrase   string `json:"phrase"`
	Votes    int64  `json:"votes"`
	Points   int64  `json:"points"`
	Payout   int64  `json:"payout"`
}

// PhrasesetResults is the scoring breakdown of a finalized phraseset.
// Payouts is keyed by role: original, copy1, copy2.
type PhrasesetResults struct {
	TotalPool int64                 `json:"total_pool"`
	PrizePool int64                 `json:"prize_pool"`
	Payouts   map[string]PayoutLine `json:"payouts"`
	Rake      int64                 `json:"rake"`
}

// PhrasesetDetailsResponse is returned by GET /phrasesets/:id.  YourPayout
// and PayoutClaimed are meaningful once the phraseset is finalized.
type PhrasesetDetailsResponse struct {
	PhrasesetId   int64             `json:"phraseset_id"`
	PromptText    string            `json:"prompt_text"`
	Status        string            `json:"status"`
	VoteCount     int64             `json:"vote_count"`
	YourRole      string            `json:"your_role"`
	YourPayout    int64             `json:"your_payout"`
	PayoutClaimed bool              `json:"payout_claimed"`
	Contributors  []Contributor     `json:"contributors"`
	Votes         []VoteDetail      `json:"votes,omitempty"`
	Activity      []ActivityEvent   `json:"activity"`
	Results       *PhrasesetResults `json:"results,omitempty"`
}

// ResultsResponse is returned by GET /phrasesets/:id/results.
type ResultsResponse struct {
	PhrasesetId   int64             `json:"phraseset_id"`
	PromptText    string            `json:"prompt_text"`
	Status        string            `json:"status"`
	Results       *PhrasesetResults `json:"results"`
	YourRole      string            `json:"your_role"`
	YourPhrase    string            `json:"your_phrase"`
	YourPayout    int64             `json:"your_payout"`
	PayoutClaimed bool              `json:"payout_claimed"`
}

// ClaimResponse is returned by POST /phrasesets/:id/claim.  Claiming twice
// succeeds with AlreadyClaimed set and the originally recorded amount.
type ClaimResponse struct {
	Success        bool  `json:"success"`
	Amount         int64 `json:"amount"`
	AlreadyClaimed bool  `json:"already_claimed"`
	NewBalance     int64 `json:"new_balance"`
}

// PendingResult is one row of PendingResultsResponse.
type PendingResult struct {
	PhrasesetId  int64  `json:"phraseset_id"`
	PromptText   string `json:"prompt_text"`
	YourRole     string `json:"your_role"`
	PayoutAmount int64  `json:"payout_amount"`
	FinalizedAt  int64  `json:"finalized_at"`
}

// PendingResultsResponse is returned by GET /player/pending-results.  It
// lists finalized phrasesets the player has not viewed yet.
type PendingResultsResponse struct {
	Results []PendingResult `json:"results"`
}

// UnclaimedResultsResponse is returned by GET /player/unclaimed-results.
type UnclaimedResultsResponse struct {
	Results        []PendingResult `json:"results"`
	TotalUnclaimed int64           `json:"total_unclaimed"`
}

// PhrasesetListItem is one row of PlayerPhrasesetsResponse.
type PhrasesetListItem struct {
	PhrasesetId   int64  `json:"phraseset_id"`
	PromptText    string `json:"prompt_text"`
	Status        string `json:"status"`
	YourRole      string `json:"your_role"`
	VoteCount     int64  `json:"vote_count"`
	CreatedAt     int64  `json:"created_at"`
	FinalizedAt   int64  `json:"finalized_at,omitempty"`
	YourPayout    int64  `json:"your_payout"`
	PayoutClaimed bool   `json:"payout_claimed"`
}

// PlayerPhrasesetsResponse is returned by GET /player/phrasesets.
type PlayerPhrasesetsResponse struct {
	Phrasesets []PhrasesetListItem `json:"phrasesets"`
	Total      int64               `json:"total"`
	Limit      int64               `json:"limit"`
	Offset     int64               `json:"offset"`
	HasMore    bool                `json:"has_more"`
}

// RoleCounts splits phraseset counts by the player's contribution role.
type RoleCounts struct {
	Prompts int64 `json:"prompts"`
	Copies  int64 `json:"copies"`
}

// PhrasesetSummaryResponse is returned by GET /player/phrasesets/summary.
type PhrasesetSummaryResponse struct {
	InProgress     RoleCounts `json:"in_progress"`
	Finalized      RoleCounts `json:"finalized"`
	UnclaimedCount int64      `json:"unclaimed_count"`
	UnclaimedTotal int64      `json:"unclaimed_total"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Database        string `json:"database"`
	Redis           string `json:"redis"`
	DictionaryWords int64  `json:"dictionary_words"`
	Version         string `json:"version"`
}

// ErrorResponse is the body of every non-2xx response.  Detail is one of
// the stable machine readable error codes clients branch on; Message is
// the human readable explanation.  RoundId is only set on already_in_round
// errors.
type ErrorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message,omitempty"`
	RoundId int64  `json:"round_id,omitempty"`
}
