package gameapi

// RegisterRequest is the optional body of POST /player.  A bodyless request
// creates a player with a generated username and no credentials.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /auth/refresh.  The token may instead
// be presented through the refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LegacyLoginRequest is the body of POST /player/login.
type LegacyLoginRequest struct {
	Username string `json:"username"`
}

// SubmitPhraseRequest is the body of POST /rounds/:id/submit.
type SubmitPhraseRequest struct {
	Phrase string `json:"phrase"`
}

// VoteRequest is the body of POST /phrasesets/:id/vote.
type VoteRequest struct {
	Phrase string `json:"phrase"`
}
