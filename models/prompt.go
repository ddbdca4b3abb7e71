package models

import (
	"github.com/go-gorp/gorp"
)

// Prompt is one entry of the prompt library.  Disabled prompts are never
// assigned to new rounds but remain referenced by old ones.
type Prompt struct {
	Id         int64 `db:"PromptId"`
	Text       string
	Enabled    int64
	UsageCount int64
	CreatedAt  int64
}

// GetRandomPrompt returns a random enabled prompt.  Returns sql.ErrNoRows
// when the library is empty.
func GetRandomPrompt(db gorp.SqlExecutor) (*Prompt, error) {
	var prompt Prompt
	err := db.SelectOne(&prompt, "SELECT * FROM Prompts WHERE Enabled = 1 "+
		"ORDER BY RAND() LIMIT 1")
	if err != nil {
		return nil, err
	}
	return &prompt, nil
}

// CountPrompts returns the number of enabled prompts.
func CountPrompts(db gorp.SqlExecutor) (int64, error) {
	return db.SelectInt("SELECT COUNT(*) FROM Prompts WHERE Enabled = 1")
}

// PromptTextExists reports whether the library already contains the exact
// prompt text.
func PromptTextExists(db gorp.SqlExecutor, text string) (bool, error) {
	n, err := db.SelectInt("SELECT COUNT(*) FROM Prompts WHERE Text = ?", text)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
