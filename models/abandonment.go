package models

// AbandonedAssignment records that a player let a copy round on the prompt
// expire.  The copy queue skips the prompt for that player until the
// cooldown has elapsed.
type AbandonedAssignment struct {
	Id            int64 `db:"AbandonedAssignmentId"`
	PromptRoundId int64
	PlayerId      int64
	CreatedAt     int64
}
