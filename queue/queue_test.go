package queue

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/models"
)

var roundCols = []string{"RoundId", "PlayerId", "Role", "Status", "Cost",
	"CreatedAt", "ExpiresAt", "SubmittedPhrase", "SubmittedAt", "PromptId",
	"PromptText", "CopyCount", "QueuedAt", "PromptRoundId", "OriginalPhrase",
	"SystemContribution", "DiscountApplied", "PhrasesetId", "PhraseOrder"}

var phrasesetCols = []string{"PhrasesetId", "PromptRoundId", "CopyRound1Id",
	"CopyRound2Id", "PrompterId", "Copy1PlayerId", "Copy2PlayerId", "PromptText",
	"OriginalPhrase", "CopyPhrase1", "CopyPhrase2", "Status", "VoteCount",
	"ThirdVoteAt", "FifthVoteAt", "ClosesAt", "TotalPool", "SystemContribution",
	"CreatedAt", "FinalizedAt"}

// setup mock db and store without redis
func makeStore() (sqlmock.Sqlmock, *sql.DB, *Store) {
	db, mock, err := sqlmock.New()
	if err != nil {
		panic(err)
	}
	dbMap := &gorp.DbMap{
		Db:      db,
		Dialect: gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"},
	}
	dbMap.AddTableWithName(models.Round{}, "Rounds").SetKeys(true, "Id")
	dbMap.AddTableWithName(models.Phraseset{}, "Phrasesets").SetKeys(true, "Id")
	store := NewStore(dbMap, nil, 5, 24*60*60)
	return mock, db, store
}

func promptRoundRow(id int64, playerID int64, queuedAt int64) []driverArg {
	return []driverArg{id, playerID, models.RolePrompt, models.RoundStatusSubmitted,
		int64(100), queuedAt, queuedAt + 180, "COLD FEET", queuedAt, int64(1),
		"WHAT MAKES YOU SHIVER", int64(0), queuedAt, int64(0), "", int64(0),
		int64(0), int64(0), ""}
}

type driverArg = driver.Value

func TestNextPromptFor(t *testing.T) {
	mock, db, store := makeStore()
	defer db.Close()

	now := time.Now().Unix()
	rows := sqlmock.NewRows(roundCols).AddRow(promptRoundRow(3, 8, now-60)...)
	mock.ExpectQuery(`^SELECT Rounds.\* FROM Rounds WHERE (.+) ORDER BY Rounds.QueuedAt, Rounds.RoundId LIMIT 1$`).
		WithArgs(int64(5), now, int64(9), int64(9), now-24*60*60).
		WillReturnRows(rows)

	round, err := store.NextPromptFor(store.dbMap, 9, now)
	if err != nil {
		t.Fatalf("NextPromptFor() error = %v", err)
	}
	if round == nil || round.Id != 3 {
		t.Fatalf("NextPromptFor() = %+v, want round 3", round)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestNextPromptForEmptyQueue(t *testing.T) {
	mock, db, store := makeStore()
	defer db.Close()

	now := time.Now().Unix()
	mock.ExpectQuery(`^SELECT Rounds.\* FROM Rounds WHERE (.+)$`).
		WillReturnRows(sqlmock.NewRows(roundCols))

	round, err := store.NextPromptFor(store.dbMap, 9, now)
	if err != nil {
		t.Fatalf("NextPromptFor() error = %v", err)
	}
	if round != nil {
		t.Fatalf("NextPromptFor() = %+v, want nil on empty queue", round)
	}
}

func TestDepthWithoutRedis(t *testing.T) {
	mock, db, store := makeStore()
	defer db.Close()

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM Rounds WHERE (.+)$`).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(12))

	depth, err := store.Depth(context.Background(), time.Now().Unix())
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 12 {
		t.Errorf("Depth() = %d, want 12", depth)
	}
}

func TestNextPhrasesetForTierFallthrough(t *testing.T) {
	mock, db, store := makeStore()
	defer db.Close()

	now := time.Now().Unix()

	// Nothing at five or more votes, nothing at three or four, one young
	// set remains.
	mock.ExpectQuery(`^SELECT Phrasesets.\* FROM Phrasesets WHERE (.+)VoteCount >= 5(.+)$`).
		WillReturnRows(sqlmock.NewRows(phrasesetCols))
	mock.ExpectQuery(`^SELECT Phrasesets.\* FROM Phrasesets WHERE (.+)VoteCount >= 3(.+)$`).
		WillReturnRows(sqlmock.NewRows(phrasesetCols))
	mock.ExpectQuery(`^SELECT Phrasesets.\* FROM Phrasesets WHERE (.+)VoteCount < 3 ORDER BY RAND\(\) LIMIT 1$`).
		WillReturnRows(sqlmock.NewRows(phrasesetCols).AddRow(
			int64(4), int64(1), int64(2), int64(3), int64(11), int64(22), int64(33),
			"WHAT MAKES YOU SHIVER", "COLD FEET", "ICY TOES", "FROZEN SOCKS",
			models.PhrasesetStatusOpen, int64(1), int64(0), int64(0), int64(0),
			int64(300), int64(0), now, int64(0)))

	ps, err := store.NextPhrasesetFor(store.dbMap, 9, now)
	if err != nil {
		t.Fatalf("NextPhrasesetFor() error = %v", err)
	}
	if ps == nil || ps.Id != 4 {
		t.Fatalf("NextPhrasesetFor() = %+v, want phraseset 4", ps)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}
