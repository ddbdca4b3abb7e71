package ledger

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-gorp/gorp"

	"github.com/quipflip/quipflip/models"
)

var playerCols = []string{"PlayerId", "ApiKey", "Username", "UsernameCanonical",
	"Email", "PasswordHash", "Balance", "LastLoginDate", "ActiveRoundId", "CreatedAt"}

// setup db, mock db, and dbmap
func makeDbMap() (sqlmock.Sqlmock, *sql.DB, *gorp.DbMap) {
	db, mock, err := sqlmock.New()
	if err != nil {
		panic(err)
	}
	dbMap := &gorp.DbMap{
		Db:      db,
		Dialect: gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"},
	}
	dbMap.AddTableWithName(models.Player{}, "Players").SetKeys(true, "Id")
	dbMap.AddTableWithName(models.Transaction{}, "Transactions").SetKeys(true, "Id")
	return mock, db, dbMap
}

func playerRow(id int64, balance int64) *sqlmock.Rows {
	return sqlmock.NewRows(playerCols).
		AddRow(id, "key", "WittyFox", "wittyfox", "", []byte{}, balance, "", 0, int64(0))
}

func expectPlayerForUpdate(mock sqlmock.Sqlmock, id int64, rows *sqlmock.Rows) {
	mock.ExpectQuery(`^SELECT (.*) FROM Players WHERE PlayerId = (.+) FOR UPDATE$`).
		WithArgs(id).
		WillReturnRows(rows)
}

func expectTransactionInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^insert into `Transactions` \\(`TransactionId`,`PlayerId`,"+
		"`Amount`,`Kind`,`ReferenceId`,`BalanceAfter`,`CreatedAt`\\) values "+
		"\\(null,(.+),(.+),(.+),(.+),(.+),(.+)\\);$").
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectBalanceUpdate(mock sqlmock.Sqlmock, balance int64, id int64) {
	mock.ExpectExec("^UPDATE Players SET Balance = (.+) WHERE PlayerId = (.+)$").
		WithArgs(balance, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestCredit(t *testing.T) {
	mock, db, dbMap := makeDbMap()
	defer db.Close()

	now := time.Now().Unix()
	expectPlayerForUpdate(mock, 7, playerRow(7, 900))
	expectTransactionInsert(mock)
	expectBalanceUpdate(mock, 1000, 7)

	balance, err := Credit(dbMap, 7, 100, models.TxKindDailyBonus,
		models.BonusRef("2020-06-01"), now)
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if balance != 1000 {
		t.Errorf("Credit() balance = %d, want 1000", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestDebit(t *testing.T) {
	mock, db, dbMap := makeDbMap()
	defer db.Close()

	now := time.Now().Unix()
	expectPlayerForUpdate(mock, 7, playerRow(7, 1000))
	expectTransactionInsert(mock)
	expectBalanceUpdate(mock, 900, 7)

	balance, err := Debit(dbMap, 7, 100, models.TxKindPromptEntry,
		models.RoundRef(3), now)
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if balance != 900 {
		t.Errorf("Debit() balance = %d, want 900", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestDebitToZero(t *testing.T) {
	mock, db, dbMap := makeDbMap()
	defer db.Close()

	expectPlayerForUpdate(mock, 7, playerRow(7, 100))
	expectTransactionInsert(mock)
	expectBalanceUpdate(mock, 0, 7)

	balance, err := Debit(dbMap, 7, 100, models.TxKindCopyEntry,
		models.RoundRef(4), time.Now().Unix())
	if err != nil {
		t.Fatalf("Debit() to zero error = %v", err)
	}
	if balance != 0 {
		t.Errorf("Debit() balance = %d, want 0", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestDebitInsufficient(t *testing.T) {
	mock, db, dbMap := makeDbMap()
	defer db.Close()

	expectPlayerForUpdate(mock, 7, playerRow(7, 50))

	_, err := Debit(dbMap, 7, 100, models.TxKindPromptEntry,
		models.RoundRef(5), time.Now().Unix())
	if err != ErrInsufficientBalance {
		t.Fatalf("Debit() error = %v, want ErrInsufficientBalance", err)
	}
	// No transaction row and no balance write may happen on rejection.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}

func TestApplyHouse(t *testing.T) {
	mock, db, dbMap := makeDbMap()
	defer db.Close()

	expectTransactionInsert(mock)

	err := ApplyHouse(dbMap, 10, models.TxKindPenalty, models.RoundRef(6),
		time.Now().Unix())
	if err != nil {
		t.Fatalf("ApplyHouse() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectation error: %s", err)
	}
}
