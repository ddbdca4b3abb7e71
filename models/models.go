// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package models defines the persistent types of the quipflip backend and
// the gorp mapping used to store them in MySQL.
package models

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-gorp/gorp"

	// Registers the mysql driver with database/sql.
	_ "github.com/go-sql-driver/mysql"
)

// GetDbMap opens the MySQL database described by dsn, registers every
// persistent type, and creates any missing tables and indexes.  The DSN is
// in go-sql-driver form, e.g. "quipflip:pass@tcp(localhost:3306)/quipflip".
func GetDbMap(dsn string) (*gorp.DbMap, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?charset=utf8mb4"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %v", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %v", err)
	}

	dbMap := &gorp.DbMap{Db: db, Dialect: gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"}}

	dbMap.AddTableWithName(Player{}, "Players").SetKeys(true, "Id")
	dbMap.AddTableWithName(Round{}, "Rounds").SetKeys(true, "Id")
	dbMap.AddTableWithName(Phraseset{}, "Phrasesets").SetKeys(true, "Id")
	dbMap.AddTableWithName(Vote{}, "Votes").SetKeys(true, "Id")
	dbMap.AddTableWithName(Transaction{}, "Transactions").SetKeys(true, "Id")
	dbMap.AddTableWithName(DailyBonus{}, "DailyBonus").SetKeys(true, "Id")
	dbMap.AddTableWithName(ResultView{}, "ResultView").SetKeys(true, "Id")
	dbMap.AddTableWithName(Prompt{}, "Prompts").SetKeys(true, "Id")
	dbMap.AddTableWithName(AbandonedAssignment{}, "AbandonedAssignment").SetKeys(true, "Id")
	dbMap.AddTableWithName(Session{}, "Session").SetKeys(true, "Id")

	if err = dbMap.CreateTablesIfNotExists(); err != nil {
		return nil, fmt.Errorf("create tables: %v", err)
	}

	indexes := []struct {
		table      string
		name       string
		definition string
	}{
		{"Players", "UsernameCanonical", "UNIQUE INDEX UsernameCanonical (UsernameCanonical)"},
		{"Players", "ApiKey", "UNIQUE INDEX ApiKey (ApiKey)"},
		{"Rounds", "PlayerStatus", "INDEX PlayerStatus (PlayerId, Status)"},
		{"Rounds", "StatusExpires", "INDEX StatusExpires (Status, ExpiresAt)"},
		{"Rounds", "PromptQueue", "INDEX PromptQueue (Role, Status, QueuedAt)"},
		{"Phrasesets", "StatusFifthVote", "INDEX StatusFifthVote (Status, FifthVoteAt)"},
		{"Phrasesets", "StatusThirdVote", "INDEX StatusThirdVote (Status, ThirdVoteAt)"},
		{"Votes", "PhrasesetVoter", "UNIQUE INDEX PhrasesetVoter (PhrasesetId, VoterId)"},
		{"Transactions", "PlayerCreated", "INDEX PlayerCreated (PlayerId, CreatedAt)"},
		{"DailyBonus", "PlayerDate", "UNIQUE INDEX PlayerDate (PlayerId, Date)"},
		{"ResultView", "PhrasesetPlayer", "UNIQUE INDEX PhrasesetPlayer (PhrasesetId, PlayerId)"},
		{"Session", "TokenHash", "UNIQUE INDEX TokenHash (TokenHash)"},
		{"AbandonedAssignment", "PlayerPrompt", "INDEX PlayerPrompt (PlayerId, PromptRoundId)"},
	}
	for _, idx := range indexes {
		if err = addIndex(dbMap, idx.table, idx.name, idx.definition); err != nil {
			return nil, err
		}
	}

	return dbMap, nil
}

// addIndex adds an index to an existing table if it is not already present.
func addIndex(dbMap *gorp.DbMap, tableName string, indexName string, indexDefinition string) error {
	s, err := dbMap.SelectStr("SELECT index_name FROM information_schema.statistics "+
		"WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ? LIMIT 1",
		tableName, indexName)
	if err != nil {
		return fmt.Errorf("checking whether index %s.%s exists: %v", tableName,
			indexName, err)
	}
	if s == "" {
		log.Infof("Adding index %s to table %s", indexName, tableName)
		_, err = dbMap.Exec(fmt.Sprint("ALTER TABLE ", tableName, " ADD ", indexDefinition))
		if err != nil {
			return fmt.Errorf("adding index %s.%s: %v", tableName, indexName, err)
		}
	}
	return nil
}
