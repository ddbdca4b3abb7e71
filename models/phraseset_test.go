package models

import (
	"testing"
)

var contributorSet = &Phraseset{
	PrompterId:     11,
	Copy1PlayerId:  22,
	Copy2PlayerId:  33,
	OriginalPhrase: "COLD FEET",
	CopyPhrase1:    "ICY TOES",
	CopyPhrase2:    "FROZEN SOCKS",
}

func TestContributorRole(t *testing.T) {
	tests := []struct {
		testName string
		playerID int64
		want     string
	}{
		{"prompter", 11, ContributorOriginal},
		{"first copier", 22, ContributorCopy1},
		{"second copier", 33, ContributorCopy2},
		{"outsider", 44, ""},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			if got := contributorSet.ContributorRole(tt.playerID); got != tt.want {
				t.Errorf("ContributorRole() = %v, want %v", got, tt.want)
			}
			if got := contributorSet.IsContributor(tt.playerID); got != (tt.want != "") {
				t.Errorf("IsContributor() = %v, want %v", got, tt.want != "")
			}
		})
	}
}

func TestPhrasesOrder(t *testing.T) {
	want := [3]string{"COLD FEET", "ICY TOES", "FROZEN SOCKS"}
	if got := contributorSet.Phrases(); got != want {
		t.Errorf("Phrases() = %v, want %v", got, want)
	}
}

func TestReferenceIds(t *testing.T) {
	tests := []struct {
		testName string
		got      string
		want     string
	}{
		{"round", RoundRef(17), "round:17"},
		{"phraseset", PhrasesetRef(5), "phraseset:5"},
		{"vote", VoteRef(901), "vote:901"},
		{"bonus", BonusRef("2020-06-01"), "bonus:2020-06-01"},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("reference id = %v, want %v", tt.got, tt.want)
			}
		})
	}
}
