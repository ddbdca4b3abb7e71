package phrase

import (
	"strings"
	"testing"
)

func testDictionary(words ...string) *Dictionary {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToUpper(w)] = struct{}{}
	}
	return &Dictionary{words: set}
}

func testValidator() *Validator {
	dict := testDictionary(
		"BANANA", "COLD", "FEET", "FROZEN", "SOCKS", "TOES", "ICY", "TOE",
		"WINTER", "WINTERY", "NAP", "CAT", "FISH", "WARM", "HANDS",
	)
	return NewValidator(dict, 0.85, 0.8)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		testName string
		raw      string
		want     string
	}{
		{"already normal", "COLD FEET", "COLD FEET"},
		{"lowercase", "cold feet", "COLD FEET"},
		{"surrounding space", "  cold feet ", "COLD FEET"},
		{"internal runs", "cold \t  feet", "COLD FEET"},
		{"empty", "", ""},
		{"only space", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignificantWords(t *testing.T) {
	tests := []struct {
		testName string
		phrase   string
		want     []string
	}{
		{"function and short words drop", "THE ICY NAP", nil},
		{"long words kept", "COLD FEET", []string{"COLD", "FEET"}},
		{"mixed", "A FROZEN TOE", []string{"FROZEN"}},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got := SignificantWords(tt.phrase)
			if len(got) != len(tt.want) {
				t.Fatalf("SignificantWords() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SignificantWords() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestValidateOriginalShape(t *testing.T) {
	v := testValidator()
	tests := []struct {
		testName string
		raw      string
		wantKind string
	}{
		{"valid single word", "banana", ""},
		{"valid two words", "cold feet", ""},
		{"valid with function word", "the banana", ""},
		{"empty", "", KindInvalidShape},
		{"only whitespace", "   ", KindInvalidShape},
		{"six words", "cold cold cold cold cold feet", KindInvalidShape},
		{"digit", "cloud9", KindInvalidShape},
		{"punctuation", "cold-feet", KindInvalidShape},
		{"one letter word", "banana z", KindInvalidShape},
		{"word too long", "supercalifragilis", KindInvalidShape},
		{"unknown word", "banana zzyzx", KindNotInDictionary},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			_, err := v.ValidateOriginal(tt.raw, "WHAT IS IN YOUR FRIDGE")
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("ValidateOriginal() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateOriginal() error = nil, want kind %s", tt.wantKind)
			}
			if err.Kind != tt.wantKind {
				t.Errorf("ValidateOriginal() kind = %s, want %s", err.Kind, tt.wantKind)
			}
			if err.Code() != CodeInvalidPhrase {
				t.Errorf("Code() = %s, want %s", err.Code(), CodeInvalidPhrase)
			}
		})
	}
}

func TestValidateOriginalNormalizes(t *testing.T) {
	v := testValidator()
	got, err := v.ValidateOriginal("  cold   feet ", "WHAT IS IN YOUR FRIDGE")
	if err != nil {
		t.Fatalf("ValidateOriginal() error = %v", err)
	}
	if got != "COLD FEET" {
		t.Errorf("ValidateOriginal() = %q, want %q", got, "COLD FEET")
	}
}

func TestValidateOriginalPromptWordReuse(t *testing.T) {
	v := testValidator()

	// Exact significant word of the prompt.
	_, err := v.ValidateOriginal("winter nap", "FAVORITE WINTER ACTIVITY")
	if err == nil || err.Kind != KindDuplicatePhrase {
		t.Fatalf("reused prompt word: error = %v, want duplicate kind", err)
	}
	if err.Code() != CodeDuplicatePhrase {
		t.Errorf("Code() = %s, want %s", err.Code(), CodeDuplicatePhrase)
	}

	// Near identical significant word: WINTERY vs WINTER.
	_, err = v.ValidateOriginal("wintery cat", "FAVORITE WINTER ACTIVITY")
	if err == nil || err.Kind != KindDuplicatePhrase {
		t.Fatalf("near identical prompt word: error = %v, want duplicate kind", err)
	}

	// Words under four letters are not significant.
	if _, err := v.ValidateOriginal("cat nap", "THE CAT QUESTION"); err != nil {
		t.Errorf("short shared word: error = %v, want nil", err)
	}
}

func TestValidateCopy(t *testing.T) {
	v := testValidator()
	prompt := "WHAT MAKES YOU SHIVER"

	// A fine copy.
	got, err := v.ValidateCopy("frozen socks", prompt, "COLD FEET")
	if err != nil {
		t.Fatalf("ValidateCopy() error = %v", err)
	}
	if got != "FROZEN SOCKS" {
		t.Errorf("ValidateCopy() = %q, want %q", got, "FROZEN SOCKS")
	}

	// Equality with the original after normalization.
	_, err = v.ValidateCopy(" cold   FEET ", prompt, "COLD FEET")
	if err == nil || err.Kind != KindDuplicatePhrase {
		t.Fatalf("equal phrase: error = %v, want duplicate kind", err)
	}

	// Reuse of a significant word of the original.
	_, err = v.ValidateCopy("warm feet", prompt, "COLD FEET")
	if err == nil || err.Kind != KindDuplicatePhrase {
		t.Fatalf("reused word: error = %v, want duplicate kind", err)
	}

	// Second copy is checked against both prior phrases.
	_, err = v.ValidateCopy("frozen cat", prompt, "COLD FEET", "FROZEN SOCKS")
	if err == nil || err.Kind != KindDuplicatePhrase {
		t.Fatalf("reused first copy word: error = %v, want duplicate kind", err)
	}
}

func TestValidateCopySimilarity(t *testing.T) {
	// Low threshold exercises the similarity branch with phrases whose
	// significant word check cannot fire (all words under four letters).
	dict := testDictionary("ICY", "TOE", "TOES")
	v := NewValidator(dict, 0.5, 0.8)
	_, err := v.ValidateCopy("icy toe", "WHAT MAKES YOU SHIVER", "ICY TOES")
	if err == nil || err.Kind != KindDuplicatePhrase {
		t.Fatalf("similar phrase: error = %v, want duplicate kind", err)
	}

	// The same pair passes at the production threshold.
	v = NewValidator(dict, 0.85, 0.8)
	if _, err := v.ValidateCopy("icy toe", "WHAT MAKES YOU SHIVER", "ICY TOES"); err != nil {
		t.Errorf("distinct enough phrase: error = %v, want nil", err)
	}
}
