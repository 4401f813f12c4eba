package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeIBAN(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"DE02100100100006820101", "DE02100100100006820101", true},
		{"de02 1001 0010 0006 8201 01", "DE02100100100006820101", true},
		{"  AT611904300234573201  ", "AT611904300234573201", true},
		{"DE0210010010", "", false},
		{"02DE100100100006820101", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := NormalizeIBAN(c.in)
		if c.ok {
			if err != nil {
				t.Errorf("NormalizeIBAN(%q): %v", c.in, err)
			} else if got != c.want {
				t.Errorf("NormalizeIBAN(%q) = %q, want %q", c.in, got, c.want)
			}
		} else if !errors.Is(err, ErrValidation) {
			t.Errorf("NormalizeIBAN(%q): expected ErrValidation, got %v", c.in, err)
		}
	}
}

func TestNewAccountMappingDeterministicID(t *testing.T) {
	accountID := uuid.New()
	a, err := NewAccountMapping("DE02100100100006820101", "Checking", accountID, "u1")
	if err != nil {
		t.Fatalf("NewAccountMapping: %v", err)
	}
	// Same pair with different spacing collides on the same id.
	b, err := NewAccountMapping("de02 1001 0010 0006 8201 01", "Checking", accountID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Error("identical (iban, account) pair must derive the same mapping id")
	}

	c, err := NewAccountMapping("DE02100100100006820101", "Checking", uuid.New(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == a.ID {
		t.Error("different account must derive a different mapping id")
	}
}

func TestMappingIDMatchesConstructor(t *testing.T) {
	accountID := uuid.New()
	mapping, err := NewAccountMapping("DE02100100100006820101", "Checking", accountID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if mapping.ID != MappingID("DE02100100100006820101", accountID) {
		t.Error("constructor id must equal MappingID over the normalized pair")
	}
}

func TestImportIDDeterministic(t *testing.T) {
	if ImportID("ref-1", "u1") != ImportID("ref-1", "u1") {
		t.Error("ImportID must be deterministic")
	}
	if ImportID("ref-1", "u1") == ImportID("ref-2", "u1") {
		t.Error("different bank transaction ids must differ")
	}
	if ImportID("ref-1", "u1") == ImportID("ref-1", "u2") {
		t.Error("different users must differ")
	}
}
