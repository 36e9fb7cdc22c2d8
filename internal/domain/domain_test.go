package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSelectionDecodesNumberOrArray(t *testing.T) {
	var single Selection
	if err := json.Unmarshal([]byte(`2`), &single); err != nil {
		t.Fatalf("decode number: %v", err)
	}
	if len(single) != 1 || single[0] != 2 {
		t.Fatalf("expected [2], got %v", single)
	}

	var many Selection
	if err := json.Unmarshal([]byte(`[2, 0]`), &many); err != nil {
		t.Fatalf("decode array: %v", err)
	}
	if len(many) != 2 || !many.Contains(0) || !many.Contains(2) {
		t.Fatalf("expected {0,2}, got %v", many)
	}

	var none Selection
	if err := json.Unmarshal([]byte(`null`), &none); err != nil {
		t.Fatalf("decode null: %v", err)
	}
	if !none.Empty() {
		t.Fatalf("expected empty selection, got %v", none)
	}

	if err := json.Unmarshal([]byte(`"a"`), &none); err == nil {
		t.Fatalf("expected error for string selection")
	}
}

func TestMultiDropsDuplicates(t *testing.T) {
	sel := Multi(2, 0, 2)
	if len(sel) != 2 || sel[0] != 0 || sel[1] != 2 {
		t.Fatalf("expected [0 2], got %v", sel)
	}
}

func TestValidationErrorMatchesInvalidInput(t *testing.T) {
	verr := NewValidationError()
	if verr.OrNil() != nil {
		t.Fatalf("expected nil for empty validation error")
	}
	verr.Add("name", "required")
	verr.Add("name", "ignored")
	err := verr.OrNil()
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput match, got %v", err)
	}
	if verr.Fields["name"] != "required" {
		t.Fatalf("expected first message kept, got %q", verr.Fields["name"])
	}
	if err.Error() != "validation failed: name: required" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestQuizDefinitionRespondentMatchIsCaseSensitive(t *testing.T) {
	quiz := QuizDefinition{Responses: []ResponseEntry{{RespondentName: "Sam"}}}
	if !quiz.HasRespondent("Sam") {
		t.Fatalf("expected Sam to be found")
	}
	if quiz.HasRespondent("sam") {
		t.Fatalf("expected sam to be distinct from Sam")
	}
}
