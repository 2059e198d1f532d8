package scrobbler

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
	}{
		{
			name:     "Nil error is success",
			err:      nil,
			wantKind: KindOK,
		},
		{
			name:     "Auth error",
			err:      AuthErr(errors.New("expired")),
			wantKind: KindAuth,
		},
		{
			name:     "Other error",
			err:      OtherErr(errors.New("503")),
			wantKind: KindOther,
		},
		{
			name:     "Wrapped call error still classifies",
			err:      errors.Join(errors.New("context"), AuthErr(errors.New("expired"))),
			wantKind: KindAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classify("svc", tt.err)
			if result.Kind != tt.wantKind {
				t.Errorf("classify kind = %v, want %v", result.Kind, tt.wantKind)
			}
			if result.ScrobblerID != "svc" {
				t.Errorf("classify scrobbler id = %q, want svc", result.ScrobblerID)
			}
		})
	}
}

func TestClassify_PanicsOnBareError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unclassified error")
		}
	}()
	classify("svc", errors.New("bare"))
}

func TestCallError_Unwrap(t *testing.T) {
	inner := errors.New("session expired")
	err := AuthErr(inner)

	if !errors.Is(err, inner) {
		t.Error("CallError should unwrap to the inner error")
	}

	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Kind != KindAuth {
		t.Error("CallError kind should survive errors.As")
	}
}

func TestResults_Aggregation(t *testing.T) {
	results := Results{
		{ScrobblerID: "one", Kind: KindOK},
		{ScrobblerID: "two", Kind: KindAuth, Err: AuthErr(ErrNoSession)},
		{ScrobblerID: "three", Kind: KindOther, Err: OtherErr(errors.New("down"))},
	}

	if results.AllOK() {
		t.Error("AllOK should be false with failures present")
	}
	failed := results.Failed()
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed, got %d", len(failed))
	}

	if (Results{{ScrobblerID: "one", Kind: KindOK}}).AllOK() == false {
		t.Error("AllOK should be true when every result succeeded")
	}
}
