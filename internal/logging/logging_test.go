package logging

import "testing"

func TestNew_ProductionMode(t *testing.T) {
	t.Parallel()

	log, err := New(false)
	if err != nil {
		t.Fatalf("New(false) returned error: %v", err)
	}
	if log == nil {
		t.Fatalf("expected a non-nil logger")
	}
}

func TestNew_DevelopmentMode(t *testing.T) {
	t.Parallel()

	log, err := New(true)
	if err != nil {
		t.Fatalf("New(true) returned error: %v", err)
	}
	if log == nil {
		t.Fatalf("expected a non-nil logger")
	}
}
