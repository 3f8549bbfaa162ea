package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox("test-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}

	sealed, err := box.Seal("ghp_example")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "ghp_example") {
		t.Fatalf("sealed value leaks the plaintext: %q", sealed)
	}

	again, err := box.Seal("ghp_example")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == again {
		t.Fatalf("nonces must differ")
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "ghp_example" {
		t.Fatalf("unexpected plaintext %q", opened)
	}
}

func TestOpenRejectsTamperingAndWrongKey(t *testing.T) {
	box, err := NewBox("test-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, err := box.Seal("value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	other, err := NewBox("other-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	if _, err := other.Open(sealed); err == nil {
		t.Fatalf("expected wrong key to fail")
	}
	if _, err := box.Open("%%%"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for bad encoding, got %v", err)
	}
	if _, err := box.Open("c2hvcnQ="); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for short input, got %v", err)
	}
}

func TestNewBoxRequiresKey(t *testing.T) {
	if _, err := NewBox(""); err == nil {
		t.Fatalf("expected an error for an empty key")
	}
}
