package kverrors

import "testing"

func TestErrorFormattingWithMessage(t *testing.T) {
	err := KeyDNE("user/1")
	if err.Error() != "KEY_DNE: no such key: user/1" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}

func TestErrorFormattingWithoutMessage(t *testing.T) {
	err := New(CodeInternal, "")
	if err.Error() != "INTERNAL_ERROR" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := WrongThread("k")
	if !Is(err, CodeWrongThread) {
		t.Fatal("expected Is to match the error's own code")
	}
	if Is(err, CodeKeyDNE) {
		t.Fatal("expected Is not to match a different code")
	}
}

func TestIsRejectsNonKVError(t *testing.T) {
	if Is(errPlain{}, CodeKeyDNE) {
		t.Fatal("expected Is to reject an unrelated error type")
	}
}

type errPlain struct{}

func (errPlain) Error() string { return "plain" }
