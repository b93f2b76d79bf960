package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("CONSOLE_TEST_DURATION", "1500ms")
	if got := Duration("CONSOLE_TEST_DURATION", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("got=%v want=1.5s", got)
	}
	t.Setenv("CONSOLE_TEST_DURATION", "7")
	if got := Duration("CONSOLE_TEST_DURATION", time.Second); got != 7*time.Second {
		t.Fatalf("got=%v want=7s", got)
	}
	t.Setenv("CONSOLE_TEST_DURATION", "soon")
	if got := Duration("CONSOLE_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("got=%v want default", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("CONSOLE_TEST_BOOL", "off")
	if Bool("CONSOLE_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("CONSOLE_TEST_BOOL", "maybe")
	if !Bool("CONSOLE_TEST_BOOL", true) {
		t.Fatalf("expected default")
	}
}
