package multiplex

import (
	"context"
	"testing"
)

func TestBatchCapturerCachesWithinTTL(t *testing.T) {
	b := NewBatchCapturer(New())
	calls := 0
	fetch := func() (string, error) {
		calls++
		return "content", nil
	}

	for i := 0; i < 5; i++ {
		got, err := b.capture(context.Background(), "plain:main:0.1", fetch)
		if err != nil || got != "content" {
			t.Fatalf("capture: %q %v", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 underlying fetch within the TTL, got %d", calls)
	}
}

func TestBatchCapturerInvalidate(t *testing.T) {
	b := NewBatchCapturer(New())
	calls := 0
	fetch := func() (string, error) {
		calls++
		return "content", nil
	}

	if _, err := b.capture(context.Background(), "plain:main:0.1", fetch); err != nil {
		t.Fatal(err)
	}
	b.Invalidate("main:0.1")
	if _, err := b.capture(context.Background(), "plain:main:0.1", fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("invalidate should force a refetch, got %d calls", calls)
	}
}

func TestBatchCapturerKeysAreModeScoped(t *testing.T) {
	b := NewBatchCapturer(New())
	plain := 0
	ansi := 0
	if _, err := b.capture(context.Background(), "plain:t", func() (string, error) { plain++; return "p", nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := b.capture(context.Background(), "ansi:t", func() (string, error) { ansi++; return "a", nil }); err != nil {
		t.Fatal(err)
	}
	if plain != 1 || ansi != 1 {
		t.Errorf("plain and ANSI captures must cache independently: %d %d", plain, ansi)
	}
}
