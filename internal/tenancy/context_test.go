package tenancy

import (
	"context"
	"sync"
	"testing"
)

func TestBotIDRoundTrip(t *testing.T) {
	ctx := WithBotID(context.Background(), "clinic-ab12cd34")

	id, ok := BotIDFromContext(ctx)
	if !ok {
		t.Fatal("expected bot id in context")
	}
	if id != "clinic-ab12cd34" {
		t.Fatalf("expected clinic-ab12cd34, got %s", id)
	}
}

func TestBotIDMissing(t *testing.T) {
	if _, ok := BotIDFromContext(context.Background()); ok {
		t.Fatal("expected no bot id in empty context")
	}
}

func TestBotIDEmptyString(t *testing.T) {
	ctx := WithBotID(context.Background(), "")
	if _, ok := BotIDFromContext(ctx); ok {
		t.Fatal("empty bot id should not report present")
	}
}

func TestLocksSameBotSameMutex(t *testing.T) {
	locks := NewLocks()
	if locks.For("a") != locks.For("a") {
		t.Fatal("expected the same mutex for the same bot")
	}
	if locks.For("a") == locks.For("b") {
		t.Fatal("expected distinct mutexes for distinct bots")
	}
}

func TestLocksConcurrentFor(t *testing.T) {
	locks := NewLocks()

	var wg sync.WaitGroup
	results := make([]*sync.Mutex, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = locks.For("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent For returned different mutexes for one bot")
		}
	}
}
