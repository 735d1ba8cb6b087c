package cache

import (
	"context"
	"testing"
	"time"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	c, err := NewLocal(0)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLocalSetGetDelete(t *testing.T) {
	c := newTestLocal(t)
	ctx := context.Background()

	if err := c.Set(ctx, "fact:1", []byte(`{"value":"blue"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, "fact:1")
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if string(got) != `{"value":"blue"}` {
		t.Errorf("value = %s", got)
	}

	removed, err := c.Delete(ctx, "fact:1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Error("delete reported nothing removed")
	}
	if _, ok, _ := c.Get(ctx, "fact:1"); ok {
		t.Error("key still present after delete")
	}

	removed, _ = c.Delete(ctx, "fact:1")
	if removed {
		t.Error("second delete reported removal")
	}
}

func TestLocalMissIsNotAnError(t *testing.T) {
	c := newTestLocal(t)

	_, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("unexpected hit")
	}
}

func TestLocalCopiesValue(t *testing.T) {
	c := newTestLocal(t)
	ctx := context.Background()

	buf := []byte("abc")
	if err := c.Set(ctx, "k", buf, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("value = %s, want abc", got)
	}
}
