package store

import (
	"fmt"
	"testing"
)

func TestEchoSet_TrimmedExactMatch(t *testing.T) {
	e := NewEchoSet(10)
	e.Add("  Receipt processed!  ")

	if !e.Contains("Receipt processed!") {
		t.Fatal("trimmed text should match")
	}
	if !e.Contains("\nReceipt processed!\n") {
		t.Fatal("inbound whitespace should be trimmed before comparison")
	}
	if e.Contains("Receipt processed") {
		t.Fatal("partial match must not count")
	}
}

func TestEchoSet_FIFOEviction(t *testing.T) {
	e := NewEchoSet(10)
	for i := 0; i < 11; i++ {
		e.Add(fmt.Sprintf("message %d", i))
	}
	if e.Contains("message 0") {
		t.Fatal("oldest entry should have been evicted")
	}
	for i := 1; i <= 10; i++ {
		if !e.Contains(fmt.Sprintf("message %d", i)) {
			t.Fatalf("message %d should be retained", i)
		}
	}
}

func TestEchoSet_DuplicateAddKeepsOneSlot(t *testing.T) {
	e := NewEchoSet(2)
	e.Add("a")
	e.Add("a")
	e.Add("b")
	if !e.Contains("a") || !e.Contains("b") {
		t.Fatal("both entries should be present")
	}
}

func TestEchoSet_EmptyText(t *testing.T) {
	e := NewEchoSet(10)
	e.Add("   ")
	if e.Contains("") {
		t.Fatal("empty text never matches")
	}
}
