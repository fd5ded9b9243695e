package engine

import (
	"fmt"
	"testing"
)

func TestLedgerBound(t *testing.T) {
	l := newLedger(100)

	for i := 0; i < 150; i++ {
		l.Add(fmt.Sprintf("E%d", i))
	}

	if l.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", l.Len())
	}
	// strictly FIFO: the first 50 are gone, the last 100 remain
	for i := 0; i < 50; i++ {
		if l.Contains(fmt.Sprintf("E%d", i)) {
			t.Errorf("E%d should have been evicted", i)
		}
	}
	for i := 50; i < 150; i++ {
		if !l.Contains(fmt.Sprintf("E%d", i)) {
			t.Errorf("E%d should still be present", i)
		}
	}
}

func TestLedgerDuplicateAdd(t *testing.T) {
	l := newLedger(3)

	l.Add("A")
	l.Add("A")
	l.Add("B")

	if l.Len() != 2 {
		t.Errorf("duplicate add should not grow the ledger, got %d", l.Len())
	}

	l.Add("C")
	l.Add("D") // evicts A
	if l.Contains("A") {
		t.Error("A should have been evicted first")
	}
	if !l.Contains("B") || !l.Contains("C") || !l.Contains("D") {
		t.Error("B, C, D should remain")
	}
}
