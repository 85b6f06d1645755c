package anonarea

import "testing"

func TestEnsureCapacityGrowsInBlocks(t *testing.T) {
	a := New(1024)
	grown := a.EnsureCapacity(3000, 0)
	if grown != 3*1024 {
		t.Fatalf("EnsureCapacity() grown = %d, want %d (3 blocks)", grown, 3*1024)
	}
	if a.NrBlocks() != 3 {
		t.Fatalf("NrBlocks() = %d, want 3", a.NrBlocks())
	}
}

func TestEnsureCapacityNoOpWhenAlreadySatisfied(t *testing.T) {
	a := New(1024)
	a.EnsureCapacity(2048, 0)
	grown := a.EnsureCapacity(1500, 0)
	if grown != 0 {
		t.Fatalf("EnsureCapacity() on already-satisfied request = %d, want 0", grown)
	}
	if a.NrBlocks() != 2 {
		t.Fatalf("NrBlocks() = %d, want 2 (unchanged)", a.NrBlocks())
	}
}

func TestEnsureCapacityNeverShrinksExistingBlocks(t *testing.T) {
	a := New(1024)
	a.EnsureCapacity(4096, 0)
	before := a.NrBlocks()
	a.EnsureCapacity(100, 0)
	if a.NrBlocks() != before {
		t.Fatalf("NrBlocks() after smaller request = %d, want unchanged %d", a.NrBlocks(), before)
	}
}

func TestMarkFilledMonotonicallyIncreases(t *testing.T) {
	a := New(1024)
	a.MarkFilled(500)
	a.MarkFilled(300)
	if got := a.FilledBytes(); got != 500 {
		t.Fatalf("FilledBytes() after lower MarkFilled = %d, want 500 (watermark, not overwritten)", got)
	}
	a.MarkFilled(900)
	if got := a.FilledBytes(); got != 900 {
		t.Fatalf("FilledBytes() = %d, want 900", got)
	}
}

func TestTouchPageOnEmptyAreaReturnsZero(t *testing.T) {
	a := New(1024)
	if got := a.TouchPage(0, 64); got != 0 {
		t.Fatalf("TouchPage() on empty area = %d, want 0", got)
	}
}

func TestFillCompressibleFullyCompressibleIsAllZero(t *testing.T) {
	buf := make([]byte, 128)
	fillCompressible(buf, 1)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("fillCompressible(frac=1) byte %d = %d, want 0", i, b)
		}
	}
}

func TestReadWordAtCopiesFromCorrectBlock(t *testing.T) {
	a := New(16)
	a.EnsureCapacity(32, 1) // two all-zero blocks
	dst := make([]byte, 4)
	n := a.ReadWordAt(20, dst) // inside second block
	if n != 4 {
		t.Fatalf("ReadWordAt() copied %d bytes, want 4", n)
	}
}
