package dispatch

import (
	"math/rand"
	"testing"
)

func TestNewClampedNormalSwapsInvertedBounds(t *testing.T) {
	c := NewClampedNormal(5, 1, 10, 0)
	if c.Left != 0 || c.Right != 10 {
		t.Fatalf("Left,Right = %v,%v, want 0,10 after swap", c.Left, c.Right)
	}
}

func TestClampedNormalDrawStaysInBounds(t *testing.T) {
	c := NewClampedNormal(0, 1000, -1, 1)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := c.Draw(rng)
		if v < -1 || v > 1 {
			t.Fatalf("Draw() = %v, want within [-1, 1]", v)
		}
	}
}

func TestClampedNormalDegenerateRangeReturnsLeft(t *testing.T) {
	c := NewClampedNormal(0, 1, 5, 5)
	rng := rand.New(rand.NewSource(1))
	if got := c.Draw(rng); got != 5 {
		t.Fatalf("Draw() on degenerate range = %v, want 5", got)
	}
}
