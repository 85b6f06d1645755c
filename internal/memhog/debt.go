// Package memhog implements the memory-hog driver: a writer that
// grows a shared anonymous area at a configured byte rate and readers
// that re-scan slices of it, both governed by a debt tracker that caps
// how far behind real time either side is allowed to fall.
package memhog

import (
	"sync"
	"time"
)

// DebtTracker accumulates elapsed time as "debt" a producer or consumer
// owes, caps it at MaxDebt, and accounts any overflow as permanent Loss.
// The invariant: debt(t) <= MaxDebt after every Update, and
// debt + sum(paid) + loss == sum(elapsed) within floating-point
// tolerance.
type DebtTracker struct {
	mu      sync.Mutex
	maxDebt time.Duration
	debt    time.Duration
	loss    time.Duration
	paid    time.Duration
	lastAt  time.Time
}

// NewDebtTracker builds a tracker with the given debt ceiling; the first
// Update only records its time as the starting point and accrues nothing.
func NewDebtTracker(maxDebt time.Duration) *DebtTracker {
	return &DebtTracker{maxDebt: maxDebt}
}

// Update accrues now-lastTick as debt, clamping to MaxDebt and charging
// any overflow to Loss.
func (d *DebtTracker) Update(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastAt.IsZero() {
		d.lastAt = now
		return
	}
	elapsed := now.Sub(d.lastAt)
	d.lastAt = now
	if elapsed <= 0 {
		return
	}
	d.debt += elapsed
	if d.debt > d.maxDebt {
		d.loss += d.debt - d.maxDebt
		d.debt = d.maxDebt
	}
}

// Debt returns the current outstanding debt.
func (d *DebtTracker) Debt() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.debt
}

// Loss returns the cumulative time lost to debt-ceiling overflow.
func (d *DebtTracker) Loss() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loss
}

// Pay converts up to amt of outstanding debt into "work done", returning
// how much debt was actually paid (capped at the current debt balance).
func (d *DebtTracker) Pay(amt time.Duration) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if amt > d.debt {
		amt = d.debt
	}
	d.debt -= amt
	d.paid += amt
	return amt
}

// Accounted returns (debt, paid, loss); their sum should equal total
// elapsed time since the first Update, within tolerance — the
// conservation invariant the tests check.
func (d *DebtTracker) Accounted() (debt, paid, loss time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.debt, d.paid, d.loss
}
