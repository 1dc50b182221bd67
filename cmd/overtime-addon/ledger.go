package main

import (
	"fmt"
	"sync"
	"time"
)

// ledger accumulates tracked time per workspace, user, and calendar day.
// Days are bucketed in UTC; totals older than the retention window are
// swept on write so the map stays bounded.
type ledger struct {
	mu        sync.Mutex
	totals    map[string]time.Duration
	lastSweep time.Time
	retention time.Duration
}

const ledgerRetention = 48 * time.Hour

func newLedger() *ledger {
	return &ledger{
		totals:    make(map[string]time.Duration),
		retention: ledgerRetention,
	}
}

func dayKey(workspaceID, userID string, day time.Time) string {
	return fmt.Sprintf("%s/%s/%s", workspaceID, userID, day.UTC().Format("2006-01-02"))
}

// Add folds a tracked duration into the user's total for the entry's day
// and returns the new total.
func (l *ledger) Add(workspaceID, userID string, day time.Time, d time.Duration) time.Duration {
	key := dayKey(workspaceID, userID, day)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(time.Now())
	l.totals[key] += d
	return l.totals[key]
}

// Total returns the accumulated duration for the user's day.
func (l *ledger) Total(workspaceID, userID string, day time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[dayKey(workspaceID, userID, day)]
}

// Purge drops every total belonging to the workspace, used on uninstall.
func (l *ledger) Purge(workspaceID string) {
	prefix := workspaceID + "/"
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.totals {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(l.totals, key)
		}
	}
}

func (l *ledger) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < time.Hour {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.retention).UTC().Format("2006-01-02")
	for key := range l.totals {
		// key layout is ws/user/yyyy-mm-dd; the date sorts lexically
		if day := key[len(key)-len(cutoff):]; day < cutoff {
			delete(l.totals, key)
		}
	}
}
