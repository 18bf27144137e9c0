package fluds

import "github.com/matzehuels/sweeptower/pkg/errors"

// lockBox hands out slot numbers from an arena with a LIFO free list.
type lockBox struct {
	inUse []bool
	free  []int
	live  int
	peak  int
}

func (l *lockBox) acquire() int {
	var s int
	if n := len(l.free); n > 0 {
		s = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		s = len(l.inUse)
		l.inUse = append(l.inUse, false)
	}
	l.inUse[s] = true
	l.live++
	l.peak = max(l.peak, l.live)
	return s
}

func (l *lockBox) release(s int) error {
	if s < 0 || s >= len(l.inUse) || !l.inUse[s] {
		return errors.New(errors.ErrCodeLockboxMiss, "lock-box slot %d is not held", s)
	}
	l.inUse[s] = false
	l.free = append(l.free, s)
	l.live--
	return nil
}

// size is the number of slots ever allocated.
func (l *lockBox) size() int { return len(l.inUse) }
