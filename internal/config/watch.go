package config

import (
	"context"
	"os"
	"slices"
	"time"
)

// CanteensChange describes a seed revision relative to the last one applied.
type CanteensChange struct {
	// Changed lists canteens that are new or whose fields or hours differ.
	Changed []int64
	// Dropped lists canteens no longer in the file. The database keeps them.
	Dropped []int64
}

// Empty reports whether the revision touches no canteen.
func (c CanteensChange) Empty() bool {
	return len(c.Changed) == 0 && len(c.Dropped) == 0
}

// DiffCanteens compares two seed revisions. prev may be nil, in which case every canteen
// of next counts as changed.
func DiffCanteens(prev, next *CanteensConfig) CanteensChange {
	before := make(map[int64]CanteenConfig)
	if prev != nil {
		for _, cn := range prev.Canteens {
			before[cn.ID] = cn
		}
	}

	var change CanteensChange
	seen := make(map[int64]bool, len(next.Canteens))
	for _, cn := range next.Canteens {
		seen[cn.ID] = true
		old, ok := before[cn.ID]
		if !ok || !sameCanteen(old, cn) {
			change.Changed = append(change.Changed, cn.ID)
		}
	}
	if prev != nil {
		for _, cn := range prev.Canteens {
			if !seen[cn.ID] {
				change.Dropped = append(change.Dropped, cn.ID)
			}
		}
	}
	return change
}

func sameCanteen(a, b CanteenConfig) bool {
	return a.Name == b.Name &&
		a.Location == b.Location &&
		a.Capacity == b.Capacity &&
		slices.Equal(a.WorkingHours, b.WorkingHours)
}

// WatchCanteens loads canteens.yaml, hands it to onUpdate, then polls the file and hands
// over each later revision that changes at least one canteen. A revision that fails to
// parse or validate goes to onError and the last applied one stays in effect.
func WatchCanteens(ctx context.Context, path string, interval time.Duration, onUpdate func(*CanteensConfig, CanteensChange), onError func(error)) error {
	if path == "" {
		path = "configs/canteens.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	applied, err := LoadCanteensConfig(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(applied, DiffCanteens(nil, applied))
	}

	w := &canteensWatcher{
		path:     path,
		lastMod:  info.ModTime(),
		applied:  applied,
		onUpdate: onUpdate,
		onError:  onError,
	}
	go w.run(ctx, interval)
	return nil
}

type canteensWatcher struct {
	path     string
	lastMod  time.Time
	applied  *CanteensConfig
	onUpdate func(*CanteensConfig, CanteensChange)
	onError  func(error)
}

func (w *canteensWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *canteensWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil || !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	next, err := LoadCanteensConfig(w.path)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	change := DiffCanteens(w.applied, next)
	w.applied = next
	if change.Empty() || w.onUpdate == nil {
		return
	}
	w.onUpdate(next, change)
}
