package uistate

import (
	"testing"
	"time"
)

func TestNotifier_ShowIsLatestWins(t *testing.T) {
	var received []Toast
	n := NewNotifier(func(tt Toast) { received = append(received, tt) })

	n.Show("first", SeverityInfo)
	n.Show("second", SeverityError)

	cur := n.Current()
	if cur == nil {
		t.Fatal("expected a current toast")
	}
	if cur.Message != "second" {
		t.Errorf("message: got %q, want %q", cur.Message, "second")
	}
	if len(received) != 2 {
		t.Errorf("hook calls: got %d, want 2", len(received))
	}
}

func TestNotifier_ExpiresAfterDuration(t *testing.T) {
	n := NewNotifier(nil)
	fixed := time.Now()
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	n.Show("hello", SeveritySuccess)
	now = func() time.Time { return fixed.Add(ToastDuration) }

	if got := n.Current(); got != nil {
		t.Errorf("expected expired toast to be nil, got %+v", got)
	}
}

func TestNotifier_NilWhenNeverShown(t *testing.T) {
	n := NewNotifier(nil)
	if got := n.Current(); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}
