package viewrouter

import (
	"testing"

	"github.com/MrWong99/kinoforge/internal/lifecycle"
	"github.com/MrWong99/kinoforge/pkg/types"
)

func TestActiveTab_DefaultsToInput(t *testing.T) {
	r := New()
	if got := r.ActiveTab("proj-1"); got != lifecycle.TabInput {
		t.Errorf("expected default tab input, got %v", got)
	}
}

func TestNavigate_SucceedsWhenUnlocked(t *testing.T) {
	r := New()
	if err := r.Navigate("proj-1", types.StatusFormatted, lifecycle.TabBuilder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.ActiveTab("proj-1"); got != lifecycle.TabBuilder {
		t.Errorf("expected active tab builder, got %v", got)
	}
}

func TestNavigate_RefusesWhenLocked(t *testing.T) {
	r := New()
	err := r.Navigate("proj-1", types.StatusParsed, lifecycle.TabBuilder)
	if err == nil {
		t.Fatal("expected navigation to be refused")
	}
	if got := r.ActiveTab("proj-1"); got != lifecycle.TabInput {
		t.Errorf("expected active tab to remain unchanged, got %v", got)
	}
}

func TestReset_ClearsActiveTab(t *testing.T) {
	r := New()
	if err := r.Navigate("proj-1", types.StatusCompleted, lifecycle.TabExport); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Reset("proj-1")
	if got := r.ActiveTab("proj-1"); got != lifecycle.TabInput {
		t.Errorf("expected reset to return default tab, got %v", got)
	}
}

func TestNavigate_IndependentPerProject(t *testing.T) {
	r := New()
	if err := r.Navigate("proj-1", types.StatusCompleted, lifecycle.TabVideoBuild); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.ActiveTab("proj-2"); got != lifecycle.TabInput {
		t.Errorf("expected proj-2 to be unaffected, got %v", got)
	}
}
