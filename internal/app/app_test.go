package app

import (
	"errors"
	"strings"
	"testing"
)

func TestMutationFailureSurfacesInStatusBar(t *testing.T) {
	m := Model{currentView: ViewList, ready: true}

	updated, _ := m.Update(mutationFailedMsg{err: errors.New("disk full")})
	got := updated.(Model)

	if !strings.Contains(got.statusNote, "disk full") {
		t.Errorf("statusNote = %q, want the failure reason", got.statusNote)
	}
	if !strings.Contains(got.keyHints(), "disk full") {
		t.Errorf("status bar = %q, want the failure reason", got.keyHints())
	}
}
