package followers

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/deemkeen/plumage/domain"
)

func testFollowers() []domain.Follower {
	return []domain.Follower{
		{Acct: "alice", Host: "one.example"},
		{Acct: "bob", Host: "two.example"},
		{Acct: "bobby", Host: "one.example"},
	}
}

func TestFilterFollowers(t *testing.T) {
	followers := testFollowers()

	all := filterFollowers(followers, "")
	if len(all) != 3 {
		t.Errorf("Empty query must keep everything, got %d", len(all))
	}

	byHandle := filterFollowers(followers, "bob")
	if len(byHandle) != 2 {
		t.Fatalf("Expected 2 matches for 'bob', got %d", len(byHandle))
	}
	if byHandle[0].Acct != "bob" || byHandle[1].Acct != "bobby" {
		t.Errorf("Unexpected matches: %+v", byHandle)
	}

	byHost := filterFollowers(followers, "one.example")
	if len(byHost) != 2 {
		t.Errorf("Expected 2 matches on host, got %d", len(byHost))
	}

	upper := filterFollowers(followers, "BOB")
	if len(upper) != 2 {
		t.Errorf("Filter must be case-insensitive, got %d matches", len(upper))
	}

	if got := filterFollowers(followers, "nobody"); len(got) != 0 {
		t.Errorf("Expected no matches, got %d", len(got))
	}
}

func TestFilterKeyFlowNarrowsSelection(t *testing.T) {
	m := InitialModel(80, 24)
	m.Followers = testFollowers()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.Filtering {
		t.Fatal("Expected '/' to start filtering")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("bob")})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.Filtering {
		t.Error("Enter must leave filter entry")
	}
	if m.Filter != "bob" {
		t.Errorf("Expected filter 'bob', got %q", m.Filter)
	}
	if m.Cursor != 0 {
		t.Errorf("Applying a filter must reset the cursor, got %d", m.Cursor)
	}

	visible := m.visible()
	if len(visible) != 2 || visible[0].Acct != "bob" {
		t.Errorf("Unexpected visible set: %+v", visible)
	}

	// The selection moves over the filtered list, not the full one.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if m.Cursor != 1 {
		t.Errorf("Expected cursor 1 within the filtered list, got %d", m.Cursor)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if m.Cursor != 1 {
		t.Errorf("Cursor must stop at the filtered end, got %d", m.Cursor)
	}
}

func TestFilterEscClears(t *testing.T) {
	m := InitialModel(80, 24)
	m.Followers = testFollowers()
	m.Filter = "bob"

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEscape})
	if m.Filtering {
		t.Error("Esc must leave filter entry")
	}
	if m.Filter != "" {
		t.Errorf("Esc must clear the filter, got %q", m.Filter)
	}
	if len(m.visible()) != 3 {
		t.Errorf("Expected full list after clearing, got %d", len(m.visible()))
	}
}
