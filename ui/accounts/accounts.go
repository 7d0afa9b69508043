package accounts

import (
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/ui/common"
	"github.com/deemkeen/plumage/util"
)

var (
	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(lipgloss.Color(common.COLOR_LIGHTBLUE))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_MAGENTA))
)

type Model struct {
	Accounts []domain.SyncedAccount
	Cursor   int
	Adding   bool
	Input    textinput.Model
	Width    int
	Height   int
}

func InitialModel(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "feed handle, e.g. some_handle"
	ti.CharLimit = 100
	ti.Width = 40

	return Model{
		Accounts: []domain.SyncedAccount{},
		Input:    ti,
		Width:    width,
		Height:   height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadAccounts()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case accountsLoadedMsg:
		m.Accounts = msg.accounts
		if m.Cursor >= len(m.Accounts) {
			m.Cursor = 0
		}
		return m, nil

	case tea.KeyMsg:
		if m.Adding {
			switch msg.String() {
			case "enter":
				acct := strings.TrimSpace(m.Input.Value())
				m.Adding = false
				m.Input.SetValue("")
				m.Input.Blur()
				if acct == "" {
					return m, nil
				}
				return m, addAccount(acct)
			case "esc":
				m.Adding = false
				m.Input.SetValue("")
				m.Input.Blur()
				return m, nil
			default:
				var cmd tea.Cmd
				m.Input, cmd = m.Input.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Accounts)-1 {
				m.Cursor++
			}
		case "a":
			m.Adding = true
			return m, m.Input.Focus()
		case "u":
			if acc := m.selected(); acc != nil {
				return m, setFlags(acc, !acc.Unlisted, acc.Sensitive)
			}
		case "s":
			if acc := m.selected(); acc != nil {
				return m, setFlags(acc, acc.Unlisted, !acc.Sensitive)
			}
		case "x":
			if acc := m.selected(); acc != nil && !acc.Deactivated {
				return m, deactivateAccount(acc)
			}
		}
	}
	return m, nil
}

func (m *Model) selected() *domain.SyncedAccount {
	if m.Cursor < 0 || m.Cursor >= len(m.Accounts) {
		return nil
	}
	return &m.Accounts[m.Cursor]
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("bridged accounts (%d)", len(m.Accounts))))
	s.WriteString("\n\n")

	if m.Adding {
		s.WriteString(itemStyle.Render("add account: " + m.Input.View()))
		s.WriteString("\n\n")
	}

	if len(m.Accounts) == 0 {
		s.WriteString(emptyStyle.Render("No bridged accounts yet. Press 'a' to add one."))
		return s.String()
	}

	itemsPerPage := 10
	start := 0
	if m.Cursor >= itemsPerPage {
		start = m.Cursor - itemsPerPage + 1
	}
	end := start + itemsPerPage
	if end > len(m.Accounts) {
		end = len(m.Accounts)
	}

	for i := start; i < end; i++ {
		acc := m.Accounts[i]

		var flags []string
		if acc.Unlisted {
			flags = append(flags, "unlisted")
		}
		if acc.Sensitive {
			flags = append(flags, "sensitive")
		}
		if acc.Deactivated {
			flags = append(flags, "deactivated")
		}
		flagStr := ""
		if len(flags) > 0 {
			flagStr = " " + flagStyle.Render("["+strings.Join(flags, ",")+"]")
		}

		line := fmt.Sprintf("• %s (synced to %d, errors %d)%s", acc.Acct, acc.LastSyncedAllPostId, acc.FetchErrorCount, flagStr)
		if i == m.Cursor {
			s.WriteString(selectedStyle.Render("> " + line))
		} else {
			s.WriteString(itemStyle.Render(line))
		}
		s.WriteString("\n")
	}

	return s.String()
}

type accountsLoadedMsg struct {
	accounts []domain.SyncedAccount
}

func loadAccounts() tea.Cmd {
	return func() tea.Msg {
		err, accounts := db.GetDB().ReadAllAccounts()
		if err != nil || accounts == nil {
			log.Printf("Failed to load accounts: %v", err)
			return accountsLoadedMsg{accounts: []domain.SyncedAccount{}}
		}
		return accountsLoadedMsg{accounts: *accounts}
	}
}

func addAccount(acct string) tea.Cmd {
	return func() tea.Msg {
		err, _ := db.GetDB().CreateAccount(acct, util.GeneratePemKeypair())
		if err != nil {
			log.Printf("Failed to add account %s: %v", acct, err)
		}
		return loadAccounts()()
	}
}

func setFlags(acc *domain.SyncedAccount, unlisted, sensitive bool) tea.Cmd {
	return func() tea.Msg {
		if err := db.GetDB().SetAccountFlags(acc.Id, unlisted, sensitive); err != nil {
			log.Printf("Failed to update flags of %s: %v", acc.Acct, err)
		}
		return loadAccounts()()
	}
}

func deactivateAccount(acc *domain.SyncedAccount) tea.Cmd {
	return func() tea.Msg {
		if err := db.GetDB().DeactivateAccount(acc.Id); err != nil {
			log.Printf("Failed to deactivate %s: %v", acc.Acct, err)
		}
		return loadAccounts()()
	}
}
