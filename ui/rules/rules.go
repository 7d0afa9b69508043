package rules

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/moderation"
	"github.com/deemkeen/plumage/ui/common"
	"github.com/google/uuid"
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

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

type Model struct {
	Gate   *moderation.Gate
	Rules  []domain.ModerationRule
	Cursor int
	Adding bool
	Input  textinput.Model
	Err    string
	Width  int
	Height int
}

func InitialModel(gate *moderation.Gate, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "account|follower allow|deny pattern"
	ti.CharLimit = 200
	ti.Width = 50

	return Model{
		Gate:  gate,
		Rules: []domain.ModerationRule{},
		Input: ti,
		Width: width,
		Height: height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadRules()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case rulesLoadedMsg:
		m.Rules = msg.rules
		if m.Cursor >= len(m.Rules) {
			m.Cursor = 0
		}
		return m, nil

	case tea.KeyMsg:
		if m.Adding {
			switch msg.String() {
			case "enter":
				input := strings.TrimSpace(m.Input.Value())
				m.Adding = false
				m.Input.SetValue("")
				m.Input.Blur()

				rule, err := parseRule(input)
				if err != nil {
					m.Err = err.Error()
					return m, nil
				}
				m.Err = ""
				return m, addRule(m.Gate, rule)
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
			if m.Cursor < len(m.Rules)-1 {
				m.Cursor++
			}
		case "a":
			m.Adding = true
			m.Err = ""
			return m, m.Input.Focus()
		case "d":
			if m.Cursor < len(m.Rules) {
				return m, deleteRule(m.Gate, m.Rules[m.Cursor].Id)
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("moderation rules (%d)", len(m.Rules))))
	s.WriteString("\n\n")

	if m.Adding {
		s.WriteString(itemStyle.Render("add rule: " + m.Input.View()))
		s.WriteString("\n\n")
	}
	if m.Err != "" {
		s.WriteString(errorStyle.Render("  " + m.Err))
		s.WriteString("\n\n")
	}

	if len(m.Rules) == 0 {
		s.WriteString(emptyStyle.Render("No rules configured. Everyone may follow and be bridged."))
		return s.String()
	}

	for i, rule := range m.Rules {
		line := fmt.Sprintf("• %-8s %-5s %s", rule.Entity, rule.Kind, rule.Pattern)
		if i == m.Cursor {
			s.WriteString(selectedStyle.Render("> " + line))
		} else {
			s.WriteString(itemStyle.Render(line))
		}
		s.WriteString("\n")
	}

	return s.String()
}

// parseRule reads "entity kind pattern", e.g. "follower deny *.badhost.example".
func parseRule(input string) (*domain.ModerationRule, error) {
	fields := strings.Fields(input)
	if len(fields) < 3 {
		return nil, fmt.Errorf("expected: account|follower allow|deny pattern")
	}

	entity := domain.ModerationEntity(fields[0])
	if entity != domain.ModerationAccount && entity != domain.ModerationFollower {
		return nil, fmt.Errorf("unknown entity %q", fields[0])
	}

	kind := domain.ModerationListKind(fields[1])
	if kind != domain.ModerationAllow && kind != domain.ModerationDeny {
		return nil, fmt.Errorf("unknown kind %q", fields[1])
	}

	pattern := strings.Join(fields[2:], " ")
	if _, err := moderation.CompilePattern(entity, pattern); err != nil {
		return nil, fmt.Errorf("invalid pattern: %v", err)
	}

	return &domain.ModerationRule{
		Id:        uuid.New(),
		Entity:    entity,
		Pattern:   strings.ToLower(strings.TrimSpace(pattern)),
		Kind:      kind,
		CreatedAt: time.Now(),
	}, nil
}

type rulesLoadedMsg struct {
	rules []domain.ModerationRule
}

func loadRules() tea.Cmd {
	return func() tea.Msg {
		err, rules := db.GetDB().ReadModerationRules()
		if err != nil || rules == nil {
			log.Printf("Failed to load moderation rules: %v", err)
			return rulesLoadedMsg{rules: []domain.ModerationRule{}}
		}
		return rulesLoadedMsg{rules: *rules}
	}
}

func addRule(gate *moderation.Gate, rule *domain.ModerationRule) tea.Cmd {
	return func() tea.Msg {
		if err := db.GetDB().CreateModerationRule(rule); err != nil {
			log.Printf("Failed to store rule: %v", err)
		}
		if err := gate.Reload(); err != nil {
			log.Printf("Failed to reload moderation rules: %v", err)
		}
		return loadRules()()
	}
}

func deleteRule(gate *moderation.Gate, id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		if err := db.GetDB().DeleteModerationRule(id); err != nil {
			log.Printf("Failed to delete rule: %v", err)
		}
		if err := gate.Reload(); err != nil {
			log.Printf("Failed to reload moderation rules: %v", err)
		}
		return loadRules()()
	}
}
