package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/plumage/moderation"
	"github.com/deemkeen/plumage/ui/accounts"
	"github.com/deemkeen/plumage/ui/common"
	"github.com/deemkeen/plumage/ui/followers"
	"github.com/deemkeen/plumage/ui/rules"
	"github.com/deemkeen/plumage/util"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_PURPLE)).
			Bold(true).
			Padding(0, 2)

	focusedModelStyle = lipgloss.NewStyle().
				Align(lipgloss.Top, lipgloss.Top).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color(common.COLOR_LIGHTBLUE)).MarginLeft(1)
)

type MainModel struct {
	width          int
	height         int
	state          common.SessionState
	accountsModel  accounts.Model
	followersModel followers.Model
	rulesModel     rules.Model
}

func NewModel(gate *moderation.Gate, width int, height int) MainModel {
	width = common.DefaultWindowWidth(width)
	height = common.DefaultWindowHeight(height)

	return MainModel{
		state:          common.AccountsView,
		accountsModel:  accounts.InitialModel(width, height),
		followersModel: followers.InitialModel(width, height),
		rulesModel:     rules.InitialModel(gate, width, height),
		width:          width,
		height:         height,
	}
}

func (m MainModel) Init() tea.Cmd {
	return tea.Batch(
		m.accountsModel.Init(),
		m.followersModel.Init(),
		m.rulesModel.Init(),
	)
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			if !m.inputActive() {
				oldState := m.state
				switch m.state {
				case common.AccountsView:
					m.state = common.FollowersView
				case common.FollowersView:
					m.state = common.RulesView
				case common.RulesView:
					m.state = common.AccountsView
				}
				if oldState != m.state {
					cmds = append(cmds, m.viewInitCmd())
				}
				return m, tea.Batch(cmds...)
			}
		case "shift+tab":
			if !m.inputActive() {
				oldState := m.state
				switch m.state {
				case common.AccountsView:
					m.state = common.RulesView
				case common.FollowersView:
					m.state = common.AccountsView
				case common.RulesView:
					m.state = common.FollowersView
				}
				if oldState != m.state {
					cmds = append(cmds, m.viewInitCmd())
				}
				return m, tea.Batch(cmds...)
			}
		}
	}

	// Data messages go everywhere, keystrokes only to the active view.
	if _, isKeyMsg := msg.(tea.KeyMsg); !isKeyMsg {
		m.accountsModel, cmd = m.accountsModel.Update(msg)
		cmds = append(cmds, cmd)
		m.followersModel, cmd = m.followersModel.Update(msg)
		cmds = append(cmds, cmd)
		m.rulesModel, cmd = m.rulesModel.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		switch m.state {
		case common.AccountsView:
			m.accountsModel, cmd = m.accountsModel.Update(msg)
		case common.FollowersView:
			m.followersModel, cmd = m.followersModel.Update(msg)
		case common.RulesView:
			m.rulesModel, cmd = m.rulesModel.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m MainModel) View() string {
	s := titleStyle.Render(util.GetNameAndVersion()) + "\n"

	availableHeight := m.height - 8
	panelWidth := m.width - 6

	panel := lipgloss.NewStyle().
		MaxHeight(availableHeight).
		Height(availableHeight).
		Width(panelWidth).
		MaxWidth(panelWidth).
		Margin(1)

	switch m.state {
	case common.AccountsView:
		s += focusedModelStyle.Render(panel.Render(m.accountsModel.View()))
	case common.FollowersView:
		s += focusedModelStyle.Render(panel.Render(m.followersModel.View()))
	case common.RulesView:
		s += focusedModelStyle.Render(panel.Render(m.rulesModel.View()))
	}
	s += "\n"

	var viewCommands string
	switch m.state {
	case common.AccountsView:
		viewCommands = "a: add • u: unlisted • s: sensitive • x: deactivate"
	case common.FollowersView:
		viewCommands = "↑/↓: select • d: remove everywhere"
	case common.RulesView:
		viewCommands = "a: add • d: delete"
	}

	s += common.HelpStyle.Render(fmt.Sprintf(
		"focused > %s\t\tkeys > tab: next • shift+tab: prev • %s • ctrl-c: exit",
		m.currentFocusedModel(), viewCommands))
	return lipgloss.NewStyle().Render(s)
}

func (m MainModel) currentFocusedModel() string {
	switch m.state {
	case common.FollowersView:
		return "followers"
	case common.RulesView:
		return "moderation"
	default:
		return "accounts"
	}
}

// inputActive reports whether a text input owns the keyboard, so tab
// cycling stays out of its way.
func (m MainModel) inputActive() bool {
	switch m.state {
	case common.AccountsView:
		return m.accountsModel.Adding
	case common.RulesView:
		return m.rulesModel.Adding
	}
	return false
}

func (m MainModel) viewInitCmd() tea.Cmd {
	switch m.state {
	case common.AccountsView:
		return m.accountsModel.Init()
	case common.FollowersView:
		return m.followersModel.Init()
	case common.RulesView:
		return m.rulesModel.Init()
	default:
		return nil
	}
}
