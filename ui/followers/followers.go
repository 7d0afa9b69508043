package followers

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/ui/common"
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
)

type Model struct {
	Followers []domain.Follower
	Filter    string
	Filtering bool
	Input     textinput.Model
	Cursor    int
	Width     int
	Height    int
}

func InitialModel(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "handle substring"
	ti.CharLimit = 100
	ti.Width = 40

	return Model{
		Followers: []domain.Follower{},
		Input:     ti,
		Width:     width,
		Height:    height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadFollowers()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case followersLoadedMsg:
		m.Followers = msg.followers
		if m.Cursor >= len(m.visible()) {
			m.Cursor = 0
		}
		return m, nil

	case tea.KeyMsg:
		if m.Filtering {
			switch msg.String() {
			case "enter":
				m.Filter = strings.TrimSpace(m.Input.Value())
				m.Filtering = false
				m.Input.Blur()
				m.Cursor = 0
				return m, nil
			case "esc":
				m.Filter = ""
				m.Filtering = false
				m.Input.SetValue("")
				m.Input.Blur()
				m.Cursor = 0
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
			if m.Cursor < len(m.visible())-1 {
				m.Cursor++
			}
		case "/":
			m.Filtering = true
			m.Input.SetValue(m.Filter)
			return m, m.Input.Focus()
		case "d":
			visible := m.visible()
			if m.Cursor < len(visible) {
				return m, removeFollower(visible[m.Cursor])
			}
		}
	}
	return m, nil
}

// visible applies the handle filter to the loaded followers.
func (m Model) visible() []domain.Follower {
	return filterFollowers(m.Followers, m.Filter)
}

// filterFollowers narrows the list to handles containing query,
// case-insensitive. An empty query keeps everything.
func filterFollowers(followers []domain.Follower, query string) []domain.Follower {
	if query == "" {
		return followers
	}
	query = strings.ToLower(query)
	var matched []domain.Follower
	for _, f := range followers {
		if strings.Contains(strings.ToLower(f.Handle()), query) {
			matched = append(matched, f)
		}
	}
	return matched
}

func (m Model) View() string {
	var s strings.Builder
	visible := m.visible()

	caption := fmt.Sprintf("followers (%d)", len(m.Followers))
	if m.Filter != "" {
		caption = fmt.Sprintf("followers (%d/%d, filter %q)", len(visible), len(m.Followers), m.Filter)
	}
	s.WriteString(common.CaptionStyle.Render(caption))
	s.WriteString("\n\n")

	if m.Filtering {
		s.WriteString(itemStyle.Render("filter: " + m.Input.View()))
		s.WriteString("\n\n")
	}

	if len(m.Followers) == 0 {
		s.WriteString(emptyStyle.Render("Nobody follows a bridged account yet."))
		return s.String()
	}

	if len(visible) == 0 {
		s.WriteString(emptyStyle.Render("No follower matches the filter."))
		return s.String()
	}

	itemsPerPage := 10
	start := 0
	if m.Cursor >= itemsPerPage {
		start = m.Cursor - itemsPerPage + 1
	}
	end := start + itemsPerPage
	if end > len(visible) {
		end = len(visible)
	}

	for i := start; i < end; i++ {
		f := visible[i]
		line := fmt.Sprintf("• %s (%d followings, %d posting errors)", f.Handle(), len(f.Followings), f.PostingErrorCount)
		if i == m.Cursor {
			s.WriteString(selectedStyle.Render("> " + line))
		} else {
			s.WriteString(itemStyle.Render(line))
		}
		s.WriteString("\n")
	}

	return s.String()
}

type followersLoadedMsg struct {
	followers []domain.Follower
}

// loadFollowers loads every follower, busiest first.
func loadFollowers() tea.Cmd {
	return func() tea.Msg {
		err, followers := db.GetDB().ReadAllFollowers()
		if err != nil || followers == nil {
			log.Printf("Failed to load followers: %v", err)
			return followersLoadedMsg{followers: []domain.Follower{}}
		}

		sorted := *followers
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i].Followings) > len(sorted[j].Followings)
		})
		return followersLoadedMsg{followers: sorted}
	}
}

// removeFollower drops a follower from every account it follows.
func removeFollower(f domain.Follower) tea.Cmd {
	return func() tea.Msg {
		if err := db.GetDB().DeleteFollowerByActorURI(f.ActorURI); err != nil {
			log.Printf("Failed to remove follower %s: %v", f.Handle(), err)
		}
		return loadFollowers()()
	}
}
