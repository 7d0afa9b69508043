package common

type SessionState uint

const (
	AccountsView SessionState = iota
	FollowersView
	RulesView
)
