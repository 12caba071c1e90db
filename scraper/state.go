package scraper

type State int

const (
	StateInit State = iota
	StateLoggedIn
	StateNavigated
	StateMeasureSelected
	StateRound1Selected
	StateRound1Downloaded
	StateRound2Searched
	StateRound2Selected
	StateRound2Downloaded
	StateOrganized
	StateDone
	StateError
)

var stateNames = [...]string{
	StateInit:             "init",
	StateLoggedIn:         "logged_in",
	StateNavigated:        "navigated",
	StateMeasureSelected:  "measure_selected",
	StateRound1Selected:   "round1_selected",
	StateRound1Downloaded: "round1_downloaded",
	StateRound2Searched:   "round2_searched",
	StateRound2Selected:   "round2_selected",
	StateRound2Downloaded: "round2_downloaded",
	StateOrganized:        "organized",
	StateDone:             "done",
	StateError:            "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}
