package flow

// State is a screen of the scan flow.
type State int

const (
	StateBootstrapping State = iota
	StateConsent
	StateCapture
	StateReview
	StateResults
	StateLabel
	StateSettings
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateConsent:
		return "consent"
	case StateCapture:
		return "capture"
	case StateReview:
		return "review"
	case StateResults:
		return "results"
	case StateLabel:
		return "label"
	case StateSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// Action is a logical operation that issues at most one network call at a time.
type Action string

const (
	ActionBootstrap Action = "bootstrap"
	ActionAnalyze   Action = "analyze"
	ActionLabel     Action = "label"
	ActionConsent   Action = "consent"
	ActionDelete    Action = "delete"
	ActionProgress  Action = "progress"
	ActionLegal     Action = "legal"
	ActionDonate    Action = "donate"
)
