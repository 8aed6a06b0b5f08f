package login

// State is a step of the login sequence.
type State int

const (
	StateInit State = iota
	StatePageLoaded
	StateChallengeCleared
	StateFieldsLocated
	StateCredentialsEntered
	StateSubmitLocated
	StateSubmitted
	StatePostSubmitChallengeCheck
	StateOutcomeClassified
	StateSuccess
	StateFailure
)

var stateNames = [...]string{
	StateInit:                     "Init",
	StatePageLoaded:               "PageLoaded",
	StateChallengeCleared:         "ChallengeCleared",
	StateFieldsLocated:            "FieldsLocated",
	StateCredentialsEntered:       "CredentialsEntered",
	StateSubmitLocated:            "SubmitLocated",
	StateSubmitted:                "Submitted",
	StatePostSubmitChallengeCheck: "PostSubmitChallengeCheck",
	StateOutcomeClassified:        "OutcomeClassified",
	StateSuccess:                  "Success",
	StateFailure:                  "Failure",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}
