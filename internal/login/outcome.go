package login

import (
	"strings"
	"time"

	"github.com/xkilldash9x/panelkeeper/internal/challenge"
	"github.com/xkilldash9x/panelkeeper/internal/config"
)

// Status is the terminal result of an attempt.
type Status int

const (
	StatusFailure Status = iota
	StatusSuccess
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "Success"
	}
	return "Failure"
}

// Outcome is produced exactly once per attempt.
type Outcome struct {
	Status    Status
	URL       string
	Title     string
	Recovered bool
	// Err is nil on success.
	Err        *Error
	FinishedAt time.Time
	// States lists every state the attempt entered, in order.
	States []State
}

// Succeeded is shorthand for Status == StatusSuccess.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Classifier decides whether the final page is the authenticated panel.
type Classifier struct {
	detector           *challenge.Detector
	loginPath          string
	authenticatedPaths []string
	successMarkers     []string
}

// NewClassifier builds a Classifier from the login settings.
func NewClassifier(detector *challenge.Detector, cfg config.LoginConfig) *Classifier {
	return &Classifier{
		detector:           detector,
		loginPath:          cfg.LoginPath,
		authenticatedPaths: cfg.AuthenticatedPaths,
		successMarkers:     cfg.SuccessMarkers,
	}
}

// OnLoginPage reports whether url still contains the login path.
func (c *Classifier) OnLoginPage(url string) bool {
	return c.loginPath != "" && strings.Contains(url, c.loginPath)
}

// Classify reports success iff the URL has left the login page (or is a known
// authenticated path), the title shows no challenge and the content carries at
// least one panel marker.
func (c *Classifier) Classify(s challenge.Signals) bool {
	urlOK := !c.OnLoginPage(s.URL)
	for _, p := range c.authenticatedPaths {
		if p != "" && strings.Contains(s.URL, p) {
			urlOK = true
			break
		}
	}
	if !urlOK || c.detector.TitleActive(s.Title) {
		return false
	}
	for _, m := range c.successMarkers {
		if m != "" && strings.Contains(s.Content, m) {
			return true
		}
	}
	return false
}
