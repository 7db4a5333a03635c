package loginsession

import "time"

// Session is the short-lived server-side stash used only to carry the
// pending redirect_url across the login flow. It never holds a credential.
type Session struct {
	RedirectURL string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type Repo interface {
	Upsert(sessionID string, session Session) error
	Get(sessionID string) (Session, error)
	Delete(sessionID string) error
}
