package providers

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/jrsteele09/go-forward-auth/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// Local is the local-credential provider: a username/password form checked
// against a static bcrypt user list. The login path doubles as the callback
// path; the form posts straight back to it.
type Local struct {
	meta
	users map[string]string // username -> bcrypt hash
}

func newLocal(instance string, env Settings, _, prefix string) (Provider, error) {
	users, err := parseUserList(env.Get("USERS", ""), env.Get("USERS_FILE", ""))
	if err != nil {
		return nil, err
	}

	m := newMeta("local", instance, prefix, env, "fas fa-user")
	m.callbackPath = m.loginPath
	m.callbackMethod = http.MethodPost

	return &Local{meta: m, users: users}, nil
}

func (l *Local) Verify(_ context.Context, r *http.Request) (*Identity, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		return nil, errors.ErrInvalidCredentials
	}

	hash, ok := l.users[username]
	if !ok {
		return nil, errors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	return &Identity{
		ID:       username,
		Strategy: l.Name(),
		Profile:  map[string]any{"username": username},
	}, nil
}

// parseUserList reads "user:hash" pairs from an inline comma list and/or an
// htpasswd-style file, inline entries winning on collision
func parseUserList(inline, file string) (map[string]string, error) {
	users := make(map[string]string)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, "local users file")
		}
		for _, line := range strings.Split(string(data), "\n") {
			addUserEntry(users, strings.TrimRight(line, "\r"))
		}
	}

	for _, pair := range strings.Split(inline, ",") {
		addUserEntry(users, pair)
	}

	return users, nil
}

func addUserEntry(users map[string]string, entry string) {
	// bcrypt hashes contain no ':', so the first one splits user from hash
	username, hash, ok := strings.Cut(strings.TrimSpace(entry), ":")
	if !ok || username == "" || hash == "" {
		return
	}
	users[username] = hash
}
