package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type userKey struct{}

// withUser stores the authenticated operator in ctx.
func withUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey{}, username)
}

// userFromContext returns the operator authenticated by the basic auth middleware.
func userFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(userKey{}).(string)
	return username, ok && username != ""
}

// Htpasswd holds operator credentials: one "user:bcrypt-hash" per line.
type Htpasswd struct {
	creds map[string]string
}

func NewHtpasswd() Htpasswd {
	return Htpasswd{creds: make(map[string]string)}
}

func (h *Htpasswd) Get(user string) (string, error) {
	password, ok := h.creds[user]
	if !ok {
		return "", errors.New("unknown user")
	}
	if password == "" {
		return "", errors.New("empty password")
	}

	return password, nil
}

func (h *Htpasswd) load(file string) error {
	fd, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("htpasswd not loaded: %w", err)
	}
	defer func() {
		_ = fd.Close()
	}()

	creds := make(map[string]string)
	sc := bufio.NewScanner(fd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok || user == "" {
			continue
		}
		creds[user] = hash
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read htpasswd: %w", err)
	}
	h.creds = creds
	if len(h.creds) == 0 {
		return errors.New("no credentials in htpasswd file")
	}
	return nil
}

// basicAuthMiddleware rejects unauthenticated requests and passes the operator
// name down to the handlers, where it becomes the task issuer.
func (h *Htpasswd) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()

		expectedHash, err := h.Get(username)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="hive"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		if !ok || bcrypt.CompareHashAndPassword([]byte(expectedHash), []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="hive"`)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), username)))
	})
}
