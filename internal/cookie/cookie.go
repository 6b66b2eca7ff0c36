package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/b2c-front/internal/envutil"
	"github.com/dgellow/b2c-front/internal/log"
)

// Cookie names used by b2c-front
const (
	SessionCookie = "b2c_session"
	// LoginCookie holds the signed state of a login in progress
	LoginCookie = "b2c_login"
)

// LoginMaxAge bounds how long a user may take at the provider's login page
const LoginMaxAge = 10 * time.Minute

func set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":   name,
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// SetSession sets the session id cookie
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	set(w, SessionCookie, value, maxAge)
}

// SetLogin sets the pending login cookie
func SetLogin(w http.ResponseWriter, value string) {
	set(w, LoginCookie, value, LoginMaxAge)
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearLogin removes the pending login cookie
func ClearLogin(w http.ResponseWriter) {
	Clear(w, LoginCookie)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetLogin retrieves the pending login cookie value
func GetLogin(r *http.Request) (string, error) {
	return Get(r, LoginCookie)
}
