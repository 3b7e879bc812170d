package slices

import "github.com/vango-dev/campusdesk/pkg/store"

// Auth action types.
const (
	AuthLoginSucceeded = "auth/loginSucceeded"
	AuthLoginFailed    = "auth/loginFailed"
	AuthLogout         = "auth/logout"
)

// User is the signed-in account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// AuthState is the auth slice.
type AuthState struct {
	User   *User  `json:"user"`
	Token  string `json:"token"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// LoginPayload is the payload of AuthLoginSucceeded.
type LoginPayload struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// LoginSucceeded builds an AuthLoginSucceeded action.
func LoginSucceeded(user User, token string) store.Action {
	return store.Action{Type: AuthLoginSucceeded, Payload: LoginPayload{User: user, Token: token}}
}

// LoginFailed builds an AuthLoginFailed action.
func LoginFailed(reason string) store.Action {
	return store.Action{Type: AuthLoginFailed, Payload: reason}
}

// Logout builds an AuthLogout action.
func Logout() store.Action {
	return store.Action{Type: AuthLogout}
}

func initialAuth() AuthState {
	return AuthState{Status: StatusIdle}
}

func reduceAuth(s AuthState, a store.Action) AuthState {
	switch a.Type {
	case AuthLoginSucceeded:
		p, err := DecodePayload[LoginPayload](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		user := p.User
		return AuthState{User: &user, Token: p.Token, Status: StatusSucceeded}

	case AuthLoginFailed:
		reason, err := DecodePayload[string](a.Payload)
		if err != nil {
			reason = "login failed"
		}
		return AuthState{Status: StatusFailed, Error: reason}

	case AuthLogout:
		return initialAuth()
	}
	return s
}
