package corplink

import "fmt"

// AuthState is the login state of the account, persisted across runs.
type AuthState int

const (
	StateInit AuthState = iota
	StateLogin
)

func (s AuthState) String() string {
	switch s {
	case StateInit:
		return "Init"

	case StateLogin:
		return "Login"

	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

// ParseAuthState parses a persisted state. An empty string is Init.
func ParseAuthState(s string) (AuthState, error) {
	switch s {
	case "", "Init":
		return StateInit, nil

	case "Login":
		return StateLogin, nil

	default:
		return StateInit, &ConfigError{Field: "state", Reason: fmt.Sprintf("unknown state %q", s)}
	}
}

func (s AuthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuthState) UnmarshalText(text []byte) error {
	state, err := ParseAuthState(string(text))
	if err != nil {
		return err
	}

	*s = state

	return nil
}

// StateStore persists the auth state and the OTP seed whenever they change.
type StateStore interface {
	SaveAuth(state AuthState, seed string) error
}

// StateStoreFunc adapts a function to a StateStore.
type StateStoreFunc func(state AuthState, seed string) error

func (fn StateStoreFunc) SaveAuth(state AuthState, seed string) error {
	return fn(state, seed)
}
