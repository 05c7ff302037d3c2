package backend

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	corplink "github.com/corplink-go/go-corplink"
)

var (
	ErrNoSuchUser     = errors.New("no such user")
	ErrBadCredentials = errors.New("bad credentials")
	ErrNotLoggedIn    = errors.New("not logged in")
)

type account struct {
	username string
	password string

	// methods are the credential kinds returned by a lookup.
	methods []string

	// seed is the base32 OTP secret; empty accounts accept any code.
	seed string

	emailCode string
}

func (acc *account) checkOTP(otp string, now time.Time) bool {
	if acc.seed == "" {
		return otp != ""
	}

	key, err := corplink.DecodeSeed(acc.seed)
	if err != nil {
		return false
	}

	counter := now.Unix() / corplink.TimeStep

	for _, delta := range []int64{-1, 0, 1} {
		if fmt.Sprintf("%06d", corplink.HOTP(key, uint64(counter+delta))) == otp {
			return true
		}
	}

	return false
}

type session struct {
	username string

	// pending is the user an email code was sent to.
	pending string
}

type tpsMethod struct {
	desc     corplink.TPSLoginMethod
	username string
}

// CreateUser creates an account. With withSeed, logins hand out a fresh OTP secret.
func (b *Backend) CreateUser(username, password string, withSeed bool, methods ...string) error {
	b.accLock.Lock()
	defer b.accLock.Unlock()

	if _, ok := b.accounts[username]; ok {
		return fmt.Errorf("user %s already exists", username)
	}

	acc := &account{
		username: username,
		password: password,
		methods:  methods,
	}

	if withSeed {
		seed := make([]byte, 20)

		if _, err := rand.Read(seed); err != nil {
			return err
		}

		acc.seed = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(seed)
	}

	b.accounts[username] = acc

	return nil
}

func (b *Backend) GetSeed(username string) (string, error) {
	b.accLock.RLock()
	defer b.accLock.RUnlock()

	acc, ok := b.accounts[username]
	if !ok {
		return "", ErrNoSuchUser
	}

	return acc.seed, nil
}

// GetEmailCode returns the last code sent to the user.
func (b *Backend) GetEmailCode(username string) (string, error) {
	b.accLock.RLock()
	defer b.accLock.RUnlock()

	acc, ok := b.accounts[username]
	if !ok {
		return "", ErrNoSuchUser
	}

	return acc.emailCode, nil
}

func (b *Backend) LookupMethods(username string) ([]string, error) {
	b.accLock.RLock()
	defer b.accLock.RUnlock()

	acc, ok := b.accounts[username]
	if !ok {
		return nil, ErrNoSuchUser
	}

	return append([]string{}, acc.methods...), nil
}

// LoginPassword checks a password login and returns the redirect URL.
// Corporate logins carry the SHA-256 of the password, LDAP logins the password itself.
func (b *Backend) LoginPassword(sessionID, username, password, platform string) (string, error) {
	b.accLock.RLock()
	acc, ok := b.accounts[username]
	b.accLock.RUnlock()

	if !ok {
		return "", ErrNoSuchUser
	}

	want := acc.password
	if platform != corplink.PlatformLDAP {
		want = corplink.HashPassword(acc.password)
	}

	if password != want {
		return "", ErrBadCredentials
	}

	return b.login(sessionID, acc), nil
}

// SendEmailCode sends a fresh code to the user and ties it to the session.
func (b *Backend) SendEmailCode(sessionID, username string) error {
	code, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return err
	}

	b.accLock.Lock()
	acc, ok := b.accounts[username]
	if ok {
		acc.emailCode = fmt.Sprintf("%06d", code.Int64())
	}
	b.accLock.Unlock()

	if !ok {
		return ErrNoSuchUser
	}

	b.sesLock.Lock()
	defer b.sesLock.Unlock()

	b.getSession(sessionID).pending = username

	return nil
}

func (b *Backend) VerifyEmailCode(sessionID, code string) (string, error) {
	b.sesLock.Lock()
	username := b.getSession(sessionID).pending
	b.sesLock.Unlock()

	b.accLock.RLock()
	acc, ok := b.accounts[username]
	b.accLock.RUnlock()

	if !ok || acc.emailCode == "" || acc.emailCode != code {
		return "", ErrBadCredentials
	}

	return b.login(sessionID, acc), nil
}

// CheckToken logs in the user bound to a third-party token.
func (b *Backend) CheckToken(sessionID, token string) (string, error) {
	b.cfgLock.RLock()
	method, ok := b.tps[token]
	b.cfgLock.RUnlock()

	if !ok {
		return "", ErrBadCredentials
	}

	b.accLock.RLock()
	acc, ok := b.accounts[method.username]
	b.accLock.RUnlock()

	if !ok {
		return "", ErrNoSuchUser
	}

	return b.login(sessionID, acc), nil
}

// SessionUser returns the user logged in on the session.
func (b *Backend) SessionUser(sessionID string) (string, error) {
	b.sesLock.Lock()
	defer b.sesLock.Unlock()

	if s, ok := b.sessions[sessionID]; ok && s.username != "" {
		return s.username, nil
	}

	return "", ErrNotLoggedIn
}

// Logout ends the session.
func (b *Backend) Logout(sessionID string) {
	b.sesLock.Lock()
	defer b.sesLock.Unlock()

	delete(b.sessions, sessionID)
}

func (b *Backend) sessionAccount(sessionID string) (*account, error) {
	username, err := b.SessionUser(sessionID)
	if err != nil {
		return nil, err
	}

	b.accLock.RLock()
	defer b.accLock.RUnlock()

	acc, ok := b.accounts[username]
	if !ok {
		return nil, ErrNoSuchUser
	}

	return acc, nil
}

func (b *Backend) login(sessionID string, acc *account) string {
	b.sesLock.Lock()
	defer b.sesLock.Unlock()

	b.getSession(sessionID).username = acc.username

	redirect := url.URL{Scheme: "https", Host: b.domain, Path: "/login/success"}

	if acc.seed != "" {
		redirect.RawQuery = url.Values{"secret": {acc.seed}}.Encode()
	}

	return redirect.String()
}

func (b *Backend) getSession(sessionID string) *session {
	s, ok := b.sessions[sessionID]
	if !ok {
		s = &session{}
		b.sessions[sessionID] = s
	}

	return s
}
