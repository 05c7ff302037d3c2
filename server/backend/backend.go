package backend

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/google/uuid"
)

// Backend holds the state of the fake control plane: accounts, sessions, login methods and endpoints.
type Backend struct {
	accounts map[string]*account
	accLock  sync.RWMutex

	sessions map[string]*session
	sesLock  sync.Mutex

	loginOrders []string
	tps         map[string]*tpsMethod
	vpns        []corplink.VPNInfo
	cfgLock     sync.RWMutex

	forcedLogouts int
	reports       []corplink.ReportReq
	stateLock     sync.Mutex

	domain  string
	peerKey string
}

func New(domain string) *Backend {
	return &Backend{
		accounts: make(map[string]*account),
		sessions: make(map[string]*session),
		tps:      make(map[string]*tpsMethod),

		domain:  domain,
		peerKey: randomKey(),
	}
}

// SetLoginOrders sets the login methods offered, in order.
func (b *Backend) SetLoginOrders(orders ...string) {
	b.cfgLock.Lock()
	defer b.cfgLock.Unlock()

	b.loginOrders = orders
}

func (b *Backend) GetLoginSetting() corplink.LoginSetting {
	b.cfgLock.RLock()
	defer b.cfgLock.RUnlock()

	return corplink.LoginSetting{LoginOrders: append([]string{}, b.loginOrders...)}
}

// AddThirdParty adds a third-party provider. Confirming its token logs in the given user.
func (b *Backend) AddThirdParty(alias, username string) corplink.TPSLoginMethod {
	b.cfgLock.Lock()
	defer b.cfgLock.Unlock()

	method := &tpsMethod{
		desc: corplink.TPSLoginMethod{
			Alias:    alias,
			LoginURL: fmt.Sprintf("https://%s/tps/%s/login", b.domain, alias),
			Token:    uuid.NewString(),
		},
		username: username,
	}

	b.tps[method.desc.Token] = method

	return method.desc
}

func (b *Backend) GetThirdParties() []corplink.TPSLoginMethod {
	b.cfgLock.RLock()
	defer b.cfgLock.RUnlock()

	var methods []corplink.TPSLoginMethod

	for _, method := range b.tps {
		methods = append(methods, method.desc)
	}

	return methods
}

// AddVPN adds an endpoint to the list handed out to logged in users.
func (b *Backend) AddVPN(info corplink.VPNInfo) {
	b.cfgLock.Lock()
	defer b.cfgLock.Unlock()

	b.vpns = append(b.vpns, info)
}

func (b *Backend) GetVPNs() []corplink.VPNInfo {
	b.cfgLock.RLock()
	defer b.cfgLock.RUnlock()

	return append([]corplink.VPNInfo{}, b.vpns...)
}

// ForceLogout makes the next n authenticated calls end their session.
func (b *Backend) ForceLogout(n int) {
	b.stateLock.Lock()
	defer b.stateLock.Unlock()

	b.forcedLogouts = n
}

func (b *Backend) ConsumeForcedLogout() bool {
	b.stateLock.Lock()
	defer b.stateLock.Unlock()

	if b.forcedLogouts == 0 {
		return false
	}

	b.forcedLogouts--

	return true
}

func (b *Backend) AddReport(report corplink.ReportReq) {
	b.stateLock.Lock()
	defer b.stateLock.Unlock()

	b.reports = append(b.reports, report)
}

func (b *Backend) GetReports() []corplink.ReportReq {
	b.stateLock.Lock()
	defer b.stateLock.Unlock()

	return append([]corplink.ReportReq{}, b.reports...)
}

func (b *Backend) GetPeerKey() string {
	return b.peerKey
}

// Connect checks the OTP of the session's user at the given server time and returns the peer info.
func (b *Backend) Connect(sessionID, publicKey, otp string, now time.Time) (corplink.WgInfo, error) {
	acc, err := b.sessionAccount(sessionID)
	if err != nil {
		return corplink.WgInfo{}, err
	}

	if publicKey == "" {
		return corplink.WgInfo{}, fmt.Errorf("missing public key")
	}

	if !acc.checkOTP(otp, now) {
		return corplink.WgInfo{}, fmt.Errorf("invalid otp %q", otp)
	}

	return corplink.WgInfo{
		IP:              "10.10.0.2",
		IPv6:            "fd10::2",
		IPMask:          "32",
		PublicKey:       b.peerKey,
		ProtocolVersion: "v2",
		Setting: corplink.WgSetting{
			VPNMTU:        1400,
			VPNDNS:        "10.10.0.53",
			VPNRouteSplit: []string{"10.10.0.0/16", "10.20.0.1"},
			V6RouteSplit:  []string{"fd10::/64"},
		},
		Mode: 1,
	}, nil
}

func randomKey() string {
	key := make([]byte, 32)

	if _, err := rand.Read(key); err != nil {
		panic(err)
	}

	return base64.StdEncoding.EncodeToString(key)
}
