package corplink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

// Login drives the account into the Login state, trying each login method in server order.
// The OTP seed found in the redirect URL of the first successful method is persisted.
func (c *Client) Login(ctx context.Context) error {
	setting, err := do[LoginSetting](ctx, c, "", "/api/login/setting", nil)
	if err != nil {
		return fmt.Errorf("failed to get login methods: %w", err)
	}

	tps, err := do[[]TPSLoginMethod](ctx, c, "", "/api/tpslogin/link", nil)
	if err != nil {
		return fmt.Errorf("failed to get third-party login methods: %w", err)
	}

	methods := resolveLoginMethods(setting.LoginOrders, tps)

	logrus.WithFields(logrus.Fields{
		"pkg":     "go-corplink",
		"methods": setting.LoginOrders,
		"mfa":     setting.MFA,
	}).Info("Resolved login methods")

	for _, method := range methods {
		if err := ctx.Err(); err != nil {
			return err
		}

		log := logrus.WithFields(logrus.Fields{
			"pkg":    "go-corplink",
			"method": method.Name,
			"kind":   method.Kind,
		})

		if method.Kind == LoginUnsupported {
			log.Info("Skipping unsupported login method")
			continue
		}

		if !c.platformAllowed(method.Name) {
			log.WithField("platform", c.creds.Platform).Info("Skipping login method not matching platform")
			continue
		}

		log.Info("Trying to login")

		redirect, err := c.loginWith(ctx, method)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			log.WithError(err).Warn("Failed to login")

			continue
		}

		if redirect == "" {
			log.Warn("Login returned no redirect URL")
			continue
		}

		return c.finishLogin(redirect)
	}

	return ErrNoLoginMethod
}

func (c *Client) platformAllowed(name string) bool {
	return c.creds.Platform == "" || c.creds.Platform == name
}

func (c *Client) loginWith(ctx context.Context, method LoginMethod) (string, error) {
	switch method.Kind {
	case LoginThirdParty:
		return c.thirdPartyLogin(ctx, method.Descriptor)

	case LoginCorporate:
		return c.corporateLogin(ctx)

	case LoginLDAP:
		return c.ldapLogin(ctx)

	default:
		return "", fmt.Errorf("unsupported login method %q", method.Name)
	}
}

func (c *Client) finishLogin(redirect string) error {
	u, err := url.Parse(redirect)
	if err != nil {
		return fmt.Errorf("failed to parse login redirect: %w", err)
	}

	seed := u.Query().Get("secret")

	switch _, prev := c.State(); {
	case seed != "":
		logrus.WithField("pkg", "go-corplink").Info("Logged in and got OTP secret")

	case prev != "":
		logrus.WithField("pkg", "go-corplink").Info("Logged in, keeping the known OTP secret")
		seed = prev

	default:
		logrus.WithField("pkg", "go-corplink").Warn("Logged in without an OTP secret, codes will be asked for")
	}

	return c.setState(StateLogin, seed)
}

func (c *Client) thirdPartyLogin(ctx context.Context, desc TPSLoginMethod) (string, error) {
	switch desc.Alias {
	case PlatformLark, PlatformOIDC:
		c.console.Display(fmt.Sprintf("Visit the following link to authenticate, then press enter:\n%s\ntoken: %s", desc.LoginURL, desc.Token))

		if _, err := c.console.ReadLine(ctx); err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}

		res, err := do[LoginRes](ctx, c, "", "/api/tpslogin/token/check", TokenCheckReq{Token: desc.Token})
		if err != nil {
			return "", err
		}

		return res.URL, nil

	default:
		return "", fmt.Errorf("unsupported third-party platform %q", desc.Alias)
	}
}

func (c *Client) lookupMethods(ctx context.Context) ([]LoginMethod, error) {
	res, err := do[CorporateLoginMethods](ctx, c, "", "/api/lookup", LookupReq{UserName: c.creds.Username})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user login methods: %w", err)
	}

	return resolveUserMethods(res.Auth), nil
}

func (c *Client) corporateLogin(ctx context.Context) (string, error) {
	methods, err := c.lookupMethods(ctx)
	if err != nil {
		return "", err
	}

	for _, method := range methods {
		switch method.Kind {
		case LoginPassword:
			if c.creds.Password == "" {
				logrus.WithField("pkg", "go-corplink").Info("No password configured, trying other methods")
				continue
			}

			return c.passwordLogin(ctx, PlatformCorporate)

		case LoginEmail:
			return c.emailLogin(ctx)

		default:
			logrus.WithFields(logrus.Fields{
				"pkg":    "go-corplink",
				"method": method.Name,
			}).Info("Unsupported user login method, trying other methods")
		}
	}

	return "", errors.New("no usable corporate login method")
}

func (c *Client) ldapLogin(ctx context.Context) (string, error) {
	// The server rejects LDAP logins not preceded by a lookup.
	methods, err := c.lookupMethods(ctx)
	if err != nil {
		return "", err
	}

	if xslices.IndexFunc(methods, func(method LoginMethod) bool { return method.Kind == LoginPassword }) < 0 {
		return "", errors.New("ldap login requires the password method")
	}

	if c.creds.Password == "" {
		return "", errors.New("no password provided")
	}

	return c.passwordLogin(ctx, PlatformLDAP)
}

func (c *Client) passwordLogin(ctx context.Context, platform string) (string, error) {
	req := PasswordLoginReq{UserName: c.creds.Username}

	switch platform {
	case PlatformLDAP:
		req.Platform = PlatformLDAP
		req.Password = c.creds.Password

	case PlatformCorporate:
		req.Password = HashPassword(c.creds.Password)

	default:
		return "", fmt.Errorf("invalid password platform %q", platform)
	}

	res, err := do[LoginRes](ctx, c, "", "/api/login", req)
	if err != nil {
		return "", err
	}

	return res.URL, nil
}

func (c *Client) emailLogin(ctx context.Context) (string, error) {
	if _, err := do[struct{}](ctx, c, "", "/api/login/code/send", SendCodeReq{
		CodeType: methodEmail,
		UserName: c.creds.Username,
	}); err != nil {
		return "", fmt.Errorf("failed to request email code: %w", err)
	}

	c.console.Display("Enter the code sent to your email:")

	code, err := c.console.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read email code: %w", err)
	}

	res, err := do[LoginRes](ctx, c, "", "/api/login/code/verify", VerifyCodeReq{
		CodeType: methodEmail,
		Code:     code,
	})
	if err != nil {
		return "", err
	}

	return res.URL, nil
}

// HashPassword returns the lowercase hex SHA-256 of the password.
// A password that already is a 64 character hex string is returned unchanged.
func HashPassword(password string) string {
	if len(password) == sha256.Size*2 {
		if _, err := hex.DecodeString(password); err == nil {
			return password
		}
	}

	sum := sha256.Sum256([]byte(password))

	return hex.EncodeToString(sum[:])
}

// resolveLoginMethods resolves the server's login order against the third-party descriptors.
func resolveLoginMethods(orders []string, tps []TPSLoginMethod) []LoginMethod {
	descriptors := make(map[string]TPSLoginMethod, len(tps))

	for _, desc := range tps {
		descriptors[desc.Alias] = desc
	}

	aliases := maps.Keys(descriptors)
	sort.Strings(aliases)

	logrus.WithFields(logrus.Fields{
		"pkg":     "go-corplink",
		"aliases": aliases,
	}).Debug("Found third-party login providers")

	return xslices.Map(orders, func(name string) LoginMethod {
		if desc, ok := descriptors[name]; ok {
			return LoginMethod{Kind: LoginThirdParty, Name: name, Descriptor: desc}
		}

		switch name {
		case PlatformCorporate:
			return LoginMethod{Kind: LoginCorporate, Name: name}

		case PlatformLDAP:
			return LoginMethod{Kind: LoginLDAP, Name: name}

		default:
			return LoginMethod{Kind: LoginUnsupported, Name: name}
		}
	})
}

// resolveUserMethods resolves the credential kinds returned by a user lookup.
func resolveUserMethods(auth []string) []LoginMethod {
	return xslices.Map(auth, func(name string) LoginMethod {
		switch name {
		case methodPassword:
			return LoginMethod{Kind: LoginPassword, Name: name}

		case methodEmail:
			return LoginMethod{Kind: LoginEmail, Name: name}

		default:
			return LoginMethod{Kind: LoginUnsupported, Name: name}
		}
	})
}
