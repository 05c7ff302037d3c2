package corplink

// Login method names used by the control plane.
const (
	PlatformLDAP      = "ldap"
	PlatformCorporate = "feilian"
	PlatformOIDC      = "OIDC"
	PlatformLark      = "lark"
	PlatformWeixin    = "weixin"
	PlatformDingTalk  = "dingtalk"
	PlatformAAD       = "aad"

	methodPassword = "password"
	methodEmail    = "email"
)

type LoginSetting struct {
	MFA         bool     `json:"mfa"`
	LoginOrders []string `json:"login_orders"`
}

// TPSLoginMethod describes a third-party login provider.
type TPSLoginMethod struct {
	Alias    string `json:"alias"`
	LoginURL string `json:"login_url"`
	Token    string `json:"token"`
}

// CorporateLoginMethods lists the credential kinds accepted for a user, e.g. password or email.
type CorporateLoginMethods struct {
	Auth []string `json:"auth"`
}

// LoginRes carries the redirect URL of a successful login. Its secret query parameter is the OTP seed.
type LoginRes struct {
	URL string `json:"url"`
}

type Company struct {
	Name             string `json:"name"`
	ZhName           string `json:"zh_name"`
	EnName           string `json:"en_name"`
	Domain           string `json:"domain"`
	EnableSelfSigned bool   `json:"enable_self_signed"`
	SelfSignedCert   string `json:"self_signed_cert"`
	EnablePublicKey  bool   `json:"enable_public_key"`
	PublicKey        string `json:"public_key"`
}

type CompanyReq struct {
	Code string `json:"code"`
}

type LookupReq struct {
	ForgetPassword bool   `json:"forget_password"`
	UserName       string `json:"user_name"`
}

type PasswordLoginReq struct {
	Platform string `json:"platform,omitempty"`
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

type SendCodeReq struct {
	ForgetPassword bool   `json:"forget_password"`
	CodeType       string `json:"code_type"`
	UserName       string `json:"user_name"`
}

type VerifyCodeReq struct {
	ForgetPassword bool   `json:"forget_password"`
	CodeType       string `json:"code_type"`
	Code           string `json:"code"`
}

type TokenCheckReq struct {
	Token string `json:"token"`
}

// LoginKind is the kind of a login method.
type LoginKind int

const (
	LoginUnsupported LoginKind = iota
	LoginPassword
	LoginEmail
	LoginThirdParty
	LoginCorporate
	LoginLDAP
)

func (k LoginKind) String() string {
	switch k {
	case LoginPassword:
		return "password"

	case LoginEmail:
		return "email"

	case LoginThirdParty:
		return "third-party"

	case LoginCorporate:
		return "corporate"

	case LoginLDAP:
		return "ldap"

	default:
		return "unsupported"
	}
}

// LoginMethod is a login method name resolved against the third-party descriptors.
type LoginMethod struct {
	Kind LoginKind
	Name string

	// Descriptor is set for third-party methods.
	Descriptor TPSLoginMethod
}
