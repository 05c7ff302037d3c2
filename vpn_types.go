package corplink

import "strconv"

// Protocol modes of a VPN endpoint.
const (
	ProtocolTCP = 1
	ProtocolUDP = 2
)

// VPNInfo is a candidate VPN endpoint.
type VPNInfo struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	EnName       string `json:"en_name"`
	Icon         string `json:"icon"`
	IP           string `json:"ip"`
	APIPort      int    `json:"api_port"`
	VPNPort      int    `json:"vpn_port"`
	ProtocolMode int    `json:"protocol_mode"`
	Timeout      int    `json:"timeout"`
}

// APIHost is the base URL of the endpoint's API.
func (info VPNInfo) APIHost() string {
	return "https://" + info.apiAddr()
}

func (info VPNInfo) apiAddr() string {
	return info.IP + ":" + strconv.Itoa(info.APIPort)
}

func (info VPNInfo) vpnAddr() string {
	return info.IP + ":" + strconv.Itoa(info.VPNPort)
}

func (info VPNInfo) ModeName() string {
	switch info.ProtocolMode {
	case ProtocolTCP:
		return "tcp"

	case ProtocolUDP:
		return "udp"

	default:
		return "unknown protocol"
	}
}

type WgSetting struct {
	VPNMTU            int      `json:"vpn_mtu"`
	VPNDNS            string   `json:"vpn_dns"`
	VPNDNSBackup      string   `json:"vpn_dns_backup"`
	VPNDNSDomainSplit []string `json:"vpn_dns_domain_split"`
	VPNRouteFull      []string `json:"vpn_route_full"`
	VPNRouteSplit     []string `json:"vpn_route_split"`
	V6RouteSplit      []string `json:"v6_route_split"`
}

// WgInfo is the peer configuration handed out by a VPN endpoint.
type WgInfo struct {
	IP              string    `json:"ip"`
	IPv6            string    `json:"ipv6"`
	IPMask          string    `json:"ip_mask"`
	PublicKey       string    `json:"public_key"`
	ProtocolVersion string    `json:"protocol_version"`
	Setting         WgSetting `json:"setting"`
	Mode            int       `json:"mode"`
}

type ConnReq struct {
	PublicKey string `json:"public_key"`
	OTP       string `json:"otp"`
}

// Report types.
const (
	reportKeepAlive  = "100"
	reportDisconnect = "101"

	reportModeSplit = "Split"
)

type ReportReq struct {
	IP        string `json:"ip"`
	PublicKey string `json:"public_key"`
	Mode      string `json:"mode"`
	Type      string `json:"type"`
}

// TunnelParams is everything needed to bring the tunnel up.
// Only Client.Connect issues them.
type TunnelParams struct {
	// Address is the local v4 address in CIDR form; Address6 the optional v6 one.
	Address  string
	Address6 string

	// PeerAddress is the endpoint's ip:vpn_port.
	PeerAddress string

	MTU int

	// Keys are base64 encoded.
	PublicKey  string
	PrivateKey string
	PeerKey    string

	Routes []string
	DNS    string

	// Protocol is the transport mode of the endpoint, ProtocolTCP or ProtocolUDP.
	Protocol        int
	ProtocolVersion string

	// APIHost is the endpoint's API base URL, used for keep-alive and disconnect.
	APIHost string

	issued bool
}
