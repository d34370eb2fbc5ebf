package patcher

import "github.com/samber/lo"

const (
	outboundProtocol   = "vless"
	realityFingerprint = "firefox"
)

// XrayConfig is the generated document, one outbound per subscription.
type XrayConfig struct {
	Outbounds []OutboundConfig `json:"outbounds"`
}

func NewXrayConfig(outbounds ...OutboundConfig) *XrayConfig {
	return &XrayConfig{Outbounds: append(make([]OutboundConfig, 0, len(outbounds)), outbounds...)}
}

// Tags lists outbound tags in document order.
func (c *XrayConfig) Tags() []string {
	return lo.Map(c.Outbounds, func(o OutboundConfig, _ int) string {
		return o.Tag
	})
}

type OutboundConfig struct {
	Tag            string           `json:"tag"`
	Protocol       string           `json:"protocol"`
	Settings       OutboundSettings `json:"settings"`
	StreamSettings StreamSettings   `json:"streamSettings"`
}

type OutboundSettings struct {
	Vnext []VnextServer `json:"vnext"`
}

type VnextServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VnextUser `json:"users"`
}

type VnextUser struct {
	ID         string `json:"id"`
	Encryption string `json:"encryption"`
	Flow       string `json:"flow"`
}

type StreamSettings struct {
	Network         string          `json:"network"`
	Security        string          `json:"security"`
	RealitySettings RealitySettings `json:"realitySettings"`
}

type RealitySettings struct {
	ServerName  string `json:"serverName"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"publicKey"`
	SpiderX     string `json:"spiderX,omitempty"`
	ShortID     string `json:"shortId,omitempty"`
}

// BuildOutbound maps a subscription and its decoded proxy URL to an Xray vless outbound.
func BuildOutbound(sub Subscription, c *ProxyCredentials) OutboundConfig {
	return OutboundConfig{
		Tag:      sub.Tag,
		Protocol: outboundProtocol,
		Settings: OutboundSettings{
			Vnext: []VnextServer{{
				Address: c.Address,
				Port:    c.Port,
				Users: []VnextUser{{
					ID:         c.UserID,
					Encryption: c.Encryption,
					Flow:       c.Flow,
				}},
			}},
		},
		StreamSettings: StreamSettings{
			Network:  c.Network,
			Security: c.Security,
			RealitySettings: RealitySettings{
				ServerName:  c.ServerName,
				Fingerprint: realityFingerprint,
				PublicKey:   c.PublicKey,
				SpiderX:     c.SpiderX,
				ShortID:     c.ShortID,
			},
		},
	}
}
