// Package device models remote devices and tracks them through pairing:
// initiated, pending operator approval, approved and actively connected.
package device

import (
	"strings"

	"github.com/google/uuid"
)

// Agent is a coarse device class taken from the User-Agent header.
// It is shown to the operator and never used for trust decisions.
type Agent string

const (
	AgentAndroid Agent = "Android"
	AgentIPhone  Agent = "IPhone"
	AgentDesktop Agent = "Desktop"
	AgentUnknown Agent = "Unknown"
)

// DefaultName is used when a device registers without a name.
const DefaultName = "Unknown Device"

// Identity is fixed at registration and copied into every registry record.
type Identity struct {
	UUID  uuid.UUID `json:"uuid"`
	Name  string    `json:"name"`
	Agent Agent     `json:"agent"`
	Code  string    `json:"code"`
}

// ClassifyAgent maps a User-Agent header to an Agent.
func ClassifyAgent(userAgent string) Agent {
	switch {
	case strings.Contains(userAgent, "Android"):
		return AgentAndroid
	case strings.Contains(userAgent, "iPhone"):
		return AgentIPhone
	case strings.Contains(userAgent, "Windows"),
		strings.Contains(userAgent, "Macintosh"),
		strings.Contains(userAgent, "X11"):
		return AgentDesktop
	default:
		return AgentUnknown
	}
}
