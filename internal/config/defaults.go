package config

// Default ports match the launcher UI's expectations.
const (
	DefaultPort         = 5174
	DefaultInternalPort = 51740
)

// Files created inside the config directory.
const (
	DefaultControlSocketName = "control.sock"
	DefaultCertName          = "cert.pem"
	DefaultKeyName           = "key.pem"
	DefaultSecretName        = "signing.key"
)

// DefaultStaticDir holds the companion web client, relative to the working directory.
const DefaultStaticDir = "./remote-static"

const (
	DefaultApprovalTimeoutSec = 60
	DefaultInitiatedTTLSec    = 300
	DefaultApprovedTTLSec     = 300
	DefaultRegisterPerMinute  = 30
	DefaultInputBackend       = "auto"
)
