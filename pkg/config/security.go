package config

// SecurityConfig controls CURVE certificate storage and peer
// authorization for this rank's transport sockets.
type SecurityConfig struct {
	// CertDir is the directory holding this rank's own certificate
	// (<CertDir>/broker, <CertDir>/broker_private) and any peer public
	// certificates it needs to authorize.
	CertDir string `mapstructure:"cert_dir"`

	// ParentPubkey is the base64-encoded public key this rank expects
	// its parent to present during the CURVE handshake. Empty at rank 0.
	ParentPubkey string `mapstructure:"parent_pubkey"`

	// AuthorizedPeers lists the base64-encoded public keys (with an
	// associated role name) this rank will accept child connections
	// from, in "name=pubkey" form.
	AuthorizedPeers []string `mapstructure:"authorized_peers"`
}
