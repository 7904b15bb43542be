// Package security implements CURVE (Curve25519) keypair management and
// the in-process ZAP-equivalent authentication responder that gates
// inbound transport sessions.
package security

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/flux-framework/flux-go/pkg/message"
)

// KeySize is the length in bytes of a Curve25519 public or private key.
const KeySize = 32

// Certificate is a long-term CURVE keypair for one role. Private is the
// zero value when the certificate was loaded from a public-only file.
type Certificate struct {
	Role    string
	Public  [KeySize]byte
	Private [KeySize]byte
	hasPriv bool
}

// HasPrivate reports whether this certificate carries a private key.
func (c *Certificate) HasPrivate() bool { return c.hasPriv }

// certDoc is the on-disk YAML representation of a certificate file.
type certDoc struct {
	Role    string `yaml:"role"`
	Public  string `yaml:"public"`
	Private string `yaml:"private,omitempty"`
}

// Generate creates a fresh CURVE keypair for role. It does not touch disk.
func Generate(role string) (*Certificate, error) {
	pub, priv, err := genKeypair()
	if err != nil {
		return nil, errors.Wrap(err, "generate curve keypair")
	}
	return &Certificate{Role: role, Public: pub, Private: priv, hasPriv: true}, nil
}

// Save writes the public file (<dir>/<role>) and, if c has a private key,
// the private file (<dir>/<role>_private) with mode 0600. Refuses to
// overwrite either file unless force is true.
func Save(dir string, c *Certificate, force bool) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "create certificate directory")
	}
	pubPath := filepath.Join(dir, c.Role)
	if err := writeDoc(pubPath, certDoc{Role: c.Role, Public: enc(c.Public[:])}, 0644, force); err != nil {
		return err
	}
	if !c.hasPriv {
		return nil
	}
	privPath := filepath.Join(dir, c.Role+"_private")
	doc := certDoc{Role: c.Role, Public: enc(c.Public[:]), Private: enc(c.Private[:])}
	return writeDoc(privPath, doc, 0600, force)
}

func writeDoc(path string, doc certDoc, mode os.FileMode, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("certificate file already exists: %s (use force to overwrite)", path)
		}
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshal certificate")
	}
	return os.WriteFile(path, b, mode)
}

// LoadPublic loads a public-only certificate file. Any mode is accepted.
func LoadPublic(path string) (*Certificate, error) {
	doc, _, err := readDoc(path)
	if err != nil {
		return nil, err
	}
	pub, err := dec(doc.Public)
	if err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	c := &Certificate{Role: doc.Role}
	copy(c.Public[:], pub)
	return c, nil
}

// LoadPrivate loads a private certificate file, rejecting files readable
// by group or world, and missing files, per the security invariant that a
// private key must never be loaded from a world-readable path.
func LoadPrivate(path string) (*Certificate, error) {
	doc, info, err := readDoc(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "%s not found; run flux-keygen to create it", path)
		}
		return nil, err
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, &message.CertPermissionError{Path: path}
	}
	pub, err := dec(doc.Public)
	if err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	priv, err := dec(doc.Private)
	if err != nil {
		return nil, errors.Wrap(err, "decode private key")
	}
	c := &Certificate{Role: doc.Role, hasPriv: true}
	copy(c.Public[:], pub)
	copy(c.Private[:], priv)
	return c, nil
}

func readDoc(path string) (certDoc, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return certDoc{}, nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return certDoc{}, nil, errors.Wrap(err, "read certificate file")
	}
	var doc certDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return certDoc{}, nil, errors.Wrap(err, "parse certificate file")
	}
	return doc, info, nil
}

func enc(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func dec(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
