package security

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"
)

func genKeypair() (pub, priv [KeySize]byte, err error) {
	p, s, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return pub, priv, err
	}
	return *p, *s, nil
}
