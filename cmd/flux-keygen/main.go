// Command flux-keygen generates a CURVE certificate for a broker rank or
// a client role and writes it under a certificate directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/flux-framework/flux-go/pkg/security"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("flux-keygen", pflag.ExitOnError)
	dir := fs.StringP("cert-dir", "d", "./certs", "directory to write the certificate pair into")
	role := fs.StringP("role", "r", "broker", "role name to embed in the certificate")
	force := fs.BoolP("force", "f", false, "overwrite an existing certificate")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cert, err := security.Generate(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate keypair:", err)
		return 1
	}
	if err := security.Save(*dir, cert, *force); err != nil {
		fmt.Fprintln(os.Stderr, "save certificate:", err)
		return 1
	}

	fmt.Printf("wrote %s/%s and %s/%s_private\n", *dir, *role, *dir, *role)
	return 0
}
