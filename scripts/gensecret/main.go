// gensecret generates a random JWT signing secret for the transaction
// service.
//
// Usage (run from the repo root):
//
//	go run scripts/gensecret/main.go
//
// Prints a base64 secret suitable for JWT_SECRET. Production requires at
// least 32 characters; this emits 44. The server auto-generates an ephemeral
// secret in development when JWT_SECRET is unset, but that invalidates all
// tokens on every restart.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "error: generate secret: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(buf))
}
