// Command aegis is the post-quantum peer-to-peer terminal chat client built
// on the session package. It exposes exactly two operations, matching a
// direct peer-to-peer connection model: one side listens, the other
// connects.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:     "aegis",
	Short:   "Post-quantum peer-to-peer terminal chat",
	Version: version.Short(),
	Long: `aegis is a post-quantum peer-to-peer terminal chat client.

It establishes a direct, authenticated, forward-secret channel to exactly
one peer using a Kyber-1024 key exchange and a double-ratchet message
schedule over XChaCha20-Poly1305, then hands the terminal over to a plain
read-a-line/send-a-line chat loop.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Commands are registered in their own files:
	// - listen.go: listenCmd
	// - connect.go: connectCmd
}

// exitCodeFor maps a terminal session error to the process exit codes: 0
// clean close, 1 usage error, 2 handshake failure, 3 transport failure, 4
// cryptographic failure (authentication, replay, desync).
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	var ae *aerr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case aerr.HandshakeFailed:
			return 2
		case aerr.IoError, aerr.Timeout:
			return 3
		case aerr.AuthFailed, aerr.Replay, aerr.RatchetDesync, aerr.SkewTooLarge, aerr.EntropyFailure, aerr.ProtocolError:
			return 4
		}
	}
	return 1
}
