package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/session"
	"github.com/aegis-chat/aegis/transport"
)

var connectFlags runtimeFlags

var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Connect to a listening peer and start a chat session",
	Long: `Connect dials a peer already running "aegis listen", runs the initiator
side of the handshake, and hands the terminal to a chat loop.`,
	Example: `  # Plain TCP
  aegis connect 127.0.0.1:7777

  # TLS, skipping verification against a self-signed test certificate
  aegis connect example.com:7777 --tls --insecure-skip-verify`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().BoolVar(&connectFlags.useTLS, "tls", false, "wrap the dialed connection in TLS 1.3")
	connectCmd.Flags().StringVar(&connectFlags.serverName, "server-name", "", "TLS server name for SNI and verification (default: host from the address)")
	connectCmd.Flags().BoolVar(&connectFlags.insecureSkipVrfy, "insecure-skip-verify", false, "skip TLS certificate verification (local testing only)")
	connectCmd.Flags().IntVar(&connectFlags.rotationSeconds, "rotation-interval", 0, "ratchet rotation interval in seconds (default: session package default)")
	connectCmd.Flags().StringVar(&connectFlags.configDir, "config-dir", "", "directory to load <environment>.yaml/default.yaml/config.yaml from (default: ./config)")
}

func runConnect(cmd *cobra.Command, args []string) error {
	addr := args[0]
	sessCfg, log, fileCfg := loadRuntime(connectFlags)

	if connectFlags.useTLS && connectFlags.serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err == nil {
			connectFlags.serverName = host
		}
	}

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return aerr.Wrap(aerr.IoError, "dial", err)
	}

	var t transport.Transport
	if connectFlags.useTLS {
		t, err = transport.WrapClient(nc, clientTLSConfig(connectFlags))
		if err != nil {
			nc.Close()
			return err
		}
	} else {
		t = transport.NewConn(nc)
	}

	log.Info("connecting to peer", logger.String("addr", addr))
	sess, err := session.Dial(t, sessCfg, log)
	if err != nil {
		return err
	}
	log.Info("session established", logger.String("session_id", sess.ID()))
	fmt.Printf("connected to peer. type a message and press enter; ctrl-d to quit.\n")

	return runChat(sess, fileCfg, log)
}
