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

var listenFlags runtimeFlags
var listenPort uint16

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for one peer to connect and start a chat session",
	Long: `Listen opens a TCP socket, accepts a single inbound connection, runs the
responder side of the handshake, and hands the terminal to a chat loop.

Only one peer is served per invocation, matching the peer-to-peer model:
run aegis listen again to accept another.`,
	Example: `  # Plain TCP, default port
  aegis listen --port 7777

  # TLS, with a local test certificate
  aegis listen --port 7777 --tls --cert-file server.pem --key-file server.key`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().Uint16VarP(&listenPort, "port", "p", 7777, "TCP port to listen on")
	listenCmd.Flags().BoolVar(&listenFlags.useTLS, "tls", false, "wrap the accepted connection in TLS 1.3")
	listenCmd.Flags().StringVar(&listenFlags.certFile, "cert-file", "", "PEM certificate file (required with --tls)")
	listenCmd.Flags().StringVar(&listenFlags.keyFile, "key-file", "", "PEM private key file (required with --tls)")
	listenCmd.Flags().IntVar(&listenFlags.rotationSeconds, "rotation-interval", 0, "ratchet rotation interval in seconds (default: session package default)")
	listenCmd.Flags().StringVar(&listenFlags.configDir, "config-dir", "", "directory to load <environment>.yaml/default.yaml/config.yaml from (default: ./config)")
}

func runListen(cmd *cobra.Command, args []string) error {
	sessCfg, log, fileCfg := loadRuntime(listenFlags)

	addr := fmt.Sprintf(":%d", listenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return aerr.Wrap(aerr.IoError, "listen", err)
	}
	defer ln.Close()
	log.Info("waiting for a peer", logger.String("addr", addr))

	nc, err := ln.Accept()
	if err != nil {
		return aerr.Wrap(aerr.IoError, "accept", err)
	}
	log.Info("peer connected", logger.String("remote_addr", nc.RemoteAddr().String()))

	var t transport.Transport
	if listenFlags.useTLS {
		tlsCfg, err := serverTLSConfig(listenFlags)
		if err != nil {
			nc.Close()
			return err
		}
		t, err = transport.WrapServer(nc, tlsCfg)
		if err != nil {
			nc.Close()
			return err
		}
	} else {
		t = transport.NewConn(nc)
	}

	sess, err := session.Accept(t, sessCfg, log)
	if err != nil {
		return err
	}
	log.Info("session established", logger.String("session_id", sess.ID()))
	fmt.Printf("connected to peer. type a message and press enter; ctrl-d to quit.\n")

	return runChat(sess, fileCfg, log)
}
