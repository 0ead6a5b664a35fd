package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AxlAleT/Redes2/pkg/client"
	"github.com/AxlAleT/Redes2/pkg/logging"
	"github.com/AxlAleT/Redes2/pkg/protocol"
)

var opts struct {
	addr     string
	user     string
	password string
}

var rootCmd = &cobra.Command{
	Use:           "chat-client",
	Short:         "Interactive client for the chat server",
	Long:          "Connects to the chat server, authenticates and starts an interactive session.\nType /enviar <path> to upload a file and salir to leave.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return logging.Setup(logging.OptionsFromEnv(os.Getenv, "CHAT_", cmd.ErrOrStderr()))
	},
	RunE: runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.addr, "addr", "a", fmt.Sprintf("127.0.0.1:%d", protocol.DefaultPort), "server address host:port")
	pf.StringVarP(&opts.user, "user", "u", "", "username (prompted if empty)")
	pf.StringVarP(&opts.password, "password", "p", "", "password (prompted without echo if empty)")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(cmd.InOrStdin())
	conn, err := login(ctx, cmd, in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "connected to %s, type %s <path> to send a file or %s to quit\n",
		opts.addr, client.SendCommand, protocol.KeywordLogout)
	return client.NewFrontEnd(conn, out).Run(ctx, in)
}

// login prompts for missing credentials, connects and authenticates. Prompts
// go to stderr so stdout carries only chat output.
func login(ctx context.Context, cmd *cobra.Command, in *bufio.Reader) (*client.Conn, error) {
	user, secret := opts.user, opts.password
	var err error
	if user == "" {
		if user, err = client.PromptLine(in, cmd.ErrOrStderr(), "username: "); err != nil {
			return nil, err
		}
	}
	if secret == "" {
		if secret, err = client.PromptSecret(in, cmd.ErrOrStderr(), "password: "); err != nil {
			return nil, err
		}
	}

	conn, err := client.Dial(ctx, opts.addr)
	if err != nil {
		return nil, err
	}
	if err := conn.Authenticate(user, secret); err != nil {
		_ = conn.Close()
		return nil, err
	}
	slog.Debug("authenticated", "user", user, "addr", opts.addr)
	return conn, nil
}
