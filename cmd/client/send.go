package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AxlAleT/Redes2/pkg/protocol"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <path>",
	Short: "Upload one file and log out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conn, err := login(ctx, cmd, bufio.NewReader(cmd.InOrStdin()))
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		ack, err := conn.Upload(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ack)

		if reply, err := conn.Logout(); err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), reply)
		}

		if !strings.HasPrefix(ack, protocol.ReplyFileOK+" ") {
			return fmt.Errorf("upload rejected: %s", ack)
		}
		return nil
	},
}
