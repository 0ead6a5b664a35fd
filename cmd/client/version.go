package main

import (
	"github.com/spf13/cobra"

	"github.com/AxlAleT/Redes2/pkg/version"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version.Print(cmd.OutOrStdout(), "chat-client")
		},
	})
}
