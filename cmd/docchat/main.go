package main

import (
	"os"

	"github.com/spf13/cobra"
)

var gatewayURL string

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with a PDF from the terminal",
	Long: `docchat drives the document chat service: upload a PDF to get a
shareable session path, then open a conversation on that path.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", defaultGateway(), "gateway base URL")
}

func defaultGateway() string {
	if v := os.Getenv("DOCCHAT_GATEWAY_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
