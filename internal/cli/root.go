package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "txctl",
	Short: "txctl is the operator CLI for a transcription orchestrator",
	Long:  `txctl submits audio files for transcription and polls job status and results over the orchestrator's HTTP ingress.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitConfig)
	rootCmd.PersistentFlags().String("server", "", "orchestrator server URL (overrides config)")
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
}
