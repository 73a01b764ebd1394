package cmd

import (
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/Lanchu14/project-realtime/internal/config"
	"github.com/Lanchu14/project-realtime/internal/ui"
	"github.com/Lanchu14/project-realtime/internal/version"
)

var (
	flagServer   string
	flagUser     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "bookchat",
	Short:   "Terminal client for booking chat and video sessions",
	Long:    `Bookchat connects to a booking's session room for real-time chat and one-to-one video calls. Chat history is fetched on entry and merged with live messages, so both participants see one consistent transcript no matter when they joined.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "session server base URL")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "display name (defaults to the OS username)")
	rootCmd.PersistentFlags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	rootCmd.PersistentFlags().StringVar(&flagTURN, "turn", "", "TURN server URL")
	rootCmd.PersistentFlags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	rootCmd.PersistentFlags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
}

func loadConfig() (*config.Client, error) {
	return config.LoadClient(config.Options{
		ServerURL:  flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
}

func userName() string {
	if flagUser != "" {
		return flagUser
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "guest"
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
