package cmd

import (
	"os"

	"github.com/BioHazard786/Roomdrop/internal/config"
	"github.com/BioHazard786/Roomdrop/internal/ui"
	"github.com/BioHazard786/Roomdrop/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagRelayURL   string
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagForceRelay bool
	flagChunkSize  int
	flagOutputDir  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomdrop",
	Short: "Share files and chat peer-to-peer through a short room code",
	Long: `Roomdrop connects two parties directly over WebRTC using nothing but a short
room code. A signaling relay only carries the connection handshake; files and
chat travel straight between the peers.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRelayURL, "relay", "", `signaling relay websocket URL, or "auto" to find one on the LAN (env RELAY_URL)`)
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URLs, comma separated (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.BoolVar(&flagForceRelay, "force-relay", false, "only use TURN relay candidates (env FORCE_RELAY)")
	pf.IntVar(&flagChunkSize, "chunk-size", 0, "file chunk size in bytes (env CHUNK_SIZE)")
	pf.StringVarP(&flagOutputDir, "dir", "d", "", "directory for received files (env OUTPUT_DIR)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		RelayURL:   flagRelayURL,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagForceRelay,
		ChunkSize:  flagChunkSize,
		OutputDir:  flagOutputDir,
	})
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
