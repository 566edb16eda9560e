package main

/*
	Definition for the main medgfx command tree. Archive subcommands
	inspect and unpack ZIP containers; stream subcommands handle
	standalone gzip/zlib/deflate payloads.
*/

import (
	"os"

	"github.com/niivue/medgfx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "devel"

	// verbose switches the logger to debug level.
	verbose bool

	// limitsFile optionally points at a YAML document overriding the
	// default decompression ceilings.
	limitsFile string

	// limits are the ceilings all subcommands operate under.
	limits = medgfx.DefaultLimits()

	cmdRoot = &cobra.Command{
		Use:   "medgfx [command]",
		Short: "Compressed imaging payload tool",
		Long: `Compressed imaging payload tool
Inspects and unpacks ZIP archives and standalone compressed streams`,
		PersistentPreRun: preRun,
	}

	cmdVersion = &cobra.Command{
		Use:   "version",
		Short: "Print the version number and exit.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s version %s\n", cmd.Root().Name(), version)
		},
	}
)

func init() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)

	cmdRoot.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmdRoot.PersistentFlags().StringVarP(&limitsFile, "limits", "L", "", "location of a YAML limits document")
	cmdRoot.AddCommand(cmdVersion)
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// preRun applies logging and limits overrides before any subcommand runs.
func preRun(c *cobra.Command, args []string) {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	if limitsFile == "" {
		return
	}
	l, err := medgfx.LimitsFromFile(limitsFile)
	if err != nil {
		log.WithError(err).Fatal("failed to read limits file")
	}
	limits = l
	log.WithFields(log.Fields{
		"max_entry_size":   limits.MaxEntrySize,
		"max_decoded_size": limits.MaxDecodedSize,
	}).Debug("Using limits overrides")
}
