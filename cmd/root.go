// Package cmd implements the command-line interface for tubeflow.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tubeflow-cli/tubeflow/color"
	"github.com/tubeflow-cli/tubeflow/constant"
	"github.com/tubeflow-cli/tubeflow/icon"
	"github.com/tubeflow-cli/tubeflow/key"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/style"
	"github.com/tubeflow-cli/tubeflow/util"
	"github.com/tubeflow-cli/tubeflow/version"
	"github.com/tubeflow-cli/tubeflow/where"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the visual icon variant (e.g., nerd, emoji, plain)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.IconsVariant, rootCmd.PersistentFlags().Lookup("icons")))

	rootCmd.PersistentFlags().StringP("quality", "q", "", "Preferred playback quality (auto, 480, 720p, 1080p60, ...)")
	lo.Must0(viper.BindPFlag(key.PlaybackQuality, rootCmd.PersistentFlags().Lookup("quality")))

	rootCmd.PersistentFlags().StringP("format", "f", "", "Preferred delivery format (dash, legacy, audio)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return availableFormats, cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.PlaybackFormat, rootCmd.PersistentFlags().Lookup("format")))

	helpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpFunc(cmd, args)
		version.Notify()
	})

	// Cleanup of staged manifests and caption files from previous runs.
	go func() {
		_ = util.Delete(where.Temp())
	}()
}

// rootCmd defines the entry point for the tubeflow application.
var rootCmd = &cobra.Command{
	Use:   constant.Tubeflow,
	Short: "A minimalist command-line client for adaptive video playback",
	Long: constant.AsciiArtLogo + "\n" +
		style.New().Italic(true).Foreground(color.HiRed).Render("    - A minimalist command-line client for adaptive video playback"),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		handleErr(cmd.Help())
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", icon.Get(icon.Fail), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
