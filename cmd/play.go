// Package cmd implements the command-line interface for tubeflow.
package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tubeflow-cli/tubeflow/engine"
	"github.com/tubeflow-cli/tubeflow/filterchain"
	"github.com/tubeflow-cli/tubeflow/icon"
	"github.com/tubeflow-cli/tubeflow/key"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/media"
	"github.com/tubeflow-cli/tubeflow/network"
	"github.com/tubeflow-cli/tubeflow/playback"
	"github.com/tubeflow-cli/tubeflow/skip"
	"github.com/tubeflow-cli/tubeflow/toast"
	"golang.org/x/text/language"
)

// availableFormats lists the delivery formats a session can start in.
var availableFormats = []string{
	string(playback.FormatDash),
	string(playback.FormatLegacy),
	string(playback.FormatAudio),
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().String("video-id", "", "Video id used for skip-segment lookup")
	playCmd.Flags().StringP("title", "t", "", "Display title for the player window")
	playCmd.Flags().Float64("start", 0, "Start position in seconds")
	playCmd.Flags().Bool("live", false, "Treat the manifest as live content")
	playCmd.Flags().Bool("proxied", false, "Treat the manifest as gateway-proxied content")
	playCmd.Flags().String("audio-manifest", "", "Audio-only manifest URL")
	playCmd.Flags().StringSlice("legacy-url", nil, "Single-file fallback URL (repeatable)")
	playCmd.Flags().StringSlice("origin-host", nil, "Origin video host whose segment requests need rewriting (repeatable)")
	playCmd.Flags().String("engine", "mpv", "Playback backend")
	lo.Must0(playCmd.RegisterFlagCompletionFunc("engine", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return lo.Keys(engine.Builders()), cobra.ShellCompDirectiveDefault
	}))
	playCmd.Flags().BoolP("choose-format", "F", false, "Pick the delivery format interactively")
}

// playCmd starts an adaptive playback session for a manifest or media URL.
var playCmd = &cobra.Command{
	Use:     "play <manifest-or-media-url>",
	Short:   "Play a video from a manifest or direct media URL",
	Example: "  tubeflow play https://cdn.example/video/manifest.mpd --video-id dQw4w9WgXcQ -q 720",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		CheckDependencies()

		src := args[0]
		format := resolveFormat(cmd)
		request := buildRequest(cmd, src, format)

		builders := engine.Builders()
		builder, ok := builders[lo.Must(cmd.Flags().GetString("engine"))]
		if !ok {
			handleErr(fmt.Errorf("unknown playback backend %q", lo.Must(cmd.Flags().GetString("engine"))))
		}
		backend := builder()

		mpv, isMPV := backend.(*engine.MPV)
		if isMPV {
			if request.Title != "" {
				mpv.SetTitle(request.Title)
			}
			mpv.SetHTTPClient(network.ConfiguredClient())
		}

		filters := filterchain.New(
			lo.Must(cmd.Flags().GetStringSlice("origin-host")),
			gatewayHost(),
			network.ConfiguredClient(),
		)
		backend.SetFilters(filters)

		notifier := toast.Console{}
		policies := skip.PoliciesFromConfig()
		skipEngine := skip.NewEngine(
			fetchSkipSegments(cmd.Context(), request.VideoID, policies),
			policies,
			notifier,
			func(seconds float64) { _ = backend.Seek(seconds) },
		)

		session := playback.NewSession(playback.Options{
			Engine:         backend,
			Skip:           skipEngine,
			Notifier:       notifier,
			Locale:         captionLocale(),
			Quality:        viper.GetString(key.PlaybackQuality),
			AudioLanguage:  viper.GetString(key.PlaybackAudioLanguage),
			ShowCaptions:   viper.GetBool(key.PlaybackShowCaptions),
			ResumeOnSwitch: viper.GetBool(key.PlaybackResumeOnSwitch),
			Filters:        filters,
			HTTP:           network.ConfiguredClient(),
		})

		handleErr(session.Start(cmd.Context(), request, format))
		fmt.Printf("%s Playing %s\n", icon.Get(icon.Video), request.Title)

		if isMPV {
			runUntilPlayerExits(cmd.Context(), session, mpv)
			return
		}

		_, err := session.Destroy(cmd.Context())
		handleErr(err)
	},
}

// resolveFormat picks the session's initial delivery format from the flag, the
// configuration, or an interactive prompt.
func resolveFormat(cmd *cobra.Command) playback.Format {
	if lo.Must(cmd.Flags().GetBool("choose-format")) {
		var chosen string
		handleErr(survey.AskOne(&survey.Select{
			Message: "Delivery format:",
			Options: availableFormats,
			Default: viper.GetString(key.PlaybackFormat),
		}, &chosen))
		return playback.Format(chosen)
	}

	configured := viper.GetString(key.PlaybackFormat)
	if lo.Contains(availableFormats, configured) {
		return playback.Format(configured)
	}
	return playback.FormatDash
}

// buildRequest assembles the play request from the positional URL and flags.
func buildRequest(cmd *cobra.Command, src string, format playback.Format) playback.Request {
	request := playback.Request{
		VideoID:          lo.Must(cmd.Flags().GetString("video-id")),
		Title:            lo.Must(cmd.Flags().GetString("title")),
		StartTime:        lo.Must(cmd.Flags().GetFloat64("start")),
		Live:             lo.Must(cmd.Flags().GetBool("live")),
		Proxied:          lo.Must(cmd.Flags().GetBool("proxied")),
		AudioManifestURL: lo.Must(cmd.Flags().GetString("audio-manifest")),
	}
	if request.Title == "" {
		request.Title = src
	}

	request.LegacyFormats = lo.Map(
		lo.Must(cmd.Flags().GetStringSlice("legacy-url")),
		func(rawURL string, _ int) media.LegacyFormat {
			return media.LegacyFormat{URL: rawURL, MimeType: "video/mp4"}
		},
	)

	if format == playback.FormatLegacy && len(request.LegacyFormats) == 0 {
		// The positional URL is the single file to play.
		request.LegacyFormats = []media.LegacyFormat{{URL: src, MimeType: "video/mp4"}}
	} else {
		request.ManifestURL = src
	}

	return request
}

// fetchSkipSegments queries the skip-segment service for the active categories.
// Failures degrade to no segments; playback never blocks on the skip feature.
func fetchSkipSegments(ctx context.Context, videoID string, policies map[string]skip.Policy) []skip.Segment {
	if !viper.GetBool(key.SkipEnable) || videoID == "" {
		return nil
	}

	categories := skip.ActiveCategories(policies)
	if len(categories) == 0 {
		return nil
	}

	client := skip.NewClient(viper.GetString(key.SkipBaseURL), network.ConfiguredClient())
	segments, err := client.FetchSegmentsCached(ctx, videoID, categories)
	if err != nil {
		log.Warnf("skip segments unavailable: %v", err)
		return nil
	}

	if len(segments) > 0 {
		fmt.Printf("%s %d skippable segments\n", icon.Get(icon.Skip), len(segments))
	}
	return segments
}

// runUntilPlayerExits wires the player's event stream into the session and blocks
// until the user closes the player.
func runUntilPlayerExits(ctx context.Context, session *playback.Session, mpv *engine.MPV) {
	listener := engine.NewEventListener(mpv.Socket(), func(property string, data interface{}) {
		switch property {
		case "time-pos":
			if seconds, ok := data.(float64); ok {
				session.OnTimeUpdate(seconds)
			}
		case "seeking":
			if seeking, ok := data.(bool); ok && seeking {
				session.NoteManualSeek()
			}
		case "eof-reached":
			if ended, ok := data.(bool); ok {
				session.SetEnded(ended)
			}
		}
	})
	if err := listener.Start(); err != nil {
		log.Warnf("event listener unavailable, skip evaluation disabled: %v", err)
	}
	defer listener.Stop()

	select {
	case <-mpv.Wait():
	case <-ctx.Done():
	}

	_, err := session.Destroy(context.Background())
	handleErr(err)
}

// captionLocale resolves the configured locale used for display language names.
func captionLocale() language.Tag {
	tag, err := language.Parse(viper.GetString(key.PlaybackCaptionLocale))
	if err != nil {
		return language.English
	}
	return tag
}

// gatewayHost extracts the host of the configured proxy gateway, if any.
func gatewayHost() string {
	rawURL := viper.GetString(key.NetworkGatewayURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		log.Warnf("invalid gateway url %q: %v", rawURL, err)
		return ""
	}
	return parsed.Host
}
