// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Playback Defaults - these keys select the initial delivery format and quality for a new session.
const (
	PlaybackFormat         = "playback.format"
	PlaybackQuality        = "playback.quality"
	PlaybackAudioLanguage  = "playback.audio_language"
	PlaybackShowCaptions   = "playback.show_captions"
	PlaybackCaptionLocale  = "playback.caption_locale"
	PlaybackResumeOnSwitch = "playback.resume_on_switch"
)

// Segment Skipping - these keys govern the crowd-sourced skip-segment service and per-category policies.
const (
	SkipEnable  = "skip.enable"
	SkipBaseURL = "skip.base_url"

	SkipSponsor       = "skip.sponsor"
	SkipSelfPromo     = "skip.selfpromo"
	SkipInteraction   = "skip.interaction"
	SkipIntro         = "skip.intro"
	SkipOutro         = "skip.outro"
	SkipPreview       = "skip.preview"
	SkipFiller        = "skip.filler"
	SkipMusicOfftopic = "skip.music_offtopic"
)

// Proxy & Network - these keys configure outbound transport, gateway routing and TLS fingerprinting.
const (
	ProxyEnable       = "proxy.enable"
	ProxyURL          = "proxy.url"
	ProxyUseKeyring   = "proxy.use_keyring"
	NetworkChromeTLS  = "network.chrome_tls"
	NetworkGatewayURL = "network.gateway_url"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern the application behavior outside playback.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
)
