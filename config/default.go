// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/muesli/reflow/wordwrap"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/tubeflow-cli/tubeflow/color"
	"github.com/tubeflow-cli/tubeflow/constant"
	"github.com/tubeflow-cli/tubeflow/key"
	"github.com/tubeflow-cli/tubeflow/style"
	"github.com/tubeflow-cli/tubeflow/util"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.Tubeflow + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

// typeName returns the string representation of the field's underlying value type.
func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case bool:
		return "bool"
	case []string:
		return "[]string"
	case []int:
		return "[]int"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	// register validates and adds a new configuration field to the global registry.
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		f := Field{Key: k, Value: v, Description: desc}
		Default[k] = f
		EnvExposed = append(EnvExposed, k)
	}

	register(key.PlaybackFormat, "dash", "Initial delivery format for a new playback session.\nAvailable options are: dash, legacy, audio")
	register(key.PlaybackQuality, "auto", "Target quality metric (height, or width for portrait content).\nUse \"auto\" to delegate selection to the media engine, or a number like 720")
	register(key.PlaybackAudioLanguage, "", "Preferred audio track language (BCP-47 tag).\nLeave empty to take the stream tagged as main")
	register(key.PlaybackShowCaptions, false, "Show captions as soon as text tracks are attached")
	register(key.PlaybackCaptionLocale, "en", "Locale used when resolving display names for repaired audio tracks and captions")
	register(key.PlaybackResumeOnSwitch, true, "Restore position, pause state and captions across format switches")
	register(key.SkipEnable, true, "Query the crowd-sourced skip-segment service and act on the per-category policies")
	register(key.SkipBaseURL, "https://sponsor.ajay.app", "Base URL of the skip-segment service")
	register(key.SkipSponsor, "autoSkip", "Policy for sponsor segments.\nAvailable options are: autoSkip, promptToSkip, showInSeekBar, doNothing")
	register(key.SkipSelfPromo, "doNothing", "Policy for unpaid/self promotion segments")
	register(key.SkipInteraction, "doNothing", "Policy for interaction reminder segments")
	register(key.SkipIntro, "doNothing", "Policy for intermission/intro segments")
	register(key.SkipOutro, "doNothing", "Policy for endcards/outro segments")
	register(key.SkipPreview, "doNothing", "Policy for preview/recap segments")
	register(key.SkipFiller, "doNothing", "Policy for filler tangent segments")
	register(key.SkipMusicOfftopic, "doNothing", "Policy for non-music sections of music videos")
	register(key.ProxyEnable, false, "Route outbound requests through the configured proxy")
	register(key.ProxyURL, "", "Proxy URL, e.g. socks5://127.0.0.1:9050")
	register(key.ProxyUseKeyring, false, "Read proxy credentials from the system keyring instead of the URL")
	register(key.NetworkChromeTLS, true, "Use a Chrome TLS fingerprint for requests to the origin video host")
	register(key.NetworkGatewayURL, "", "Optional gateway that fronts manifest and segment requests.\nLeave empty to talk to the origin directly")
	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, plain, nerd (nerd-font required)")
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliVersionCheck, true, "Enable automatic version check")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint": style.Faint,
	"bold":  style.Bold,
	"wrap": func(s string) string {
		width, _, err := util.TerminalSize()
		if err != nil || width <= 0 {
			width = 80
		}
		return wordwrap.String(s, width)
	},
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"cyan":     style.Fg(color.Cyan),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint (wrap .Description) }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
