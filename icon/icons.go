package icon

// Icon identifies one UI symbol in the global registry.
type Icon int

const (
	Video Icon = iota
	Audio
	Subtitles
	Skip
	Quality
	Live
	Success
	Fail
	Warning
	Progress
	Lock
	Link
)

// icons is the global registry mapping each symbol to its per-variant renditions.
var icons = map[Icon]*iconDef{
	Video: {
		emoji:   "🎬",
		nerd:    "",
		plain:   "[video]",
		kaomoji: "(✿◠‿◠)",
		squares: "🟦",
	},
	Audio: {
		emoji:   "🎧",
		nerd:    "",
		plain:   "[audio]",
		kaomoji: "♪(´ε｀ )",
		squares: "🟪",
	},
	Subtitles: {
		emoji:   "💬",
		nerd:    "",
		plain:   "[cc]",
		kaomoji: "(￣▽￣)ノ",
		squares: "⬜",
	},
	Skip: {
		emoji:   "⏭️",
		nerd:    "",
		plain:   ">>",
		kaomoji: "ε=ε=┌(;・∀・)┘",
		squares: "🟨",
	},
	Quality: {
		emoji:   "✨",
		nerd:    "",
		plain:   "[hd]",
		kaomoji: "(☆ω☆)",
		squares: "🟩",
	},
	Live: {
		emoji:   "🔴",
		nerd:    "",
		plain:   "[live]",
		kaomoji: "(・ω・)ノ",
		squares: "🟥",
	},
	Success: {
		emoji:   "✅",
		nerd:    "",
		plain:   "+",
		kaomoji: "(•̀ᴗ•́)و",
		squares: "🟩",
	},
	Fail: {
		emoji:   "❌",
		nerd:    "",
		plain:   "x",
		kaomoji: "(╯°□°)╯",
		squares: "🟥",
	},
	Warning: {
		emoji:   "⚠️",
		nerd:    "",
		plain:   "!",
		kaomoji: "(・_・;)",
		squares: "🟨",
	},
	Progress: {
		emoji:   "⏳",
		nerd:    "",
		plain:   "...",
		kaomoji: "(￣ー￣)ゞ",
		squares: "🟧",
	},
	Lock: {
		emoji:   "🔒",
		nerd:    "",
		plain:   "[locked]",
		kaomoji: "(x_x)",
		squares: "⬛",
	},
	Link: {
		emoji:   "🔗",
		nerd:    "",
		plain:   "->",
		kaomoji: "(つ✧ω✧)つ",
		squares: "🟫",
	},
}
