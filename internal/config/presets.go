package config

// DefaultBaseDirs are the usual Half-Life install locations.
var DefaultBaseDirs = []string{
	`C:\Program Files (x86)\Steam\steamapps\common\Half-Life`,
	`C:\Program Files\Steam\steamapps\common\Half-Life`,
	`C:\Sierra\Half-Life`,
	"~/Library/Application Support/Steam/steamapps/common/Half-Life", // macOS
	"~/.steam/steam/steamapps/common/Half-Life",
	"~/.local/share/Steam/steamapps/common/Half-Life",
}

// Preset is a named packing recipe. Folder names are relative to the
// Half-Life base directory.
type Preset struct {
	BaseFolder   string   `mapstructure:"base_folder"`
	Overlays     []string `mapstructure:"overlays"`
	IgnoreFiles  []string `mapstructure:"ignore_files"`
	CommandLine  string   `mapstructure:"commandline"`
	Description  string   `mapstructure:"description"`
	MaxChunkSize int      `mapstructure:"max_chunk_size"` // overrides Config.MaxChunkSize if positive
}

const xashFlags = "xash3d -log --supersampling 1.25 --msaa 2 --cpu 4 --gpu 4"

const upscaleNote = ` NOTE: Before running this, you must copy the STEP 4 and STEP 5 folders from the AI upscale zip to "STEP 4" and "STEP 5" in the HL directory.`

// upscaleIgnore keeps the upscale packs from replacing the game's own config.
var upscaleIgnore = []string{"gameinfo.txt", "config.cfg"}

// DefaultPresets returns the built-in presets. The returned map is a fresh
// copy and may be modified.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"hl_vanilla": {
			BaseFolder:  "valve",
			Description: "Vanilla Half-Life with no mods or texture packs.",
		},
		"hl_hd": {
			BaseFolder:  "valve",
			Overlays:    []string{"valve_hd"},
			Description: "Half-Life with the default HD texture pack.",
		},
		"hl_gold_hd": {
			BaseFolder:  "HL_Gold_HD",
			CommandLine: xashFlags + " -game HL_Gold_HD",
			Description: "Half-Life with the Half-Life Gold HD pack. NOTE: Do this after you have installed hl_vanilla or hl_hd, as this pack does not include all of the base Half-Life files.",
		},
		"hl_ai_upscale": {
			BaseFolder:  "valve",
			Overlays:    []string{"valve_hd", `STEP 4\valve`, `STEP 5\valve`},
			IgnoreFiles: upscaleIgnore,
			CommandLine: xashFlags,
			Description: "Half-Life with the AI upscaled textures." + upscaleNote,
		},
		"blueshift_vanilla": {
			BaseFolder:  "bshift",
			CommandLine: xashFlags + " -game bshift",
			Description: "Half-Life: Blue Shift with no mods or texture packs.",
		},
		"blueshift_hd": {
			BaseFolder:  "bshift",
			Overlays:    []string{"bshift_hd"},
			CommandLine: xashFlags + " -game bshift",
			Description: "Half-Life: Blue Shift with the default HD texture pack.",
		},
		"blueshift_ai_upscale": {
			BaseFolder:  "bshift",
			Overlays:    []string{"bshift_hd", `STEP 4\blueshift_unlocked`, `STEP 5\blueshift_unlocked`},
			IgnoreFiles: upscaleIgnore,
			CommandLine: xashFlags + " -game bshift",
			Description: "Half-Life: Blue Shift with the AI upscaled textures." + upscaleNote,
		},
		"opfor_vanilla": {
			BaseFolder:  "gearbox",
			CommandLine: xashFlags + " -game gearbox",
			Description: "Half-Life: Opposing Force with no mods or texture packs.",
		},
		"opfor_hd": {
			BaseFolder:  "gearbox",
			Overlays:    []string{"gearbox_hd"},
			CommandLine: xashFlags + " -game gearbox",
			Description: "Half-Life: Opposing Force with the default HD texture pack.",
		},
		"opfor_ai_upscale": {
			BaseFolder:  "gearbox",
			Overlays:    []string{"gearbox_hd", `STEP 4\gearbox`, `STEP 5\gearbox`},
			IgnoreFiles: upscaleIgnore,
			CommandLine: xashFlags + " -game gearbox",
			Description: "Half-Life: Opposing Force with the AI upscaled textures." + upscaleNote,
		},
	}
}
