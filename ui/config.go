package ui

// Config contains TUI-specific configuration.
type Config struct {
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	GlamourMaxWidth uint   `env:"VOXCHAT_WIDTH"          envDefault:"100"`
	GlamourEnabled  bool   `env:"VOXCHAT_ENABLE_GLAMOUR" envDefault:"true"`
	EnableMouse     bool

	// Theme comes from the settings file: auto, dark or light.
	Theme string
}
