package engine

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// The application name used in windowing and as the Vulkan application name.
	Name string
	// TOML file read on top of the defaults. A missing file is not an error.
	ConfigPath string
}
