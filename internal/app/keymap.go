package app

// Key binding constants used in handleKey.
const (
	KeyQuit       = "q"
	KeyQuitUpper  = "Q"
	KeyCtrlC      = "ctrl+c"
	KeySpace      = " "
	KeyTab        = "tab"
	KeyShiftTab   = "shift+tab"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyPgUp       = "pgup"
	KeyPgDown     = "pgdown"
	KeyEnter      = "enter"
	KeyEsc        = "esc"
	KeyBackspace  = "backspace"
	KeyToggleMode = "ctrl+r"
	KeyOpenFile   = "o"
	KeyTranscribe = "t"
	KeyReset      = "x"
	KeySaveText   = "s"
	KeySaveJSON   = "j"
	KeySaveSRT    = "v"
	KeySaveVTT    = "w"
	KeyLogout     = "L"
	KeyResend     = "r"
	KeyCheckAgain = "c"
)
