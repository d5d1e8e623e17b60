package commands

// ActionID names an application-level effect independent of any phrase.
type ActionID string

const (
	ActionOpenRegistration ActionID = "open_registration"
	ActionOpenLogin        ActionID = "open_login"
	ActionLogout           ActionID = "logout"
	ActionGoHome           ActionID = "go_home"
	ActionOpenSettings     ActionID = "open_settings"
	ActionOpenHelp         ActionID = "open_help"
	ActionGoBack           ActionID = "go_back"
	ActionVolumeUp         ActionID = "volume_up"
	ActionVolumeDown       ActionID = "volume_down"
	ActionMute             ActionID = "mute"
	ActionUnmute           ActionID = "unmute"
	ActionToggleLanguage   ActionID = "toggle_language"
	ActionSetPrimary       ActionID = "set_language_primary"
	ActionSetSecondary     ActionID = "set_language_secondary"
	ActionToggleHelpMode   ActionID = "toggle_help_mode"
	ActionExplainScreen    ActionID = "explain_screen"
	ActionTaskHelp         ActionID = "task_help"
	ActionDetailedHelp     ActionID = "detailed_help"
	ActionAdminPanel       ActionID = "admin_panel"
	ActionUserManagement   ActionID = "user_management"
	ActionSystemSettings   ActionID = "system_settings"
	ActionHighContrast     ActionID = "high_contrast"
	ActionLargeText        ActionID = "large_text"
	ActionReduceMotion     ActionID = "reduce_motion"
	ActionSubmitForm       ActionID = "submit_form"
	ActionCancel           ActionID = "cancel"
	ActionClearForm        ActionID = "clear_form"
	ActionRepeat           ActionID = "repeat"
	ActionStopSpeaking     ActionID = "stop_speaking"
	ActionPauseSpeaking    ActionID = "pause_speaking"
	ActionResumeSpeaking   ActionID = "resume_speaking"
)
