package nav

import (
	"fmt"
	"strconv"
	"strings"
)

// Screen names one interactive screen.
type Screen string

const (
	Home             Screen = "home"
	ListKeys         Screen = "list-keys"
	GenerateKey      Screen = "generate-key"
	DeleteKey        Screen = "delete-key"
	ChangePassphrase Screen = "change-passphrase"
	CopyKey          Screen = "copy-key"
	AgentStatus      Screen = "agent-status"
	ShowConfig       Screen = "show-config"
	AddHost          Screen = "add-host"
	RemoveHost       Screen = "remove-host"
	TestConnection   Screen = "test-connection"
	Backup           Screen = "backup"
	Restore          Screen = "restore"
	SecurityCheck    Screen = "security-check"
	FixPermissions   Screen = "fix-permissions"
	Help             Screen = "help"
)

const wizardPrefix = "wizard-step-"

// WizardStep returns the screen for wizard step n (1-based).
func WizardStep(n int) Screen {
	return Screen(wizardPrefix + strconv.Itoa(n))
}

// Step reports the wizard step number of s.
func (s Screen) Step() (int, bool) {
	rest, ok := strings.CutPrefix(string(s), wizardPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

var titles = map[Screen]string{
	Home:             "Home",
	ListKeys:         "SSH keys",
	GenerateKey:      "Generate key",
	DeleteKey:        "Delete key",
	ChangePassphrase: "Change passphrase",
	CopyKey:          "Copy key to server",
	AgentStatus:      "SSH agent",
	ShowConfig:       "SSH config",
	AddHost:          "Add host",
	RemoveHost:       "Remove host",
	TestConnection:   "Test connection",
	Backup:           "Backup",
	Restore:          "Restore",
	SecurityCheck:    "Security check",
	FixPermissions:   "Fix permissions",
	Help:             "Help",
}

var stepTitles = [...]string{"Key availability", "Key selection", "Copy key to server", "Verify login", "Save host"}

func (s Screen) Title() string {
	if n, ok := s.Step(); ok && n >= 1 && n <= len(stepTitles) {
		return fmt.Sprintf("Passwordless setup %d/%d: %s", n, len(stepTitles), stepTitles[n-1])
	}
	if t, ok := titles[s]; ok {
		return t
	}
	return string(s)
}

// MenuItem is one entry of the home menu.
type MenuItem struct {
	Screen Screen
	Label  string
}

// Menu lists the home screen entries in display order. Selecting the first
// entry starts the wizard.
var Menu = []MenuItem{
	{WizardStep(1), "Set up passwordless login"},
	{ListKeys, "List keys"},
	{GenerateKey, "Generate key"},
	{DeleteKey, "Delete key"},
	{ChangePassphrase, "Change passphrase"},
	{CopyKey, "Copy key to server"},
	{AgentStatus, "SSH agent"},
	{ShowConfig, "Show SSH config"},
	{AddHost, "Add host"},
	{RemoveHost, "Remove host"},
	{TestConnection, "Test connection"},
	{Backup, "Backup"},
	{Restore, "Restore"},
	{SecurityCheck, "Security check"},
	{FixPermissions, "Fix permissions"},
	{Help, "Help"},
}
