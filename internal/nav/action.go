package nav

import "fmt"

// Kind is the tag of an Action.
type Kind int

const (
	Proceed Kind = iota
	Back
	GoHome
	Quit
	Up
	Down
	Next
	Confirm
	Deny
	Select
	Input
)

var kindNames = [...]string{"proceed", "back", "home", "quit", "up", "down", "next", "confirm", "deny", "select", "input"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is one user gesture. N is set for Select (1-based); Key carries the
// raw key for Input.
type Action struct {
	Kind Kind
	N    int
	Key  string
}

// UnrecognizedInputError is returned by ParseKey for keys with no meaning on
// a non-text screen.
type UnrecognizedInputError struct {
	Key string
}

func (e *UnrecognizedInputError) Error() string {
	return fmt.Sprintf("unrecognized input %q", e.Key)
}

// ParseKey maps a key name as reported by the terminal to exactly one action.
// While typing into a field, printable keys become Input and only control
// keys navigate.
func ParseKey(key string, typing bool) (Action, error) {
	switch key {
	case "ctrl+c", "ctrl+q":
		return Action{Kind: Quit}, nil
	case "home":
		return Action{Kind: GoHome}, nil
	case "esc":
		return Action{Kind: Back}, nil
	case "enter":
		return Action{Kind: Proceed}, nil
	case "up", "shift+tab":
		return Action{Kind: Up}, nil
	case "down":
		return Action{Kind: Down}, nil
	case "tab":
		return Action{Kind: Next}, nil
	}
	if typing {
		return Action{Kind: Input, Key: key}, nil
	}
	switch key {
	case "q":
		return Action{Kind: Quit}, nil
	case "h":
		return Action{Kind: GoHome}, nil
	case "b", "backspace", "left":
		return Action{Kind: Back}, nil
	case "j":
		return Action{Kind: Down}, nil
	case "k":
		return Action{Kind: Up}, nil
	case "y", "Y":
		return Action{Kind: Confirm}, nil
	case "n", "N":
		return Action{Kind: Deny}, nil
	case "right", "l", " ":
		return Action{Kind: Next}, nil
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		return Action{Kind: Select, N: int(key[0] - '0')}, nil
	}
	return Action{}, &UnrecognizedInputError{Key: key}
}
