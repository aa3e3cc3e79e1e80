package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// fieldSpec describes one input of a form.
type fieldSpec struct {
	label       string
	placeholder string
	value       string
	limit       int
	secret      bool
}

// form is a vertical list of text inputs with a single focused field.
type form struct {
	labels   []string
	fields   []textinput.Model
	focusIdx int
	errMsg   string
}

func newForm(specs ...fieldSpec) *form {
	f := &form{}
	for _, s := range specs {
		ti := textinput.New()
		ti.Placeholder = s.placeholder
		ti.CharLimit = s.limit
		if ti.CharLimit == 0 {
			ti.CharLimit = 256
		}
		ti.Width = 40
		if s.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		ti.SetValue(s.value)
		f.labels = append(f.labels, s.label)
		f.fields = append(f.fields, ti)
	}
	if len(f.fields) > 0 {
		f.fields[0].Focus()
	}
	return f
}

func (f *form) focus(idx int) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	f.fields[f.focusIdx].Blur()
	f.focusIdx = (idx + len(f.fields)) % len(f.fields)
	f.fields[f.focusIdx].Focus()
	return f.fields[f.focusIdx].Cursor.BlinkCmd()
}

func (f *form) next() tea.Cmd { return f.focus(f.focusIdx + 1) }

func (f *form) prev() tea.Cmd { return f.focus(f.focusIdx - 1) }

// onLast reports whether the focused field is the final one, where Enter
// submits instead of advancing.
func (f *form) onLast() bool {
	return f.focusIdx == len(f.fields)-1
}

// input forwards a key to the focused field.
func (f *form) input(msg tea.KeyMsg) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
	f.errMsg = ""
	return cmd
}

func (f *form) value(i int) string {
	if i < 0 || i >= len(f.fields) {
		return ""
	}
	return strings.TrimSpace(f.fields[i].Value())
}

// raw returns the untrimmed value; passphrases may legitimately contain
// surrounding spaces.
func (f *form) raw(i int) string {
	if i < 0 || i >= len(f.fields) {
		return ""
	}
	return f.fields[i].Value()
}

func (f *form) fail(err error) {
	f.errMsg = err.Error()
}

func (f *form) view() string {
	var b strings.Builder
	for i, label := range f.labels {
		cursor := "  "
		if i == f.focusIdx {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-20s %s\n", cursor, label+":", f.fields[i].View()))
	}
	if f.errMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		b.WriteString("\n" + errStyle.Render("Error: "+f.errMsg) + "\n")
	}
	b.WriteString("\nTab/Shift-Tab navigate | Enter next/submit | Esc back")
	return b.String()
}
