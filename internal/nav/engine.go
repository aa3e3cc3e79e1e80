// Package nav is the screen-stack state machine behind the interactive
// session. It owns the wizard session for the lifetime of the run and applies
// the uniform back/home/quit transitions; screen-specific actions are left to
// the caller.
package nav

import (
	"log/slog"

	"github.com/treykane/sshkit/internal/model"
)

// Engine holds the visited-screen stack. The zero value is not ready; use New.
type Engine struct {
	stack   []Screen
	current Screen
	session *model.WizardSession
	quit    bool
}

// New starts an engine on the Home screen with an empty wizard session.
func New() *Engine {
	return &Engine{current: Home, session: &model.WizardSession{}}
}

// Current returns the screen being shown.
func (e *Engine) Current() Screen { return e.current }

// Depth is the number of screens below the current one.
func (e *Engine) Depth() int { return len(e.stack) }

// Stack returns a copy of the visited screens, oldest first.
func (e *Engine) Stack() []Screen {
	return append([]Screen(nil), e.stack...)
}

// Done reports whether Quit was applied.
func (e *Engine) Done() bool { return e.quit }

// Session returns the wizard session owned by this engine.
func (e *Engine) Session() *model.WizardSession { return e.session }

// Push drills down into s.
func (e *Engine) Push(s Screen) {
	if e.quit {
		return
	}
	e.stack = append(e.stack, e.current)
	e.current = s
	slog.Debug("nav push", "screen", s, "depth", len(e.stack))
}

// Back pops one level. With nothing to pop it lands on Home.
func (e *Engine) Back() {
	if e.quit {
		return
	}
	n := len(e.stack)
	if n == 0 {
		e.current = Home
		return
	}
	e.current = e.stack[n-1]
	e.stack = e.stack[:n-1]
}

// GoHome clears the stack and shows Home.
func (e *Engine) GoHome() {
	if e.quit {
		return
	}
	e.stack = e.stack[:0]
	e.current = Home
}

// Quit ends the session regardless of depth.
func (e *Engine) Quit() {
	e.quit = true
	e.stack = nil
}

// StartWizard resets the session and enters step 1.
func (e *Engine) StartWizard() {
	e.session = &model.WizardSession{}
	e.Push(WizardStep(1))
}

// Apply performs the uniform transitions. It returns false for actions the
// current screen has to interpret itself.
func (e *Engine) Apply(a Action) bool {
	switch a.Kind {
	case Back:
		e.Back()
	case GoHome:
		e.GoHome()
	case Quit:
		e.Quit()
	default:
		return false
	}
	return true
}
