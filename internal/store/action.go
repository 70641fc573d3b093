package store

import (
	"fmt"

	"github.com/sakif/auth-demo/internal/model"
)

// Action is one of SetLoading, SetUser, SetError or ClearError. The set is
// closed: isAction is unexported, so no other package can add a variant.
type Action interface {
	isAction()
}

// SetLoading sets the loading flag.
type SetLoading struct{ Loading bool }

// SetUser replaces the user (nil for signed out) and ends any pending action.
type SetUser struct{ User *model.User }

// SetError records a failure and ends the pending action.
type SetError struct{ Message string }

// ClearError drops the current error.
type ClearError struct{}

func (SetLoading) isAction() {}
func (SetUser) isAction()    {}
func (SetError) isAction()   {}
func (ClearError) isAction() {}

// Reduce returns the state after applying a. It does not modify state.
func Reduce(state model.AuthState, a Action) model.AuthState {
	switch a := a.(type) {
	case SetLoading:
		state.Loading = a.Loading
	case SetUser:
		state.User = a.User
		state.Loading = false
		state.Error = ""
	case SetError:
		state.Error = a.Message
		state.Loading = false
	case ClearError:
		state.Error = ""
	default:
		panic(fmt.Sprintf("store: unhandled action %T", a))
	}
	return state
}

// actionName is used in debug logs.
func actionName(a Action) string {
	switch a.(type) {
	case SetLoading:
		return "SET_LOADING"
	case SetUser:
		return "SET_USER"
	case SetError:
		return "SET_ERROR"
	case ClearError:
		return "CLEAR_ERROR"
	}
	return fmt.Sprintf("%T", a)
}
