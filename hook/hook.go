// Package hook runs an operation together with its error handler and its
// unconditional cleanup.
package hook

import "fmt"

// Interface is a unit of work with scoped cleanup.
//
// Try performs the work. Catch receives a non-nil error from Try and returns
// the error reported to the caller (it may translate or swallow it). Finally
// always runs, after Try and Catch, even if Try panics.
type Interface interface {
	Try() error
	Catch(err error) error
	Finally()
}

// Funcs adapts plain functions to Interface. Nil fields are no-ops.
type Funcs struct {
	TryFunc     func() error
	CatchFunc   func(err error) error
	FinallyFunc func()
}

func (f Funcs) Try() error {
	if f.TryFunc == nil {
		return nil
	}
	return f.TryFunc()
}

func (f Funcs) Catch(err error) error {
	if f.CatchFunc == nil {
		return err
	}
	return f.CatchFunc(err)
}

func (f Funcs) Finally() {
	if f.FinallyFunc != nil {
		f.FinallyFunc()
	}
}

// Call runs hook.Try, routes a failure through hook.Catch and always runs
// hook.Finally. A panic in Try is recovered and reported as an error.
func Call(hook Interface) (err error) {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}

	defer hook.Finally()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred during hook execution: %v", r)
		}
	}()

	tryErr := hook.Try()
	if tryErr != nil {
		err = hook.Catch(tryErr)
		return err
	}

	return nil
}
