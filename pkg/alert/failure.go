package alert

import "fmt"

// Failure is the merged failure of one or more channels.
// Message holds every channel message in invocation order, joined by
// newlines. Messages keeps one entry per failed channel, so a message
// containing newlines stays whole. Cause is always the first failing
// channel's error.
type Failure struct {
	Message  string
	Messages []string
	Cause    error
}

// NewFailure wraps a single channel error
func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Message: err.Error(), Messages: []string{err.Error()}, Cause: err}
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Merge combines two failures, keeping the cause of f
func (f *Failure) Merge(next *Failure) *Failure {
	switch {
	case f == nil:
		return next
	case next == nil:
		return f
	}
	messages := make([]string, 0, len(f.Messages)+len(next.Messages))
	messages = append(messages, f.Messages...)
	messages = append(messages, next.Messages...)
	return &Failure{
		Message:  f.Message + "\n" + next.Message,
		Messages: messages,
		Cause:    f.Cause,
	}
}

// Outcome is the result of notifying one channel, or the fold of several
type Outcome struct {
	Success bool
	Err     *Failure
}

// Succeeded is the identity element of Combine
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// Failed builds the outcome of a failed channel
func Failed(err error) Outcome {
	return Outcome{Success: false, Err: NewFailure(err)}
}

// Combine folds cur into acc: success is ANDed and failures are merged
// with acc's cause taking precedence.
func Combine(acc, cur Outcome) Outcome {
	return Outcome{
		Success: acc.Success && cur.Success,
		Err:     acc.Err.Merge(cur.Err),
	}
}

// Reduce folds outcomes left to right starting from Succeeded
func Reduce(outcomes []Outcome) Outcome {
	acc := Succeeded()
	for _, o := range outcomes {
		acc = Combine(acc, o)
	}
	return acc
}

// ChannelError is the failure reported by a single channel handler
type ChannelError struct {
	Type   Type
	Detail string
	Err    error
}

// NewChannelError creates a channel error with a formatted detail message
func NewChannelError(t Type, err error, format string, args ...any) *ChannelError {
	return &ChannelError{Type: t, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *ChannelError) Error() string {
	if e.Err != nil && e.Detail == "" {
		return fmt.Sprintf("%s alert failed: %v", e.Type, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s alert failed: %s: %v", e.Type, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s alert failed: %s", e.Type, e.Detail)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
