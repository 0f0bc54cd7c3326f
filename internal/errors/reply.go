package errors

import (
	"errors"
	"fmt"
)

// Scope names the module operation a failure came from, as "shop.cart" or
// "admin.approve", and builds ReplyErrors for it.
type Scope string

// Reply attaches the chat reply for err. It returns nil for a nil err.
func (s Scope) Reply(err error, reply string) error {
	if err == nil {
		return nil
	}
	return &ReplyError{Op: string(s), Reply: reply, Err: err}
}

// Replyf is Reply with a formatted reply.
func (s Scope) Replyf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &ReplyError{Op: string(s), Reply: fmt.Sprintf(format, args...), Err: err}
}

// ReplyError is a handler failure that already knows what to tell the user.
// Error() never includes the reply, so logs carry only the cause.
type ReplyError struct {
	Op    string
	Reply string
	Err   error
}

func (e *ReplyError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ReplyError) Unwrap() error {
	return e.Err
}

// UserReply returns the outermost non-empty reply attached anywhere in err's
// chain. Errors without one report false so callers fall back to a generic
// message instead of leaking internals into the chat.
func UserReply(err error) (string, bool) {
	var re *ReplyError
	if errors.As(err, &re) && re.Reply != "" {
		return re.Reply, true
	}
	return "", false
}
