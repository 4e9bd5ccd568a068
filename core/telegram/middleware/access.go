package middleware

import tele "gopkg.in/telebot.v4"

// AccessOptions defines how the access gate behaves.
type AccessOptions struct {
	// Skip reports updates that bypass the gate entirely.
	Skip func(c tele.Context) bool
	// Allow performs the access decision. Lookup failures must map to false.
	Allow func(c tele.Context) bool
	// OnDenied runs instead of the handler when access is denied.
	OnDenied tele.HandlerFunc
}

// AccessMiddleware blocks downstream handlers for callers that fail the
// Allow check. With no Allow func the gate is a no-op.
func AccessMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.Allow == nil {
				return next(c)
			}
			if opts.Skip != nil && opts.Skip(c) {
				return next(c)
			}
			if opts.Allow(c) {
				return next(c)
			}
			if opts.OnDenied != nil {
				return opts.OnDenied(c)
			}
			return nil
		}
	}
}
