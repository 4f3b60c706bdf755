package httpsrc

import (
	"net"
	"net/url"

	"github.com/snapetech/upipe-go/internal/uprobe"
)

// EventSchemeHook asks a probe chain for a Hook matching a URI scheme
// (spec.md §4.8); SchemeHookHandler answers it. Source does not throw it:
// it fetches through net/http.
const EventSchemeHook uprobe.Event = uprobe.Local + iota

// HookRequest is carried in uprobe.Args.Extra for EventSchemeHook. A
// handler that recognizes the scheme allocates a Hook and sets it; a
// handler that declines leaves Hook nil and returns uprobe.Unhandled so
// the next probe in the chain gets a turn.
type HookRequest struct {
	URI  string
	Conn net.Conn
	Hook Hook
}

// SchemeHookHandler returns an uprobe.Handler that resolves "http" to a
// plain pass-through hook and "https" to the stdlib TLS hook, declining
// every other scheme. This is the default probe named in spec.md §4.8;
// callers wanting a different TLS engine chain their own handler in front
// of this one via Probe.Chained, since the first non-Unhandled answer wins.
func SchemeHookHandler() uprobe.Handler {
	return func(_ uprobe.Pipe, event uprobe.Event, args uprobe.Args) uprobe.Status {
		if event != EventSchemeHook {
			return uprobe.Unhandled
		}
		req, ok := args.Extra.(*HookRequest)
		if !ok || req == nil {
			return uprobe.Unhandled
		}
		u, err := url.Parse(req.URI)
		if err != nil {
			return uprobe.Unhandled
		}
		switch u.Scheme {
		case "https":
			req.Hook = NewTLSHook(req.Conn, u.Hostname())
			return uprobe.Handled
		case "http":
			req.Hook = NewPlainHook(req.Conn)
			return uprobe.Handled
		default:
			return uprobe.Unhandled
		}
	}
}
