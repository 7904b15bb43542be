package message

import "fmt"

// RouteRank formats a rank as the synthesized route-stack identifier.
func RouteRank(rank uint32) string { return fmt.Sprintf("%d", rank) }

// RouteStackEnabled reports whether this message carries a route stack.
func (m *Message) RouteStackEnabled() bool { return m.HasFlag(FlagRouteStack) }

// SetRouteStackEnabled turns the route stack on or off. Disabling clears
// any identifiers already pushed.
func (m *Message) SetRouteStackEnabled(on bool) {
	if on {
		m.flags |= FlagRouteStack
		return
	}
	m.flags &^= FlagRouteStack
	m.route = nil
}

// PushRoute prepends an identifier onto the top of the route stack (the
// most recently pushed entry is always index len(route)-1, the "last"
// route).
func (m *Message) PushRoute(identity string) error {
	if !m.RouteStackEnabled() {
		return errRouteStackDisabled
	}
	m.route = append(m.route, identity)
	return nil
}

// PopRoute removes and returns the top (most recently pushed) identifier.
func (m *Message) PopRoute() (string, error) {
	if !m.RouteStackEnabled() {
		return "", errRouteStackDisabled
	}
	n := len(m.route)
	if n == 0 {
		return "", errEmptyRouteStack
	}
	top := m.route[n-1]
	m.route = m.route[:n-1]
	return top, nil
}

// FirstRoute returns the bottom of the stack (the originator), the tail
// end as seen by the current holder.
func (m *Message) FirstRoute() (string, error) {
	if !m.RouteStackEnabled() || len(m.route) == 0 {
		return "", errEmptyRouteStack
	}
	return m.route[0], nil
}

// LastRoute returns the top of the stack (the most recent router), without
// popping it.
func (m *Message) LastRoute() (string, error) {
	if !m.RouteStackEnabled() || len(m.route) == 0 {
		return "", errEmptyRouteStack
	}
	return m.route[len(m.route)-1], nil
}

// RouteCount returns the number of identifiers currently on the stack.
func (m *Message) RouteCount() int { return len(m.route) }

// Routes returns the stack bottom-to-top (first_route first, last_route
// last). The returned slice is a copy.
func (m *Message) Routes() []string {
	return append([]string(nil), m.route...)
}
