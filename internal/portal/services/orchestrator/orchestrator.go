// Package orchestrator owns the socket-to-connection registry and decides
// which handler services a ready socket. Lookups fall back from the
// connection, to its protocol, to its transport; entries may alias other
// entries and alias chains are bounded.
package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
)

// maxHops bounds alias chasing per lookup.
const maxHops = 4

var (
	ErrInvalidKey         = errors.New("invalid dispatch key")
	ErrInvalidTarget      = errors.New("invalid dispatch target")
	ErrAliasLoopDetected  = errors.New("alias loop detected")
	ErrAliasDepthExceeded = errors.New("alias resolution max depth exceeded")
	ErrDanglingAlias      = errors.New("alias points at an unregistered key")
	ErrNoHandler          = errors.New("no handler registered")
	ErrHandlerPanic       = errors.New("handler panicked")
)

// Handler services readiness events for connections.
type Handler interface {
	// Handle reports retired when the connection has been torn down by the
	// handler itself. A non-nil error asks the orchestrator to tear it down.
	Handle(conn *domain.Connection, ev domain.Event) (retired bool, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn *domain.Connection, ev domain.Event) (bool, error)

func (f HandlerFunc) Handle(conn *domain.Connection, ev domain.Event) (bool, error) {
	return f(conn, ev)
}

// Ender is implemented by handlers that keep per-socket state and must
// release it on teardown.
type Ender interface {
	End(sock domain.Socket)
}

// Orchestrator is single-owner: only the run loop calls into it.
type Orchestrator struct {
	nif      netif.Interface
	poller   netif.Poller
	bindings *domain.Bindings
	logger   log.Logger

	table map[Key]Target
	conns map[domain.Socket]*domain.Connection
}

// New returns an orchestrator with an empty table and registry.
func New(nif netif.Interface, poller netif.Poller, bindings *domain.Bindings, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		nif:      nif,
		poller:   poller,
		bindings: bindings,
		logger:   logger,
		table:    make(map[Key]Target),
		conns:    make(map[domain.Socket]*domain.Connection),
	}
}

// Net returns the network interface the orchestrator closes sockets on.
func (o *Orchestrator) Net() netif.Interface { return o.nif }

// Poller returns the poller shared by every server.
func (o *Orchestrator) Poller() netif.Poller { return o.poller }

// Bindings returns the protocol-to-transport table.
func (o *Orchestrator) Bindings() *domain.Bindings { return o.bindings }

// Register maps key to target, replacing any previous entry. Aliasing a
// transport to a protocol must agree with the bindings.
func (o *Orchestrator) Register(key Key, target Target) error {
	if !key.valid() {
		return fmt.Errorf("register %s: %w", key, ErrInvalidKey)
	}
	switch {
	case target.isAlias:
		if !target.alias.valid() {
			return fmt.Errorf("register %s: alias %s: %w", key, target.alias, ErrInvalidKey)
		}
		if key.kind == kindTransport && target.alias.kind == kindProtocol {
			if err := o.bindings.Bind(target.alias.protocol, key.transport); err != nil {
				return fmt.Errorf("register %s: %w", key, err)
			}
		}
	case target.handler == nil:
		return fmt.Errorf("register %s: %w", key, ErrInvalidTarget)
	}
	o.table[key] = target
	return nil
}

// Unregister removes key. Missing keys are ignored.
func (o *Orchestrator) Unregister(key Key) {
	delete(o.table, key)
}

// UnregisterIf removes key only while it still maps directly to h.
func (o *Orchestrator) UnregisterIf(key Key, h Handler) bool {
	t, ok := o.table[key]
	if !ok || t.isAlias || !sameHandler(t.handler, h) {
		return false
	}
	delete(o.table, key)
	return true
}

// UnregisterAliasIf removes key only while it is still an alias for to.
func (o *Orchestrator) UnregisterAliasIf(key, to Key) bool {
	t, ok := o.table[key]
	if !ok || !t.isAlias || t.alias != to {
		return false
	}
	delete(o.table, key)
	return true
}

// sameHandler compares handlers that may have uncomparable dynamic types.
func sameHandler(a, b Handler) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Track adds conn to the registry, replacing any stale entry for its socket.
func (o *Orchestrator) Track(conn *domain.Connection) {
	if prev, ok := o.conns[conn.Socket]; ok && prev.ID != conn.ID {
		o.logger.Warn(prev.LogFields(), "Replacing stale connection for reused socket")
		delete(o.table, ConnectionKey(prev))
	}
	o.conns[conn.Socket] = conn
}

// Lookup returns the live connection for sock.
func (o *Orchestrator) Lookup(sock domain.Socket) (*domain.Connection, bool) {
	c, ok := o.conns[sock]
	return c, ok
}

// Forget drops conn from the registry along with its connection key.
// A newer connection on the same socket number is left alone.
func (o *Orchestrator) Forget(conn *domain.Connection) {
	if cur, ok := o.conns[conn.Socket]; ok && cur.ID == conn.ID {
		delete(o.conns, conn.Socket)
	}
	delete(o.table, ConnectionKey(conn))
}

// Connections returns every tracked connection ordered by socket.
func (o *Orchestrator) Connections() []*domain.Connection {
	out := make([]*domain.Connection, 0, len(o.conns))
	for _, c := range o.conns {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *domain.Connection) int { return int(a.Socket) - int(b.Socket) })
	return out
}

// Resolve finds the handler for conn: connection, then protocol, then
// transport. The first key present in the table decides the outcome.
func (o *Orchestrator) Resolve(conn *domain.Connection) (Handler, error) {
	keys := []Key{ConnectionKey(conn)}
	if conn.Protocol.IsValid() {
		keys = append(keys, ProtocolKey(conn.Protocol))
	}
	keys = append(keys, TransportKey(conn.Transport))

	for _, k := range keys {
		if _, ok := o.table[k]; ok {
			return o.chase(k)
		}
	}
	return nil, ErrNoHandler
}

func (o *Orchestrator) chase(start Key) (Handler, error) {
	key := start
	seen := map[Key]bool{start: true}
	for hops := 0; ; hops++ {
		t, ok := o.table[key]
		if !ok {
			return nil, fmt.Errorf("%s: %w", key, ErrDanglingAlias)
		}
		if !t.isAlias {
			return t.handler, nil
		}
		if hops >= maxHops {
			return nil, fmt.Errorf("%s: %w", start, ErrAliasDepthExceeded)
		}
		if seen[t.alias] {
			return nil, fmt.Errorf("%s -> %s: %w", key, t.alias, ErrAliasLoopDetected)
		}
		seen[t.alias] = true
		key = t.alias
	}
}

// Dispatch routes one readiness event. It reports true when the socket no
// longer belongs to a live connection afterwards.
func (o *Orchestrator) Dispatch(sock domain.Socket, ev domain.Event) bool {
	conn, ok := o.conns[sock]
	if !ok {
		o.logger.Debug(map[string]any{"socket": int(sock), "events": ev.String()}, "Event for untracked socket")
		if err := o.poller.Unregister(sock); err != nil && !errors.Is(err, netif.ErrNotRegistered) {
			o.logger.Warn(map[string]any{"socket": int(sock), "error": err}, "Failed to unregister stale socket")
		}
		return true
	}

	h, err := o.Resolve(conn)
	if err != nil {
		fields := conn.LogFields()
		fields["error"] = err
		o.logger.Error(fields, "No handler for connection")
		o.Teardown(conn, nil)
		return true
	}

	retired, err := invoke(h, conn, ev)
	if err != nil {
		fields := conn.LogFields()
		fields["error"] = err
		fields["events"] = ev.String()
		o.logger.Warn(fields, "Handler fault, tearing down connection")
		o.Teardown(conn, h)
		return true
	}
	if retired {
		o.Forget(conn)
		return true
	}
	return false
}

func invoke(h Handler, conn *domain.Connection, ev domain.Event) (retired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(conn, ev)
}

// Teardown releases conn. When h implements Ender it owns the socket;
// otherwise the socket is unregistered and closed here. Safe to repeat.
func (o *Orchestrator) Teardown(conn *domain.Connection, h Handler) {
	if e, ok := h.(Ender); ok {
		e.End(conn.Socket)
		o.Forget(conn)
		return
	}
	if cur, ok := o.conns[conn.Socket]; !ok || cur.ID != conn.ID {
		o.Forget(conn)
		return
	}
	if err := o.poller.Unregister(conn.Socket); err != nil && !errors.Is(err, netif.ErrNotRegistered) {
		fields := conn.LogFields()
		fields["error"] = err
		o.logger.Debug(fields, "Unregister during teardown failed")
	}
	if err := o.nif.Close(conn.Socket); err != nil {
		fields := conn.LogFields()
		fields["error"] = err
		fields["errno"] = netif.Classify(err)
		o.logger.Debug(fields, "Close during teardown failed")
	}
	o.Forget(conn)
}

// Pump polls once and dispatches every ready socket. It returns how many
// sockets were serviced.
func (o *Orchestrator) Pump(timeout time.Duration) (int, error) {
	ready, err := o.poller.Poll(timeout)
	if err != nil {
		return 0, fmt.Errorf("poll: %w", err)
	}
	for _, r := range ready {
		o.Dispatch(r.Socket, r.Events)
	}
	return len(ready), nil
}

// Close tears down every tracked connection. Handlers are resolved up
// front because tearing down a listener may unregister its protocol.
func (o *Orchestrator) Close() {
	conns := o.Connections()
	handlers := make([]Handler, len(conns))
	for i, conn := range conns {
		handlers[i], _ = o.Resolve(conn)
	}
	for i, conn := range conns {
		o.Teardown(conn, handlers[i])
	}
}
