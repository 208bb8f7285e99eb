// Package portal is the captive-portal application: a DNS responder that
// points every name at the device and an HTTP server that collects Wi-Fi
// credentials, both driven by one poll loop.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/rr-portal/internal/portal/common/codec"
	"github.com/haukened/rr-portal/internal/portal/common/log"
	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/gateways/netif"
	"github.com/haukened/rr-portal/internal/portal/gateways/wire"
	"github.com/haukened/rr-portal/internal/portal/repos/credentials"
	"github.com/haukened/rr-portal/internal/portal/repos/probehosts"
	"github.com/haukened/rr-portal/internal/portal/services/dnsd"
	"github.com/haukened/rr-portal/internal/portal/services/httpd"
	"github.com/haukened/rr-portal/internal/portal/services/orchestrator"
	"github.com/haukened/rr-portal/internal/portal/services/streamio"
)

const (
	DefaultPollTimeout    = time.Second
	DefaultSaveGraceTicks = 8
)

var (
	ErrNoStore        = errors.New("portal requires a credential store")
	ErrAlreadyStarted = errors.New("portal already started")
	ErrNotStarted     = errors.New("portal not started")
)

// Outcome is how a run of the portal ended.
type Outcome uint8

const (
	// OutcomeAborted means the run was cancelled before credentials were saved.
	OutcomeAborted Outcome = iota + 1
	// OutcomeSucceeded means credentials were saved.
	OutcomeSucceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAborted:
		return "aborted"
	case OutcomeSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// SSIDSource lists visible networks for /networks.json.
type SSIDSource interface {
	SSIDs() ([]string, error)
}

// Options configures a Portal.
type Options struct {
	DNSAddr  netip.AddrPort
	HTTPAddr netip.AddrPort
	// PortalIP is answered for every DNS query and used in redirects.
	PortalIP netip.Addr

	// Files holds portal.html, style.css and portal.js.
	Files   fs.FS
	Store   credentials.Store
	Scanner SSIDSource
	// Probes may be nil to disable the probe-host redirect.
	Probes probehosts.Matcher

	Limits httpd.Limits
	Stream streamio.Options

	PollTimeout    time.Duration
	SaveGraceTicks int
}

// Portal owns both servers and the run loop. It is not safe for
// concurrent use.
type Portal struct {
	opts   Options
	nif    netif.Interface
	poller netif.Poller
	logger log.Logger

	orch *orchestrator.Orchestrator
	dns  *dnsd.Responder
	http *httpd.Server

	portalURL string
	saved     []domain.Network

	networkSaved bool
	saveConn     uuid.UUID
	saveDrained  bool
	stopped      bool
}

// New builds a Portal and loads previously saved networks. A store that
// fails to load is logged and treated as empty.
func New(nif netif.Interface, poller netif.Poller, opts Options, logger log.Logger) (*Portal, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.SaveGraceTicks <= 0 {
		opts.SaveGraceTicks = DefaultSaveGraceTicks
	}
	p := &Portal{opts: opts, nif: nif, poller: poller, logger: logger}

	saved, err := opts.Store.Load()
	if err != nil {
		logger.Warn(map[string]any{"error": err}, "Failed to load saved networks, starting with none")
		saved = nil
	}
	p.saved = saved
	logger.Info(map[string]any{"count": len(saved)}, "Loaded saved networks")
	return p, nil
}

// Start binds the DNS responder and the HTTP server. If the HTTP server
// fails to bind, the DNS socket is released before returning.
func (p *Portal) Start() error {
	if p.orch != nil {
		return ErrAlreadyStarted
	}
	orch := orchestrator.New(p.nif, p.poller, domain.DefaultBindings(), log.Component(p.logger, "orchestrator"))

	dnsLog := log.Component(p.logger, "dnsd")
	dnsSrv, err := dnsd.Listen(orch, p.opts.DNSAddr, p.opts.PortalIP, wire.NewUDPCodec(dnsLog), dnsLog)
	if err != nil {
		return fmt.Errorf("start dns responder: %w", err)
	}

	httpSrv, err := httpd.Listen(orch, p.opts.HTTPAddr, httpd.Options{
		Routes:    p.routes(),
		Files:     p.opts.Files,
		Limits:    p.opts.Limits,
		Stream:    p.opts.Stream,
		Intercept: p.intercept,
		OnClose:   p.released,
	}, log.Component(p.logger, "httpd"))
	if err != nil {
		dnsSrv.Stop()
		return fmt.Errorf("start http server: %w", err)
	}

	p.orch, p.dns, p.http = orch, dnsSrv, httpSrv
	p.portalURL = portalURL(p.opts.PortalIP, httpSrv.Addr().Port())
	p.logger.Info(map[string]any{
		"dns":    dnsSrv.Addr().String(),
		"http":   httpSrv.Addr().String(),
		"portal": p.portalURL,
	}, "Portal HTTP and DNS servers started")
	return nil
}

func portalURL(ip netip.Addr, port uint16) string {
	host := ip.String()
	if port != 80 {
		host += ":" + strconv.Itoa(int(port))
	}
	return "http://" + host + "/" + codec.PercentEncode(portalPathSegment)
}

// DNSAddr returns the bound DNS address once started.
func (p *Portal) DNSAddr() netip.AddrPort {
	if p.dns == nil {
		return netip.AddrPort{}
	}
	return p.dns.Addr()
}

// HTTPAddr returns the bound HTTP address once started.
func (p *Portal) HTTPAddr() netip.AddrPort {
	if p.http == nil {
		return netip.AddrPort{}
	}
	return p.http.Addr()
}

// Saved returns the networks currently saved.
func (p *Portal) Saved() []domain.Network { return p.saved }

// NetworkSaved reports whether credentials were saved during this run.
func (p *Portal) NetworkSaved() bool { return p.networkSaved }

// Pump runs one poll-and-dispatch tick.
func (p *Portal) Pump(timeout time.Duration) (int, error) {
	if p.orch == nil {
		return 0, ErrNotStarted
	}
	return p.orch.Pump(timeout)
}

// Run pumps until cancel reports true or ctx is done (OutcomeAborted), or
// until credentials are saved and the save response has drained
// (OutcomeSucceeded). Waiting for the drain is bounded by SaveGraceTicks.
// Every socket is released before Run returns.
func (p *Portal) Run(ctx context.Context, cancel func() bool) Outcome {
	if p.orch == nil {
		p.logger.Error(nil, "Run called before Start")
		return OutcomeAborted
	}
	defer p.Stop()
	p.logger.Info(nil, "Entering captive portal run loop")

	grace := -1
	for {
		if cancel != nil && cancel() {
			p.logger.Info(nil, "Cancellation requested, exiting portal run loop")
			return OutcomeAborted
		}
		if err := ctx.Err(); err != nil {
			p.logger.Info(map[string]any{"reason": err.Error()}, "Context done, exiting portal run loop")
			return OutcomeAborted
		}
		if p.networkSaved {
			if p.saveDrained || grace == 0 {
				p.logger.Info(map[string]any{"drained": p.saveDrained}, "Network saved, exiting portal run loop")
				return OutcomeSucceeded
			}
			if grace < 0 {
				grace = p.opts.SaveGraceTicks
			}
			grace--
		}

		if _, err := p.Pump(p.opts.PollTimeout); err != nil {
			p.logger.Error(map[string]any{"error": err}, "Error in captive portal run loop")
		}
	}
}

// Serve starts the portal and runs it. Bind failures are returned.
func (p *Portal) Serve(ctx context.Context, cancel func() bool) (Outcome, error) {
	if err := p.Start(); err != nil {
		return OutcomeAborted, err
	}
	return p.Run(ctx, cancel), nil
}

// Stop releases every socket. It is safe to call more than once.
func (p *Portal) Stop() {
	if p.orch == nil || p.stopped {
		return
	}
	p.stopped = true
	p.orch.Close()
	p.dns.Stop()
	p.http.Stop()

	dnsStats := p.dns.Stats()
	fields := map[string]any{
		"dns_answered": dnsStats.Answered,
		"dns_dropped":  dnsStats.Dropped,
	}
	if p.opts.Probes != nil {
		st := p.opts.Probes.Stats()
		fields["probe_hosts"] = st.Hosts
		fields["probe_cache_hits"] = st.Cache.Hits
		fields["probe_cache_misses"] = st.Cache.Misses
	}
	p.logger.Info(fields, "Portal servers stopped")
}

// released marks the save exchange complete once its connection closes.
func (p *Portal) released(conn *domain.Connection) {
	if p.networkSaved && conn.ID == p.saveConn {
		p.saveDrained = true
	}
}
