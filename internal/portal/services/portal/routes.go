package portal

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/haukened/rr-portal/internal/portal/domain"
	"github.com/haukened/rr-portal/internal/portal/services/httpd"
)

const (
	portalPage = "portal.html"
	// portalPathSegment is where probes are redirected; it is also in TriggerPaths.
	portalPathSegment = "portal"
	noCache    = "no-cache, no-store, must-revalidate"
)

// TriggerPaths are the paths operating systems and browsers request while
// probing for a captive network. Each serves the portal page.
var TriggerPaths = []string{
	"/portal",
	"/",
	"/hotspot-detect.html",
	"/library/test/success.html",
	"/success.html",
	"/generate_204",
	"/gen_204",
	"/mobile/status.php",
	"/check_network_status.txt",
	"/connectivitycheck.gstatic.com",
	"/connectivitycheck",
	"/redirect",
	"/login",
}

type savedNetwork struct {
	SSID string `json:"ssid"`
}

type networksDoc struct {
	Scanned []string       `json:"scanned"`
	Saved   []savedNetwork `json:"saved"`
}

func (p *Portal) routes() httpd.Routes {
	r := make(httpd.Routes, len(TriggerPaths)+4)
	for _, path := range TriggerPaths {
		r[path] = httpd.File(portalPage)
	}
	r["/style.css"] = httpd.File("style.css")
	r["/portal.js"] = httpd.File("portal.js")
	r["/networks.json"] = httpd.Func(p.networks)
	r["/save"] = httpd.Func(p.save)
	return r
}

// intercept redirects requests addressed to a connectivity-check host.
func (p *Portal) intercept(req *httpd.Request, res *httpd.Response) bool {
	if p.opts.Probes == nil || !p.opts.Probes.Match(req.Host()) {
		return false
	}
	fields := req.Conn.LogFields()
	fields["host"] = req.Host()
	fields["path"] = req.Path
	p.logger.Debug(fields, "Connectivity check redirected to portal")
	_ = res.Redirect(p.portalURL)
	return true
}

// networks lists scanned SSIDs and saved networks. Passwords are never
// included.
func (p *Portal) networks(req *httpd.Request, res *httpd.Response) ([]byte, error) {
	if req.Method != http.MethodGet {
		return nil, res.MethodNotAllowed(http.MethodGet)
	}

	doc := networksDoc{Scanned: []string{}, Saved: make([]savedNetwork, 0, len(p.saved))}
	if p.opts.Scanner != nil {
		scanned, err := p.opts.Scanner.SSIDs()
		if err != nil {
			p.logger.Warn(map[string]any{"error": err}, "Network scan failed")
		}
		if scanned != nil {
			doc.Scanned = scanned
		}
	}
	for _, n := range p.saved {
		doc.Saved = append(doc.Saved, savedNetwork{SSID: n.SSID})
	}
	return nil, res.JSON(doc, httpd.Header{Name: "Cache-Control", Value: noCache})
}

// save persists the submitted credentials, replacing any saved network.
func (p *Portal) save(req *httpd.Request, res *httpd.Response) ([]byte, error) {
	if req.Method != http.MethodPost {
		return nil, res.MethodNotAllowed(http.MethodPost)
	}

	form := req.Form()
	n, err := domain.NewNetwork(form["ssid"], form["password"])
	switch {
	case errors.Is(err, domain.ErrMissingSSID):
		return nil, res.BadRequest("Missing SSID")
	case err != nil:
		return nil, res.BadRequest(err.Error())
	}

	if err := p.opts.Store.Save(n); err != nil {
		return nil, fmt.Errorf("save network: %w", err)
	}
	p.saved = []domain.Network{n}
	p.networkSaved = true
	p.saveConn = req.Conn.ID

	fields := req.Conn.LogFields()
	fields["ssid"] = n.SSID
	p.logger.Info(fields, "Network saved")
	return nil, res.Text(http.StatusOK, "Network saved successfully.")
}
