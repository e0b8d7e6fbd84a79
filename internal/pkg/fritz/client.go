// Package fritz is a minimal TR-064 client for AVM routers. It discovers the
// services a device advertises and invokes SOAP actions on them. HTTP digest
// authentication is delegated to github.com/icholy/digest.
package fritz

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/icholy/digest"
	"go.uber.org/zap"
)

const (
	descriptionPath = "/tr64desc.xml"
	defaultTimeout  = 10 * time.Second
)

type Option func(*Client)

// WithHTTPClient replaces the http client. Credentials passed to Connect are
// ignored when this option is used.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithBaseURL overrides the scheme://host:port derived from host and port.
func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(u, "/")
	}
}

type service struct {
	serviceType string
	controlURL  string
	scpdURL     string
}

// Client is an established session with one device.
type Client struct {
	baseURL  string
	http     *http.Client
	services map[string]service
	logger   *zap.Logger

	mu      sync.Mutex
	actions map[string][]string
}

// Connect fetches the device description and returns a session. Any failure
// is wrapped in ErrConnect.
func Connect(ctx context.Context, host string, port int, username, password string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		logger:  zap.L(),
		actions: map[string][]string{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
		if username != "" {
			c.http.Transport = &digest.Transport{Username: username, Password: password}
		}
	}

	body, err := c.get(ctx, descriptionPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	var desc description
	if err := xml.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("%w: invalid device description: %v", ErrConnect, err)
	}

	c.services = map[string]service{}
	for _, s := range desc.Device.flatten() {
		name := serviceName(s.ServiceID)
		if name == "" {
			continue
		}
		c.services[name] = service{
			serviceType: s.ServiceType,
			controlURL:  s.ControlURL,
			scpdURL:     s.SCPDURL,
		}
	}
	c.logger.Debug("connected to device", zap.String("url", c.baseURL), zap.Int("services", len(c.services)))
	return c, nil
}

// ListServices returns the advertised service names, sorted.
func (c *Client) ListServices() []string {
	out := make([]string, 0, len(c.services))
	for name := range c.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ListActions returns the actions a service declares in its SCPD. Results
// are cached for the lifetime of the session.
func (c *Client) ListActions(ctx context.Context, serviceName string) ([]string, error) {
	c.mu.Lock()
	cached, ok := c.actions[serviceName]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	svc, ok := c.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceName)
	}
	body, err := c.get(ctx, svc.scpdURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	var doc scpd
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid scpd for %s: %w", serviceName, err)
	}
	out := make([]string, 0, len(doc.Actions))
	for _, a := range doc.Actions {
		out = append(out, strings.TrimSpace(a.Name))
	}

	c.mu.Lock()
	c.actions[serviceName] = out
	c.mu.Unlock()
	return out, nil
}

// HasAction reports whether the service declares action. Lookup failures
// count as absent.
func (c *Client) HasAction(ctx context.Context, serviceName, action string) bool {
	actions, err := c.ListActions(ctx, serviceName)
	if err != nil {
		c.logger.Debug("unable to list actions", zap.String("service", serviceName), zap.Error(err))
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// CallAction invokes action on the named service. Device side failures come
// back as *ActionError, transport failures wrap ErrConnect.
func (c *Client) CallAction(ctx context.Context, serviceName, action string, params map[string]string) (map[string]string, error) {
	svc, ok := c.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+svc.controlURL,
		bytes.NewReader(buildEnvelope(svc.serviceType, action, params)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, svc.serviceType, action))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: unauthorized", ErrConnect)
	}

	out, f, err := parseResponse(resp.Body)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &ActionError{Service: serviceName, Action: action, Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("invalid response to %s.%s: %w", serviceName, action, err)
	}
	if f != nil {
		return nil, &ActionError{
			Service:     serviceName,
			Action:      action,
			Code:        f.UPnP.ErrorCode,
			Description: strings.TrimSpace(f.UPnP.ErrorDescription + " " + f.String),
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
