// Package client implements the client side of the anchoring protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrs "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skutner/anchoring"
	"github.com/skutner/anchoring/config"
)

var _ anchoring.Anchorer = &Client{}

// MaxResponseSize is the most that is read from any one service response.
const MaxResponseSize = 16 << 20

// Client talks to all the anchoring services of a domain at once.
//
// Every call re-reads the settings and re-locates the services.
// Nothing is cached between calls.
type Client struct {
	loc      anchoring.Locator
	settings config.Source
	bypass   anchoring.Bypass

	// HTTP is the client used for requests to anchoring services.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
}

// New produces a new Client.
// The bypass may be nil,
// in which case every call goes to the network,
// whatever the settings say.
func New(loc anchoring.Locator, settings config.Source, bypass anchoring.Bypass) *Client {
	return &Client{loc: loc, settings: settings, bypass: bypass}
}

// Versions implements anchoring.Anchorer.
// It requests the chain from all services for the key's domain
// and returns the one from the first service to respond successfully.
// Differences among services are neither detected nor reconciled.
func (c *Client) Versions(ctx context.Context, key anchoring.Key) (anchoring.Chain, error) {
	s := c.settings.Settings()
	ctx, cancel := withTimeout(ctx, s)
	defer cancel()

	return c.route(s, key.Domain).versions(ctx, key.ID)
}

// AddVersion implements anchoring.Anchorer.
// It sends the record to all services for the key's domain.
// If any of them accepts it,
// AddVersion succeeds with the body of the first acceptance.
// If all reject it,
// the error is one of their rejections;
// a conflict
// (the record's Last pointer is not a service's head)
// satisfies errors.Is(err, anchoring.ErrConflict).
//
// On the bypass path only rec.New is written.
func (c *Client) AddVersion(ctx context.Context, key anchoring.Key, rec anchoring.Record) ([]byte, error) {
	s := c.settings.Settings()
	ctx, cancel := withTimeout(ctx, s)
	defer cancel()

	return c.route(s, key.Domain).addVersion(ctx, key.ID, rec)
}

func withTimeout(ctx context.Context, s config.Settings) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(s.Timeout))
	}
	return context.WithCancel(ctx)
}

type route interface {
	versions(ctx context.Context, id string) (anchoring.Chain, error)
	addVersion(ctx context.Context, id string, rec anchoring.Record) ([]byte, error)
}

// A settingsBypass can serve a call under settings the caller has already read
// (see bypass.Switch).
type settingsBypass interface {
	Using(config.Settings) anchoring.Bypass
}

func (c *Client) route(s config.Settings, domain string) route {
	if c.bypass != nil && s.Bypassed(domain) {
		b := c.bypass
		if sb, ok := b.(settingsBypass); ok {
			b = sb.Using(s)
		}
		return localRoute{b: b}
	}
	return networkRoute{c: c, domain: domain}
}

type localRoute struct {
	b anchoring.Bypass
}

func (r localRoute) versions(ctx context.Context, id string) (anchoring.Chain, error) {
	return r.b.ReadVersions(ctx, id)
}

func (r localRoute) addVersion(ctx context.Context, id string, rec anchoring.Record) ([]byte, error) {
	return r.b.WriteVersion(ctx, id, rec.New)
}

type networkRoute struct {
	c      *Client
	domain string
}

func (r networkRoute) versions(ctx context.Context, id string) (anchoring.Chain, error) {
	endpoints, err := r.c.locate(ctx, r.domain)
	if err != nil {
		return nil, err
	}

	outcomes := settle(ctx, endpoints, func(ctx context.Context, endpoint string) (anchoring.Chain, error) {
		body, err := r.c.do(ctx, http.MethodGet, endpoint, versionsURL(endpoint, id), nil)
		if err != nil {
			return nil, err
		}
		var chain anchoring.Chain
		err = json.Unmarshal(body, &chain)
		return chain, errors.Wrapf(err, "decoding versions from %s", endpoint)
	})

	chain, err := firstFulfilled(outcomes)
	return chain, errors.Wrapf(err, "all %d anchoring services failed to return versions of %s", len(endpoints), id)
}

func (r networkRoute) addVersion(ctx context.Context, id string, rec anchoring.Record) ([]byte, error) {
	endpoints, err := r.c.locate(ctx, r.domain)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}

	outcomes := settle(ctx, endpoints, func(ctx context.Context, endpoint string) ([]byte, error) {
		body, err := r.c.do(ctx, http.MethodPut, endpoint, addURL(endpoint, id), payload)
		var serr *anchoring.StatusError
		if stderrs.As(err, &serr) && serr.Code == http.StatusPreconditionRequired {
			return nil, errors.Wrapf(anchoring.ErrConflict, "anchoring service %s", endpoint)
		}
		return body, err
	})

	body, err := firstFulfilled(outcomes)
	return body, errors.Wrapf(err, "all %d anchoring services rejected version %s of %s", len(endpoints), rec.New, id)
}

func (c *Client) locate(ctx context.Context, domain string) ([]string, error) {
	endpoints, err := c.loc.Locate(ctx, domain)
	if err != nil {
		return nil, errors.Wrapf(err, "locating anchoring services for domain %s", domain)
	}
	if len(endpoints) == 0 {
		return nil, errors.Wrapf(anchoring.ErrNoService, "domain %s", domain)
	}
	return endpoints, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, u string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request for %s", u)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, u)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, errors.Wrapf(err, "reading response from %s", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &anchoring.StatusError{
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(b)),
		}
	}
	return b, nil
}

func versionsURL(endpoint, id string) string {
	return strings.TrimSuffix(endpoint, "/") + "/anchor/versions/" + url.PathEscape(id)
}

func addURL(endpoint, id string) string {
	return strings.TrimSuffix(endpoint, "/") + "/anchor/add/" + url.PathEscape(id)
}

type outcome[T any] struct {
	val T
	err error
}

// settle calls f once per endpoint, concurrently,
// and returns the outcomes in the order they settled.
// Every call runs to completion;
// errors are recorded in the outcomes and never abort the batch.
func settle[T any](ctx context.Context, endpoints []string, f func(context.Context, string) (T, error)) []outcome[T] {
	ch := make(chan outcome[T], len(endpoints))

	var g errgroup.Group
	for _, endpoint := range endpoints {
		endpoint := endpoint
		g.Go(func() error {
			val, err := f(ctx, endpoint)
			ch <- outcome[T]{val: val, err: err}
			return nil
		})
	}
	g.Wait()
	close(ch)

	result := make([]outcome[T], 0, len(endpoints))
	for o := range ch {
		result = append(result, o)
	}
	return result
}

// firstFulfilled returns the value of the first successful outcome.
// If there is none, it returns the first error.
func firstFulfilled[T any](outcomes []outcome[T]) (T, error) {
	var (
		zero     T
		firstErr error
	)
	for _, o := range outcomes {
		if o.err == nil {
			return o.val, nil
		}
		if firstErr == nil {
			firstErr = o.err
		}
	}
	return zero, firstErr
}
