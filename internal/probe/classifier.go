// Package probe classifies published host ports by the web protocol they answer.
package probe

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/zorak1103/whatsrunning/internal/errors"
)

// Header is sent with every probe so another whatsrunning instance can answer
// without running its own snapshot.
const Header = "x-whatsrunning-probe"

// DefaultTimeout bounds a single probe request.
const DefaultTimeout = 2 * time.Second

// Protocol is the web protocol a port answered, or None.
type Protocol string

// Known protocols, in probe order.
const (
	None  Protocol = ""
	HTTP  Protocol = "http"
	HTTPS Protocol = "https"
)

var probeOrder = []Protocol{HTTP, HTTPS}

// Classification is the probe result for one port.
type Classification struct {
	Port     int
	Protocol Protocol
}

// Options configures a Classifier.
type Options struct {
	Timeout            time.Duration // per probe, DefaultTimeout if zero
	InsecureSkipVerify bool          // accept self-signed certificates on HTTPS probes
	Logger             *slog.Logger
}

// Classifier probes ports over HTTP and HTTPS.
// It is safe for concurrent use.
type Classifier struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	transport.Proxy = nil
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402 -- opt-in for self-signed container endpoints
	}

	return &Classifier{
		client: &http.Client{
			Transport: transport,
			// A redirect already proves the protocol answered.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Classify returns the first protocol, HTTP then HTTPS, that yields any HTTP
// response from host:port. Network-level failures move on to the next
// protocol; None is returned when neither answers.
func (c *Classifier) Classify(ctx context.Context, host string, port int) Protocol {
	for _, proto := range probeOrder {
		err := c.probe(ctx, proto, host, port)
		if err == nil {
			return proto
		}
		c.logger.Debug("Probe failed.", "host", host, "port", port, "protocol", proto, "err", err)
		if ctx.Err() != nil {
			return None
		}
	}
	return None
}

// ClassifyAll probes every port concurrently. The result has one entry per
// input port, in input order, regardless of completion order.
func (c *Classifier) ClassifyAll(ctx context.Context, host string, ports []int) []Classification {
	results := make([]Classification, len(ports))

	var g errgroup.Group
	for i, port := range ports {
		g.Go(func() error {
			results[i] = Classification{Port: port, Protocol: c.Classify(ctx, host, port)}
			return nil
		})
	}
	_ = g.Wait() // probes never return errors

	return results
}

func (c *Classifier) probe(ctx context.Context, proto Protocol, host string, port int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := string(proto) + "://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &apperrors.ProbeError{URL: url, Err: err}
	}
	req.Header.Set(Header, "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return &apperrors.ProbeError{URL: url, Err: err}
	}
	_ = resp.Body.Close()

	c.logger.Debug("Probe answered.", "url", url, "status", resp.StatusCode)
	return nil
}
