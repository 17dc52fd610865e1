package probe

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 300 * time.Millisecond

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// holdingListener answers TLS handshakes and leaves every other connection
// hanging without a response.
type holdingListener struct {
	net.Listener

	mu   sync.Mutex
	held []net.Conn
}

type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (l *holdingListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		br := bufio.NewReader(conn)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		first, err := br.Peek(1)
		_ = conn.SetReadDeadline(time.Time{})
		if err == nil && first[0] == 0x16 { // TLS handshake record
			return &peekedConn{Conn: conn, r: br}, nil
		}
		l.mu.Lock()
		l.held = append(l.held, conn)
		l.mu.Unlock()
	}
}

func (l *holdingListener) closeHeld() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.held {
		_ = c.Close()
	}
}

// newHTTPSOnlyServer starts a TLS server on a port where plain HTTP hangs.
func newHTTPSOnlyServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(handler)
	l := &holdingListener{Listener: srv.Listener}
	srv.Listener = l
	srv.StartTLS()
	t.Cleanup(srv.Close)
	t.Cleanup(l.closeHeld)
	return srv
}

// newSilentPort accepts connections and never answers them.
func newSilentPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestClassify_HTTP(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "ok", status: http.StatusOK},
		{name: "server error still counts", status: http.StatusInternalServerError},
		{name: "not found still counts", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			host, port := hostPort(t, srv.URL)
			c := New(Options{Timeout: testTimeout})

			assert.Equal(t, HTTP, c.Classify(context.Background(), host, port))
		})
	}
}

func TestClassify_LargeBodyNotRead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := make([]byte, 64<<10)
		for i := 0; i < 64; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	host, port := hostPort(t, srv.URL)
	c := New(Options{Timeout: testTimeout})

	assert.Equal(t, HTTP, c.Classify(context.Background(), host, port))
}

func TestClassify_SendsProbeHeader(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get(Header) + " " + r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	New(Options{Timeout: testTimeout}).Classify(context.Background(), host, port)

	assert.Equal(t, "true /", got.Load())
}

func TestClassify_DoesNotFollowRedirects(t *testing.T) {
	var followed atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/elsewhere" {
			followed.Add(1)
			return
		}
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	c := New(Options{Timeout: testTimeout})

	assert.Equal(t, HTTP, c.Classify(context.Background(), host, port))
	assert.Equal(t, int32(0), followed.Load())
}

func TestClassify_HTTPTimesOutHTTPSAnswers(t *testing.T) {
	srv := newHTTPSOnlyServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	host, port := hostPort(t, srv.URL)
	c := New(Options{Timeout: testTimeout, InsecureSkipVerify: true})

	assert.Equal(t, HTTPS, c.Classify(context.Background(), host, port))
}

func TestClassify_TLSVerificationFailureIsNone(t *testing.T) {
	srv := newHTTPSOnlyServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	host, port := hostPort(t, srv.URL)
	c := New(Options{Timeout: testTimeout})

	assert.Equal(t, None, c.Classify(context.Background(), host, port))
}

func TestClassify_NoListener(t *testing.T) {
	c := New(Options{Timeout: testTimeout})

	assert.Equal(t, None, c.Classify(context.Background(), "127.0.0.1", closedPort(t)))
}

func TestClassify_SilentPortTimesOut(t *testing.T) {
	c := New(Options{Timeout: 100 * time.Millisecond})
	port := newSilentPort(t)

	start := time.Now()
	got := c.Classify(context.Background(), "127.0.0.1", port)

	assert.Equal(t, None, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClassify_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	host, port := hostPort(t, srv.URL)
	assert.Equal(t, None, New(Options{Timeout: testTimeout}).Classify(ctx, host, port))
}

func TestClassifyAll_PreservesInputOrder(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	_, slowPort := hostPort(t, slow.URL)
	_, fastPort := hostPort(t, fast.URL)
	deadPort := closedPort(t)

	c := New(Options{Timeout: time.Second})
	got := c.ClassifyAll(context.Background(), "127.0.0.1", []int{slowPort, deadPort, fastPort})

	assert.Equal(t, []Classification{
		{Port: slowPort, Protocol: HTTP},
		{Port: deadPort, Protocol: None},
		{Port: fastPort, Protocol: HTTP},
	}, got)
}

func TestClassifyAll_HangingPortDoesNotBlockOthers(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	_, fastPort := hostPort(t, fast.URL)
	silent := newSilentPort(t)

	c := New(Options{Timeout: 200 * time.Millisecond})

	start := time.Now()
	got := c.ClassifyAll(context.Background(), "127.0.0.1", []int{silent, fastPort})
	elapsed := time.Since(start)

	assert.Equal(t, []Classification{{Port: silent, Protocol: None}, {Port: fastPort, Protocol: HTTP}}, got)
	// two sequential probe timeouts for the silent port, run alongside the fast one
	assert.Less(t, elapsed, time.Second)
}

func TestClassifyAll_Empty(t *testing.T) {
	assert.Empty(t, New(Options{}).ClassifyAll(context.Background(), "localhost", nil))
}
