package proxy

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/sizestr"

	"incipit-hq/incipit/pkg/routing"
	"incipit-hq/incipit/pkg/telemetry/metrics"
)

// Tunnel message directions, used as metric labels.
const (
	DirectionUpstream   = "upstream"   // client to backend
	DirectionDownstream = "downstream" // backend to client
)

// controlWriteTimeout bounds writes of forwarded control frames.
const controlWriteTimeout = 5 * time.Second

// TunnelConfig configures a Tunnel.
type TunnelConfig struct {
	// ConnectTimeout bounds the TCP dial to a backend. 0 means no limit.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds both WebSocket handshakes. 0 means no limit.
	HandshakeTimeout time.Duration

	// ExposeErrors includes the upstream error text in 500 bodies.
	ExposeErrors bool

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// TunnelResult summarizes a finished tunnel.
type TunnelResult struct {
	Target    routing.Target
	Duration  time.Duration
	BytesUp   int64 // client to backend
	BytesDown int64 // backend to client
	Messages  int64
	Err       error // nil for a clean close
}

// Tunnel relays WebSocket connections between clients and backends.
//
// For each upgrade request it dials the backend first, then upgrades the
// client with the backend's negotiated subprotocol, then relays frames in
// both directions on a background goroutine until either side ends.
type Tunnel struct {
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	expose   bool
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu      sync.Mutex
	active  map[*relay]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewTunnel creates a tunnel handler.
func NewTunnel(cfg TunnelConfig) *Tunnel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	netDialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	return &Tunnel{
		dialer: &websocket.Dialer{
			NetDialContext:   netDialer.DialContext,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            nil,
		},
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			// Origin policy belongs to the backend, which sees the
			// client's Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		expose:  cfg.ExposeErrors,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "proxy.tunnel"),
		active:  make(map[*relay]struct{}),
	}
}

// IsUpgrade reports whether r asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Handle tunnels r if it is a WebSocket upgrade and reports whether it took
// the request. onClose, if not nil, is called once the relay ends.
//
// Upgrades for unknown hosts get the usual 404. Upgrades for the dashboard
// are rejected with ErrInvalidTarget.
func (t *Tunnel) Handle(w http.ResponseWriter, r *http.Request, target routing.Target, onClose func(TunnelResult)) bool {
	if !IsUpgrade(r) {
		return false
	}

	st := stateFrom(r.Context())

	switch target.Kind() {
	case routing.KindBackend:
	case routing.KindUnknown:
		writeUnknownHost(w)
		return true
	default:
		t.logger.ErrorContext(r.Context(), "websocket upgrade for non-backend target",
			"target", target.String(),
			"error", ErrInvalidTarget,
		)
		if st != nil {
			st.err = ErrInvalidTarget
		}
		writeError(w, ErrInvalidTarget, t.expose)
		return true
	}

	upstream, resp, err := t.dialer.DialContext(r.Context(), upstreamURL(target.Addr(), r.URL), upstreamHeader(r))
	if err != nil {
		t.failHandshake(w, r, target, resp, err)
		if st != nil {
			st.err = &UpstreamError{Target: target, Phase: PhaseHandshake, Err: err}
		}
		return true
	}

	var respHeader http.Header
	if sub := upstream.Subprotocol(); sub != "" {
		respHeader = http.Header{"Sec-Websocket-Protocol": {sub}}
	}

	client, err := t.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		// The upgrader has already answered the client.
		t.logger.WarnContext(r.Context(), "client websocket upgrade failed",
			"target", target.String(),
			"error", err,
		)
		_ = upstream.Close()
		if st != nil {
			st.err = err
		}
		return true
	}

	rl := &relay{
		target:   target,
		client:   client,
		upstream: upstream,
		metrics:  t.metrics,
		logger:   t.logger.With("backend", target.Addr(), "path", r.URL.Path),
	}

	if !t.track(rl) {
		rl.shutdown()
		return true
	}

	t.metrics.TunnelOpened(target.String())
	rl.logger.Debug("tunnel opened", "subprotocol", upstream.Subprotocol())

	go func() {
		defer t.wg.Done()
		defer t.untrack(rl)

		result := rl.run()

		t.metrics.TunnelClosed(target.String(), result.Duration)
		rl.logger.Debug("tunnel closed",
			"duration", result.Duration,
			"sent", sizestr.ToString(result.BytesUp),
			"received", sizestr.ToString(result.BytesDown),
			"messages", result.Messages,
			"error", result.Err,
		)
		if onClose != nil {
			onClose(result)
		}
	}()

	return true
}

// failHandshake answers the client after the backend handshake failed. A
// backend that answered with a regular HTTP response has that response
// passed through; otherwise the client gets a 500.
func (t *Tunnel) failHandshake(w http.ResponseWriter, r *http.Request, target routing.Target, resp *http.Response, err error) {
	t.metrics.RecordUpstreamError(target.String(), PhaseHandshake)
	t.logger.ErrorContext(r.Context(), "backend websocket handshake failed",
		"backend", target.Addr(),
		"path", r.URL.Path,
		"error", err,
	)

	if resp == nil {
		writeError(w, err, t.expose)
		return
	}

	defer resp.Body.Close()
	for k, vs := range resp.Header {
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (t *Tunnel) track(rl *relay) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return false
	}
	t.active[rl] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *Tunnel) untrack(rl *relay) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.active, rl)
}

// Active returns the number of open tunnels.
func (t *Tunnel) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.active)
}

// CloseAll sends a going-away close to both legs of every open tunnel,
// closes them, refuses new tunnels and waits for the relays to finish.
// It is registered with the HTTP server's shutdown.
func (t *Tunnel) CloseAll() {
	t.mu.Lock()
	t.closing = true
	relays := make([]*relay, 0, len(t.active))
	for rl := range t.active {
		relays = append(relays, rl)
	}
	t.mu.Unlock()

	if len(relays) > 0 {
		t.logger.Info("closing websocket tunnels", "count", len(relays))
	}
	for _, rl := range relays {
		rl.goAway()
	}
	t.wg.Wait()
}

func upstreamURL(addr string, in *url.URL) string {
	u := url.URL{
		Scheme:   "ws",
		Host:     addr,
		Path:     in.Path,
		RawPath:  in.RawPath,
		RawQuery: in.RawQuery,
	}
	return u.String()
}

// handshakeHeaders are generated by the websocket dialer and must not be
// copied from the client request.
var handshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
}

func upstreamHeader(r *http.Request) http.Header {
	h := make(http.Header, len(r.Header)+1)
	for k, vs := range r.Header {
		if handshakeHeaders[k] {
			continue
		}
		h[k] = append([]string(nil), vs...)
	}
	h.Set("Host", r.Host)
	return h
}

// frame is one message read from a leg.
type frame struct {
	kind  int
	data  []byte
	close *websocket.CloseError // set for close frames
	err   error
}

// errCloseTimeout ends a tunnel whose second leg never answered a close.
var errCloseTimeout = errors.New("close handshake timed out")

// relay pumps frames between the two legs of one tunnel.
type relay struct {
	target   routing.Target
	client   *websocket.Conn
	upstream *websocket.Conn
	metrics  *metrics.Collector
	logger   *slog.Logger

	closeOnce sync.Once
	goingAway atomic.Bool
}

// leg is the read side of one connection during a relay.
type leg struct {
	conn      *websocket.Conn
	frames    chan frame
	direction string // direction of the frames read from this leg
	bytes     *int64
	closed    bool // a close frame arrived from this leg
	done      bool // the reader exited
}

func (l *leg) recv() <-chan frame {
	if l.done {
		return nil
	}
	return l.frames
}

// run relays until the close handshake has passed through in both
// directions or either leg fails, then closes both legs and waits for both
// readers to exit.
func (rl *relay) run() TunnelResult {
	start := time.Now()
	result := TunnelResult{Target: rl.target}

	client := &leg{conn: rl.client, frames: make(chan frame), direction: DirectionUpstream, bytes: &result.BytesUp}
	upstream := &leg{conn: rl.upstream, frames: make(chan frame), direction: DirectionDownstream, bytes: &result.BytesDown}
	go readFrames(client.conn, client.frames)
	go readFrames(upstream.conn, upstream.frames)

	var (
		err      error
		first    *websocket.CloseError
		timer    *time.Timer
		deadline <-chan time.Time
	)
	for err == nil && !(client.closed && upstream.closed) {
		select {
		case f, ok := <-client.recv():
			err = rl.handle(client, upstream, f, ok, &first, &result.Messages)
		case f, ok := <-upstream.recv():
			err = rl.handle(upstream, client, f, ok, &first, &result.Messages)
		case <-deadline:
			err = errCloseTimeout
		}

		// Once one side has closed, the other gets a bounded time to answer.
		if timer == nil && first != nil {
			timer = time.NewTimer(controlWriteTimeout)
			deadline = timer.C
		}
	}
	if timer != nil {
		timer.Stop()
	}

	rl.shutdown()

	// Join the readers; closing the connections unblocks them.
	for !client.done || !upstream.done {
		select {
		case _, ok := <-client.recv():
			client.done = !ok
		case _, ok := <-upstream.recv():
			upstream.done = !ok
		}
	}

	if err == nil && first != nil {
		err = first
	}
	if !isNormalEnd(err) && !rl.goingAway.Load() {
		result.Err = err
	}
	result.Duration = time.Since(start)
	return result
}

// handle relays one frame read from src to dst. It returns a non-nil error
// when the tunnel should end.
func (rl *relay) handle(src, dst *leg, f frame, ok bool, first **websocket.CloseError, messages *int64) error {
	if !ok {
		src.done = true
		if src.closed {
			return nil
		}
		return io.EOF
	}
	if f.err != nil {
		// After a close frame the reader reports that same close as an error.
		if src.closed {
			return nil
		}
		return f.err
	}

	if f.kind == websocket.CloseMessage {
		src.closed = true
		if *first == nil {
			*first = f.close
		}
		err := dst.conn.WriteControl(websocket.CloseMessage, f.data, time.Now().Add(controlWriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !dst.closed {
			return err
		}
		return nil
	}

	return rl.forward(f, dst.conn, src.direction, src.bytes, messages)
}

// forward writes a data or ping/pong frame to dst.
func (rl *relay) forward(f frame, dst *websocket.Conn, direction string, bytes, messages *int64) error {
	switch f.kind {
	case websocket.TextMessage, websocket.BinaryMessage:
		if err := dst.WriteMessage(f.kind, f.data); err != nil {
			// dst already got a close; late data from the other side is dropped.
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		*bytes += int64(len(f.data))
		*messages++
		rl.metrics.RecordTunnelMessage(direction, len(f.data))
		return nil

	case websocket.PingMessage, websocket.PongMessage:
		err := dst.WriteControl(f.kind, f.data, time.Now().Add(controlWriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	}
	return nil
}

// readFrames reads from conn until it fails, sending every data and
// control frame to out. The final frame carries the error. out is closed on
// return.
func readFrames(conn *websocket.Conn, out chan<- frame) {
	defer close(out)

	conn.SetPingHandler(func(data string) error {
		out <- frame{kind: websocket.PingMessage, data: []byte(data)}
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		out <- frame{kind: websocket.PongMessage, data: []byte(data)}
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		out <- frame{
			kind:  websocket.CloseMessage,
			data:  websocket.FormatCloseMessage(code, text),
			close: &websocket.CloseError{Code: code, Text: text},
		}
		return nil
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			out <- frame{err: err}
			return
		}
		out <- frame{kind: kind, data: data}
	}
}

// goAway tells both peers the proxy is shutting down and closes the legs.
func (rl *relay) goAway() {
	rl.goingAway.Store(true)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "incipit shutting down")
	deadline := time.Now().Add(time.Second)
	_ = rl.client.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = rl.upstream.WriteControl(websocket.CloseMessage, msg, deadline)
	rl.shutdown()
}

// shutdown closes both underlying connections once.
func (rl *relay) shutdown() {
	rl.closeOnce.Do(func() {
		_ = rl.client.Close()
		_ = rl.upstream.Close()
	})
}

// isNormalEnd reports whether err is an orderly end of a tunnel.
func isNormalEnd(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
