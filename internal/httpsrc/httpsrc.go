package httpsrc

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"

	"github.com/snapetech/upipe-go/internal/httpclient"
	"github.com/snapetech/upipe-go/internal/safeurl"
	"github.com/snapetech/upipe-go/internal/ubuf"
	"github.com/snapetech/upipe-go/internal/upipe"
	"github.com/snapetech/upipe-go/internal/uprobe"
	"github.com/snapetech/upipe-go/internal/uref"
)

// ChunkSize is how many bytes Source reads per emitted uref. 128 TS packets
// keeps each uref comfortably aligned to the 188-byte packet size that
// internal/tsdemux expects from a block.mpegtsaligned. source.
const ChunkSize = 128 * 188

// Source is the HTTP source pipe of spec.md §4.8: no input, one output. It
// fetches SourceURI over HTTP(S), detects the stream's flow.def from the
// response (content-type header, falling back to content sniffing), and
// emits fixed-size chunks downstream. The transport, TLS included, is the
// net/http client from internal/httpclient; Source does not throw
// EventSchemeHook and does not use a Hook.
type Source struct {
	*upipe.Pipe
	*upipe.Output

	mu       sync.Mutex
	uri      string
	client   *http.Client
	blockMgr *ubuf.BlockMgr
	retry    httpclient.RetryPolicy
	cancel   context.CancelFunc
	watchdog time.Duration
}

// NewSource allocates a Source pipe. watchdog is the maximum time between
// reads before Stalled is thrown (spec.md §5 "watchdogs fire SOURCE_END on
// their parent when exceeded"); zero disables it.
func NewSource(mgr upipe.Manager, probes *uprobe.Probe, watchdog time.Duration) *Source {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client := httpclient.ForStreaming()
	client.Jar = jar

	s := &Source{
		Output:   upipe.NewOutput(64),
		client:   client,
		blockMgr: ubuf.NewBlockMgr(true),
		retry:    httpclient.DefaultRetryPolicy,
		watchdog: watchdog,
	}
	s.Pipe = upipe.NewBase(mgr, probes, "http_src", s.teardown, nil)
	return s
}

func (s *Source) teardown() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Control implements upipe.ControlPipe for the generic SetURI/SetOption
// commands spec.md §3.6 requires every pipe family expose.
func (s *Source) Control(cmd upipe.Command) upipe.Status {
	switch c := cmd.(type) {
	case upipe.SetURI:
		if !safeurl.IsHTTPOrHTTPS(c.URI) {
			return upipe.StatusInvalid
		}
		s.mu.Lock()
		s.uri = c.URI
		s.mu.Unlock()
		return upipe.StatusNone
	case upipe.SetOutput:
		s.SetOutput(c.Output)
		return upipe.StatusNone
	case upipe.GetOutput:
		*c.Out = s.GetOutput()
		return upipe.StatusNone
	default:
		return upipe.StatusUnhandled
	}
}

// Start begins fetching in a background goroutine and returns immediately;
// the pipe emits a flow.def control uref as soon as the response headers
// are known, then data urefs as chunks arrive. Start returns an error
// (mapped from spec.md §7's EXTERNAL/INVALID) if the request could not
// even be issued; once streaming begins, failures are reported via
// UPROBE_SOURCE_END/FATAL instead of a return value.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	uri := s.uri
	s.mu.Unlock()
	if !safeurl.IsHTTPOrHTTPS(uri) {
		return upipe.ErrInvalid
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(runCtx, http.MethodGet, uri, nil)
	if err != nil {
		cancel()
		return upipe.ErrExternal
	}
	req.Header.Set("Accept-Encoding", "identity, br")

	resp, err := httpclient.DoWithRetry(runCtx, s.client, req, s.retry)
	if err != nil {
		cancel()
		s.Throw(uprobe.Fatal, uprobe.Args{ErrCode: int(upipe.StatusExternal)})
		return upipe.ErrExternal
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		cancel()
		s.Throw(uprobe.Fatal, uprobe.Args{ErrCode: int(upipe.StatusExternal)})
		return upipe.ErrExternal
	}

	def := detectFlowDef(resp)
	flowUref := uref.New()
	flowUref.SetFlowDef(def)
	s.SetFlowDef(flowUref)
	s.MarkValid()

	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		body = brotli.NewReader(body)
	}

	go s.pump(runCtx, resp, body)
	return nil
}

func (s *Source) pump(ctx context.Context, resp *http.Response, body io.Reader) {
	defer resp.Body.Close()
	r := bufio.NewReaderSize(body, ChunkSize)
	buf := make([]byte, ChunkSize)

	var watchdogTimer *time.Timer
	if s.watchdog > 0 {
		watchdogTimer = time.AfterFunc(s.watchdog, func() {
			s.Throw(uprobe.Stalled, uprobe.Args{})
		})
		defer watchdogTimer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.Throw(uprobe.SourceEnd, uprobe.Args{})
			return
		default:
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if watchdogTimer != nil {
				watchdogTimer.Reset(s.watchdog)
			}
			blk := s.blockMgr.NewFromBytes(buf[:n])
			u := uref.New()
			u.Ubuf = blk
			s.Emit(u)
		}
		if err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				s.Throw(uprobe.SourceEnd, uprobe.Args{})
				return
			}
			log.Printf("http_src: read error: %v", err)
			s.Throw(uprobe.Fatal, uprobe.Args{ErrCode: int(upipe.StatusExternal)})
			return
		}
	}
}

// detectFlowDef picks the initial flow.def from the response, preferring
// the Content-Type header and falling back to byte-sniffing the body.
func detectFlowDef(resp *http.Response) string {
	ct := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch {
	case ct == "video/mp2t":
		return "block.mpegts."
	case ct == "application/vnd.apple.mpegurl", ct == "application/x-mpegurl", strings.Contains(ct, "mpegurl"):
		return "block.hls."
	}

	peek := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, peek)
	peek = peek[:n]
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peek), resp.Body), resp.Body}

	return sniffFlowDef(peek)
}

func sniffFlowDef(b []byte) string {
	s := string(b)
	if strings.HasPrefix(s, "#EXTM3U") || strings.HasPrefix(s, "#EXT-X-") {
		return "block.hls."
	}
	for i := 0; i+188 <= len(b); i += 188 {
		if b[i] == 0x47 {
			return "block.mpegtsaligned."
		}
	}
	return "block."
}
