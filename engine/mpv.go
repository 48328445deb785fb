package engine

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tubeflow-cli/tubeflow/constant"
	"github.com/tubeflow-cli/tubeflow/filterchain"
	"github.com/tubeflow-cli/tubeflow/log"
	"github.com/tubeflow-cli/tubeflow/media"
	"github.com/tubeflow-cli/tubeflow/network"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
	destroyTimeout    = 3 * time.Second
	maxCaptionBytes   = 10 << 20
)

// MPV implements Engine on top of mpv's JSON-IPC protocol.
type MPV struct {
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{}
	title      string
	filters    *filterchain.Chain
	httpClient *http.Client
	mu         sync.Mutex // protects socket writes
}

// NewMPV creates an mpv engine. The process is spawned lazily on the first Load.
func NewMPV() *MPV {
	return &MPV{
		exited:     make(chan struct{}),
		httpClient: network.Client,
	}
}

// SetHTTPClient replaces the client used for side-loaded caption fetches, so
// proxied and fingerprinted configurations apply to them too.
func (m *MPV) SetHTTPClient(client *http.Client) {
	if client != nil {
		m.httpClient = client
	}
}

// SetTitle sets the window and media title applied on the next Load.
func (m *MPV) SetTitle(title string) {
	m.title = sanitizeTitle(title)
}

// SetFilters implements Engine. mpv cannot run filters on its own traffic, so
// the chain applies to the exchanges this side issues: the initial manifest
// request here and side-loaded caption fetches in AddTextTrack. Segment and
// playlist traffic reaches the chain through the playback session's relay.
func (m *MPV) SetFilters(chain *filterchain.Chain) {
	m.filters = chain
}

// Load implements Engine. The first call spawns the mpv process; subsequent calls
// replace the active media over IPC.
func (m *MPV) Load(ctx context.Context, src string, startTime float64, mimeType string) error {
	safeURL, err := sanitizeMediaTarget(src)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	if m.filters != nil {
		if safeURL, err = m.filterLoadTarget(safeURL); err != nil {
			return err
		}
	}

	log.Debugf("loading %s media at %.1fs", mimeType, startTime)

	if m.running() {
		_, err := m.sendCommand([]interface{}{
			"loadfile", safeURL, "replace", fmt.Sprintf("start=%f", startTime),
		})
		return err
	}

	return m.spawn(ctx, safeURL, startTime)
}

// filterLoadTarget runs the request filter chain over the manifest exchange and
// returns the possibly rewritten URL.
func (m *MPV) filterLoadTarget(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse media target: %w", err)
	}

	req := &filterchain.Request{
		Method:  http.MethodGet,
		URL:     parsed,
		Headers: http.Header{},
	}
	if err := m.filters.FilterRequest(filterchain.KindManifest, req); err != nil {
		return "", err
	}

	return req.URL.String(), nil
}

// spawn starts the mpv process and waits for its IPC socket.
func (m *MPV) spawn(ctx context.Context, safeURL string, startTime float64) error {
	// Random socket name under os.TempDir() for cross-platform support.
	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("generate socket name: %w", err)
		}
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%x.sock", constant.Tubeflow, randomBytes))
	}

	// Pass only the socket, title, position and URL. No --vo, --profile or
	// --hwdec; the user's mpv.conf stays authoritative.
	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		"--force-window=yes",
		"--idle=yes",
		fmt.Sprintf("--start=%f", startTime),
	}

	if m.title != "" {
		args = append(args,
			fmt.Sprintf("--force-media-title=%s", m.title),
			// Some mpv builds only respect --title.
			fmt.Sprintf("--title=%s", m.title),
		)
	}

	args = append(args, safeURL)

	m.cmd = exec.Command("mpv", args...)

	// Detach from the parent process group so a shell interrupt does not take
	// the player down with it.
	m.cmd.SysProcAttr = sysProcAttr()
	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	// Reap the process to prevent zombies.
	m.exited = make(chan struct{})
	go func() {
		_ = m.cmd.Wait()
		close(m.exited)
	}()

	if err := m.waitForSocket(ctx); err != nil {
		if m.cmd.Process != nil {
			select {
			case <-m.exited:
			default:
				log.Warnf("killing mpv: socket never became ready")
				_ = m.cmd.Process.Kill()
			}
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	return nil
}

// waitForSocket polls until the IPC socket accepts connections.
func (m *MPV) waitForSocket(ctx context.Context) error {
	for i := 0; i < socketWaitRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		case <-time.After(socketWaitDelay):
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// Unload implements Engine. The process stays alive in idle mode.
func (m *MPV) Unload(ctx context.Context) error {
	_, err := m.sendCommand([]interface{}{"stop"})
	return err
}

// mpvTrack mirrors one entry of mpv's track-list property.
type mpvTrack struct {
	ID         int     `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Lang       string  `json:"lang"`
	Codec      string  `json:"codec"`
	Selected   bool    `json:"selected"`
	DemuxW     int     `json:"demux-w"`
	DemuxH     int     `json:"demux-h"`
	DemuxFPS   float64 `json:"demux-fps"`
	DemuxBit   int     `json:"demux-bitrate"`
	HearingImp bool    `json:"hearing-impaired"`
}

// trackList fetches and decodes mpv's track-list property.
func (m *MPV) trackList() []mpvTrack {
	data, err := m.sendCommand([]interface{}{"get_property", "track-list"})
	if err != nil {
		log.Warnf("track-list unavailable: %v", err)
		return nil
	}

	// The IPC layer decodes into generic values; round-trip through JSON to get
	// typed tracks.
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var tracks []mpvTrack
	if err := json.Unmarshal(raw, &tracks); err != nil {
		log.Warnf("track-list decode failed: %v", err)
		return nil
	}
	return tracks
}

// VariantTracks implements Engine.
func (m *MPV) VariantTracks() []media.Variant {
	video := lo.Filter(m.trackList(), func(t mpvTrack, _ int) bool {
		return t.Type == "video"
	})
	return lo.Map(video, func(t mpvTrack, _ int) media.Variant {
		return media.Variant{
			ID:         strconv.Itoa(t.ID),
			Width:      t.DemuxW,
			Height:     t.DemuxH,
			FrameRate:  t.DemuxFPS,
			Bitrate:    t.DemuxBit,
			VideoCodec: t.Codec,
			Label:      t.Title,
			Active:     t.Selected,
		}
	})
}

// AudioTracks implements Engine.
func (m *MPV) AudioTracks() []media.AudioTrack {
	audio := lo.Filter(m.trackList(), func(t mpvTrack, _ int) bool {
		return t.Type == "audio"
	})
	return lo.Map(audio, func(t mpvTrack, _ int) media.AudioTrack {
		return media.AudioTrack{
			ID:       strconv.Itoa(t.ID),
			Label:    t.Title,
			Language: t.Lang,
			Active:   t.Selected,
		}
	})
}

// TextTracks implements Engine.
func (m *MPV) TextTracks() []media.TextTrack {
	subs := lo.Filter(m.trackList(), func(t mpvTrack, _ int) bool {
		return t.Type == "sub"
	})
	return lo.Map(subs, func(t mpvTrack, _ int) media.TextTrack {
		kind := "captions"
		if t.HearingImp {
			kind = "sdh"
		}
		return media.TextTrack{
			ID:       strconv.Itoa(t.ID),
			Label:    t.Title,
			Language: t.Lang,
			Kind:     kind,
			Active:   t.Selected,
		}
	})
}

// SelectVariant implements Engine.
func (m *MPV) SelectVariant(id string) error {
	return m.setTrackProperty("vid", id)
}

// SelectTextTrack implements Engine.
func (m *MPV) SelectTextTrack(id string) error {
	return m.setTrackProperty("sid", id)
}

func (m *MPV) setTrackProperty(property, id string) error {
	numeric, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("track id %q is not numeric", id)
	}
	_, err = m.sendCommand([]interface{}{"set_property", property, numeric})
	return err
}

// SetTextTrackVisibility implements Engine.
func (m *MPV) SetTextTrackVisibility(visible bool) error {
	_, err := m.sendCommand([]interface{}{"set_property", "sub-visibility", visible})
	return err
}

// SeekRange implements Engine. mpv exposes no explicit seekable window for
// on-demand media; duration stands in for the end.
func (m *MPV) SeekRange() media.SeekRange {
	end, err := m.getFloatProperty("duration")
	if err != nil {
		return media.SeekRange{}
	}
	return media.SeekRange{Start: 0, End: end}
}

// Seek implements Engine.
func (m *MPV) Seek(seconds float64) error {
	_, err := m.sendCommand([]interface{}{"seek", seconds, "absolute"})
	return err
}

// Pause implements Engine.
func (m *MPV) Pause() error {
	_, err := m.sendCommand([]interface{}{"set_property", "pause", true})
	return err
}

// Resume implements Engine.
func (m *MPV) Resume() error {
	_, err := m.sendCommand([]interface{}{"set_property", "pause", false})
	return err
}

// Paused reports the current suspension state.
func (m *MPV) Paused() (bool, error) {
	data, err := m.sendCommand([]interface{}{"get_property", "pause"})
	if err != nil {
		return false, err
	}
	paused, _ := data.(bool)
	return paused, nil
}

// Position reports the current absolute playback position in seconds.
func (m *MPV) Position() (float64, error) {
	return m.getFloatProperty("time-pos")
}

// AddTextTrack implements Engine. The caption payload is fetched through the
// filter chain so subtitle response repairs apply, then handed to mpv from a
// temporary file.
func (m *MPV) AddTextTrack(ctx context.Context, rawURL, lang, label string) error {
	safeURL, err := sanitizeMediaTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid caption target: %w", err)
	}

	if m.filters != nil {
		localPath, err := m.fetchFilteredCaptions(ctx, safeURL)
		if err != nil {
			return err
		}
		safeURL = localPath
	}

	_, err = m.sendCommand([]interface{}{"sub-add", safeURL, "auto", label, lang})
	return err
}

// fetchFilteredCaptions downloads a caption track, runs it through the response
// filters and stages the repaired payload in a temporary file.
func (m *MPV) fetchFilteredCaptions(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptionBytes))
	if err != nil {
		return "", err
	}

	filtered := &filterchain.Response{
		URL:     resp.Request.URL,
		Headers: resp.Header,
		Body:    body,
	}
	if err := m.filters.FilterResponse(filterchain.KindSubtitle, filtered); err != nil {
		return "", err
	}

	staged, err := os.CreateTemp("", constant.Tubeflow+"-captions-*.vtt")
	if err != nil {
		return "", err
	}
	defer staged.Close()

	if _, err := staged.Write(filtered.Body); err != nil {
		return "", err
	}
	return staged.Name(), nil
}

// Destroy implements Engine. Tries a graceful IPC quit first, then falls back to
// killing the process group.
func (m *MPV) Destroy(ctx context.Context) error {
	if m.socketPath == "" {
		return nil
	}

	_, _ = m.sendCommand([]interface{}{"quit"})

	select {
	case <-m.exited:
	case <-ctx.Done():
		_ = killProcess(m.cmd)
	case <-time.After(destroyTimeout):
		_ = killProcess(m.cmd)
	}

	_ = os.Remove(m.socketPath)
	return nil
}

// Wait returns a channel closed when the mpv process exits.
func (m *MPV) Wait() <-chan struct{} {
	return m.exited
}

// Socket returns the IPC socket path, for wiring an event listener.
func (m *MPV) Socket() string {
	return m.socketPath
}

// running reports whether the spawned process is alive and responding.
func (m *MPV) running() bool {
	if m.socketPath == "" || m.cmd == nil {
		return false
	}

	select {
	case <-m.exited:
		return false
	default:
	}

	_, err := m.sendCommand([]interface{}{"get_property", "pid"})
	return err == nil
}

// getFloatProperty retrieves a float64 mpv property via IPC.
func (m *MPV) getFloatProperty(name string) (float64, error) {
	data, err := m.sendCommand([]interface{}{"get_property", name})
	if err != nil {
		return 0, err
	}

	val, ok := data.(float64)
	if !ok {
		return 0, fmt.Errorf("property %s: expected float64, got %T", name, data)
	}
	return val, nil
}

// sanitizeMediaTarget validates that a target is safe to pass to mpv on its
// command line.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty URL")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in URL")
	}

	// A leading dash would be parsed as a flag.
	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("url must not start with '-'")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(l), nil
}

// sanitizeTitle strips characters that break mpv's argument parsing.
func sanitizeTitle(title string) string {
	t := strings.ReplaceAll(title, "\n", " ")
	t = strings.ReplaceAll(t, "\r", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	t = strings.ReplaceAll(t, "\x00", "")
	return strings.TrimSpace(t)
}
