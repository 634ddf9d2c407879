package handler

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const maxRelayRedirects = 5

var errHostNotAllowed = errors.New("audio host not allowed")

// MediaHandler relays remote audio through the API origin so players that
// cannot follow a share host's redirects or cookies still get the bytes.
type MediaHandler struct {
	cfg    config.AudioConfig
	client *http.Client
	log    zerolog.Logger
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(cfg config.AudioConfig, log zerolog.Logger) *MediaHandler {
	h := &MediaHandler{
		cfg: cfg,
		log: log.With().Str("component", "media_handler").Logger(),
	}
	h.client = &http.Client{
		Timeout: 60 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRelayRedirects {
				return errors.New("too many redirects")
			}
			if !h.allowed(req.URL) {
				return errHostNotAllowed
			}
			return nil
		},
	}
	return h
}

// RelayAudio godoc
// GET /api/v1/media/audio?src=...
// Streams an allowlisted remote audio file, capped at AUDIO_PROXY_MAX_MB.
func (h *MediaHandler) RelayAudio(c *gin.Context) {
	src, err := url.Parse(c.Query("src"))
	if err != nil || src.Host == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	if !h.allowed(src) {
		response.Fail(c, http.StatusForbidden, response.ErrAudioHostNotAllowed)
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, src.String(), nil)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	if rng := c.GetHeader("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, errHostNotAllowed) {
			response.Fail(c, http.StatusForbidden, response.ErrAudioHostNotAllowed)
			return
		}
		h.log.Warn().Err(err).Str("host", src.Host).Msg("Audio upstream unreachable")
		response.Fail(c, http.StatusBadGateway, response.ErrAudioUpstream)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		h.log.Debug().Int("status", resp.StatusCode).Str("host", src.Host).Msg("Audio upstream rejected request")
		response.Fail(c, http.StatusBadGateway, response.ErrAudioUpstream)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	// An HTML body is the share host's viewer or virus-scan page, not audio.
	if strings.HasPrefix(strings.ToLower(contentType), "text/html") {
		response.Fail(c, http.StatusBadGateway, response.ErrAudioUpstream)
		return
	}
	if resp.ContentLength > h.cfg.MaxBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	if resp.ContentLength >= 0 {
		c.Header("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	for _, name := range []string{"Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(name); v != "" {
			c.Header(name, v)
		}
	}
	c.Status(resp.StatusCode)

	n, err := io.Copy(c.Writer, io.LimitReader(resp.Body, h.cfg.MaxBytes))
	if err != nil {
		h.log.Debug().Err(err).Int64("bytes", n).Msg("Audio relay interrupted")
	}
}

func (h *MediaHandler) allowed(u *url.URL) bool {
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range h.cfg.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
