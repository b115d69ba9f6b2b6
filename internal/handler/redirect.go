package handler

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/afftrack/afftrack/internal/shortlink"
)

// ShortLinkHandler resolves short tracking codes into the canonical
// tracking URL.
type ShortLinkHandler struct {
	baseURL string
	logger  *slog.Logger
}

// NewShortLinkHandler creates a ShortLinkHandler. baseURL is prefixed
// to the canonical tracking URL in redirects.
func NewShortLinkHandler(baseURL string, logger *slog.Logger) *ShortLinkHandler {
	return &ShortLinkHandler{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Redirect handles GET /s/{code}: decodes the short code, falling back
// to best-effort recovery on damaged input, and responds 302 to the
// canonical tracking URL.
func (h *ShortLinkHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, http.StatusNotFound, "CODE_NOT_FOUND", "Short code not found")
		return
	}

	params, err := shortlink.Decode(code)
	if err != nil {
		recovered, rerr := shortlink.Recover(code)
		if rerr != nil || recovered.Params.CampaignID == 0 {
			h.logger.Info("shortlink_undecodable", "code", code, "error", err)
			h.respondUndecodable(w, r, code)
			return
		}
		h.logger.Info("shortlink_recovered",
			"code", code,
			"fields", recovered.Fields,
			"complete", recovered.Complete,
		)
		params = recovered.Params
	}

	target := h.baseURL + "/v1/click?" + trackingQuery(params)

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=0")
	http.Redirect(w, r, target, http.StatusFound)
}

// respondUndecodable returns a diagnostic HTML page to browsers and a
// JSON 404 to everything else.
func (h *ShortLinkHandler) respondUndecodable(w http.ResponseWriter, r *http.Request, code string) {
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		writeError(w, http.StatusNotFound, "CODE_UNDECODABLE", "Short code could not be decoded")
		return
	}

	report := shortlink.Inspect(code)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>Unknown tracking link</title></head><body>
<h1>Unknown tracking link</h1>
<p>The code <code>%s</code> could not be decoded.</p>
<ul>
<li>apparent strategy: %s</li>
<li>length ok: %t</li>
<li>checksum ok: %t</li>
<li>recoverable: %t</li>
</ul>
</body></html>
`, html.EscapeString(code), report.ApparentStrategy, report.LengthOK, report.ChecksumOK, report.Recoverable)
}

// trackingQuery rebuilds the canonical tracking query string from
// decoded parameters, skipping empty fields.
func trackingQuery(params shortlink.TrackingParams) string {
	values := url.Values{}
	values.Set("cid", strconv.FormatUint(params.CampaignID, 10))
	clickID := params.ClickID
	if clickID == "" {
		// Codes encoded without a click token still need a usable
		// tracking URL; mint the identifier here.
		clickID = uuid.New().String()
	}
	values.Set("click_id", clickID)
	for i, sub := range params.Subs() {
		if sub != "" {
			values.Set(fmt.Sprintf("sub%d", i+1), sub)
		}
	}
	return values.Encode()
}
