package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	twilioSignatureHeader = "X-Twilio-Signature"
	formContentType       = "application/x-www-form-urlencoded"
)

// SignedRequest is the part of an inbound webhook that the provider signed,
// plus the headers needed to rebuild the URL it signed.
type SignedRequest struct {
	// URL is the request URL as this process received it.
	URL            string
	ForwardedProto string
	ForwardedHost  string
	// RequestURI is the path and query string.
	RequestURI string
	Params     url.Values
}

// SignatureVerifier checks provider HMAC-SHA1 webhook signatures.
type SignatureVerifier struct {
	AuthToken string
	// OverrideURL is the webhook URL configured at the provider, if known.
	OverrideURL string
}

// Verify reports whether signature matches any candidate canonical URL.
func (v SignatureVerifier) Verify(req SignedRequest, signature string) bool {
	if v.AuthToken == "" || signature == "" {
		return false
	}
	got := []byte(signature)
	for _, candidate := range CandidateURLs(req, v.OverrideURL) {
		want := []byte(ComputeSignature(v.AuthToken, candidate, req.Params))
		if subtle.ConstantTimeCompare(got, want) == 1 {
			return true
		}
	}
	return false
}

// CandidateURLs lists the URLs the provider may have signed: the URL as
// received, the URL rebuilt from X-Forwarded-* headers, and the configured
// override, the last two with and without a trailing slash.
func CandidateURLs(req SignedRequest, overrideURL string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	add(req.URL)
	if host := firstHeaderValue(req.ForwardedHost); host != "" {
		proto := firstHeaderValue(req.ForwardedProto)
		if proto == "" {
			proto = "https"
		}
		forwarded := proto + "://" + host + req.RequestURI
		add(forwarded)
		add(toggleTrailingSlash(forwarded))
	}
	if overrideURL != "" {
		add(overrideURL)
		add(toggleTrailingSlash(overrideURL))
	}
	return out
}

// ComputeSignature returns base64(HMAC-SHA1(token, url + sorted key/value pairs)).
// Values of a repeated key are concatenated in sorted order.
func ComputeSignature(authToken, rawURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		b.WriteString(k)
		for _, v := range values {
			b.WriteString(v)
		}
	}

	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// RequireFormContentType answers 415 unless the body is form encoded.
func RequireFormContentType(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsFormContentType(string(c.Request().Header.ContentType())) {
			logger.Warn("webhook rejected: unsupported content type",
				zap.String("path", c.Path()),
				zap.String("content_type", string(c.Request().Header.ContentType())))
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}
		return c.Next()
	}
}

// ValidateTwilioSignature rejects webhook requests that were not signed by
// the provider. It checks header presence (401) and the signature itself
// (403). Mount it after RequireFormContentType.
func ValidateTwilioSignature(verifier SignatureVerifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get(twilioSignatureHeader)
		if signature == "" {
			logger.Warn("webhook rejected: missing signature", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing signature",
			})
		}

		req := SignedRequestFromCtx(c)
		if !verifier.Verify(req, signature) {
			logger.Warn("webhook rejected: invalid signature",
				zap.String("path", c.Path()),
				zap.Strings("candidates", CandidateURLs(req, verifier.OverrideURL)))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// SignedRequestFromCtx captures the raw host and scheme of the request. Fiber's
// Hostname() already prefers X-Forwarded-Host, so the raw Host header is read
// directly to keep the two candidates distinct.
func SignedRequestFromCtx(c *fiber.Ctx) SignedRequest {
	scheme := "http"
	if c.Context().IsTLS() {
		scheme = "https"
	}
	params := url.Values{}
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		params.Add(string(key), string(value))
	})
	uri := requestPath(c)
	return SignedRequest{
		URL:            scheme + "://" + string(c.Request().Host()) + uri,
		ForwardedProto: c.Get(fiber.HeaderXForwardedProto),
		ForwardedHost:  c.Get(fiber.HeaderXForwardedHost),
		RequestURI:     uri,
		Params:         params,
	}
}

// requestPath is the origin-form path and query. The raw request target
// cannot be used: an absolute-form request line carries scheme and host too.
func requestPath(c *fiber.Ctx) string {
	uri := c.Request().URI()
	path := string(uri.PathOriginal())
	if path == "" {
		path = "/"
	}
	if q := uri.QueryString(); len(q) > 0 {
		path += "?" + string(q)
	}
	return path
}

// IsFormContentType reports whether ct is form-encoded, ignoring parameters.
func IsFormContentType(ct string) bool {
	mediaType, _, _ := strings.Cut(ct, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), formContentType)
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func toggleTrailingSlash(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	} else {
		u.Path += "/"
	}
	u.RawPath = ""
	return u.String()
}
