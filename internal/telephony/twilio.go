package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/pkg/logger"
)

const headerTwilioSignature = "X-Twilio-Signature"

// ComputeSignature implements Twilio's request signing: HMAC-SHA1 over the full
// URL followed by every POST param name and value sorted by name, base64 encoded.
func ComputeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares in constant time.
func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	want := ComputeSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}

// SignatureMiddleware rejects webhook requests that were not signed by Twilio.
//
// publicBaseURL is the externally visible scheme+host Twilio was configured
// with; behind a proxy the request Host is not reliable.
func SignatureMiddleware(authToken, publicBaseURL string) gin.HandlerFunc {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		fullURL := base + c.Request.URL.RequestURI()
		if !ValidSignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(headerTwilioSignature)) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
