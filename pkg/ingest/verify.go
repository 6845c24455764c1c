package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signatureScheme describes where a provider carries its HMAC signature and
// which header names its event type and delivery id.
type signatureScheme struct {
	signatureHeader string
	prefix          string
	eventTypeHeader string
	deliveryHeader  string
}

var defaultScheme = signatureScheme{
	signatureHeader: "X-Webhook-Signature-256",
	prefix:          "sha256=",
	eventTypeHeader: "X-Webhook-Event",
	deliveryHeader:  "X-Webhook-Delivery",
}

var schemes = map[string]signatureScheme{
	"github": {
		signatureHeader: "X-Hub-Signature-256",
		prefix:          "sha256=",
		eventTypeHeader: "X-GitHub-Event",
		deliveryHeader:  "X-GitHub-Delivery",
	},
	"vercel": {
		signatureHeader: "X-Vercel-Signature",
		eventTypeHeader: "X-Vercel-Event",
		deliveryHeader:  "X-Vercel-Id",
	},
	"figma": {
		signatureHeader: "X-Figma-Signature",
		eventTypeHeader: "X-Figma-Event",
		deliveryHeader:  "X-Figma-Delivery",
	},
}

func schemeFor(service string) signatureScheme {
	if s, ok := schemes[service]; ok {
		return s
	}
	return defaultScheme
}

// verifySignature recomputes the HMAC-SHA256 of the raw body and compares it
// to the provided header value in constant time.
func verifySignature(secret string, body []byte, provided string, scheme signatureScheme) bool {
	if provided == "" {
		return false
	}
	provided = strings.TrimPrefix(provided, scheme.prefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}

// payloadDigest is the fallback external id when a provider sends no
// delivery id header and no id field.
func payloadDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
