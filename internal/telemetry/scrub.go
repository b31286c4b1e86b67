package telemetry

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

// urlPattern matches absolute URLs inside log and error messages. Broker
// addresses and notification URLs routinely embed credentials, so whole URLs
// are replaced before an event leaves the process.
var urlPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s'"]+`)

// ScrubMessage replaces every URL in message with an anonymized form that
// keeps the scheme, host class, and port but drops credentials, hostnames,
// paths, and query strings.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, anonymizeURL)
}

func anonymizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		sum := sha256.Sum256([]byte(raw))
		return fmt.Sprintf("url-hash-%x", sum[:8])
	}

	anon := u.Scheme + "://" + hostClass(u.Hostname())
	if port := u.Port(); port != "" {
		anon += ":" + port
	}
	return anon
}

// hostClass buckets a host into a coarse category that is useful for
// debugging but identifies nobody.
func hostClass(host string) string {
	switch host {
	case "":
		return "no-host"
	case "localhost", "127.0.0.1", "::1":
		return "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			return "private-ip"
		}
		return "public-ip"
	}
	if !strings.Contains(host, ".") {
		return "local-name"
	}
	sum := sha256.Sum256([]byte(host))
	return fmt.Sprintf("host-%x", sum[:4])
}

// scrubEvent is the BeforeSend hook. It strips identity fields the SDK fills
// in on its own and scrubs URLs from the message and exception values.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	delete(event.Contexts, "device")
	delete(event.Contexts, "os")
	delete(event.Contexts, "runtime")
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")

	event.Message = ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = ScrubMessage(event.Exception[i].Value)
	}
	return event
}
