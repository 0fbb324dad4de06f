package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/nixlim/fieldwatch/internal/survey"
)

// uaFamily groups user agents that differ only in version or build details.
// Every marker must appear in the lower-cased user agent.
type uaFamily struct {
	name    string
	markers []string
}

// knownFamilies is checked in order, so more specific families come first.
var knownFamilies = []uaFamily{
	{name: "headless-automation", markers: []string{"headlesschrome"}},
	{name: "samsung-browser", markers: []string{"samsungbrowser"}},
	{name: "android-webview", markers: []string{"android", "; wv)"}},
	{name: "android-chrome", markers: []string{"android", "chrome/"}},
	{name: "android-firefox", markers: []string{"android", "firefox/"}},
	{name: "ios-chrome", markers: []string{"iphone", "crios/"}},
	{name: "ios-safari", markers: []string{"iphone", "safari/"}},
	{name: "ipad-safari", markers: []string{"ipad", "safari/"}},
	{name: "desktop-edge", markers: []string{"edg/"}},
	{name: "desktop-chrome", markers: []string{"chrome/"}},
	{name: "desktop-firefox", markers: []string{"firefox/"}},
	{name: "desktop-safari", markers: []string{"macintosh", "safari/"}},
	{name: "okhttp", markers: []string{"okhttp/"}},
	{name: "curl", markers: []string{"curl/"}},
	{name: "python-requests", markers: []string{"python-requests/"}},
}

var versionPattern = regexp.MustCompile(`[0-9]+([._][0-9]+)*`)

// UserAgentFamily maps a user agent to a stable family name. Unknown agents
// fall back to the agent string with version numbers stripped, so two builds
// of the same client still collapse together. An empty agent yields "".
func UserAgentFamily(userAgent string) string {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return ""
	}

	for _, family := range knownFamilies {
		if containsAll(ua, family.markers) {
			return family.name
		}
	}

	stripped := versionPattern.ReplaceAllString(ua, "")
	return strings.Join(strings.Fields(stripped), " ")
}

func containsAll(s string, markers []string) bool {
	for _, m := range markers {
		if !strings.Contains(s, m) {
			return false
		}
	}
	return true
}

// Fingerprint returns the coarse device fingerprint: a SHA-256 over the user
// agent family and the platform, screen, language and timezone signals,
// shortened to 16 hex characters. Devices that report nothing beyond a user
// agent fingerprint on the family alone.
func Fingerprint(d survey.DeviceInfo) string {
	family := UserAgentFamily(d.UserAgent)
	if family == "" {
		return ""
	}
	parts := []string{
		family,
		strings.ToLower(strings.TrimSpace(d.Platform)),
		strings.ToLower(strings.TrimSpace(d.Screen)),
		strings.ToLower(strings.TrimSpace(d.Language)),
		strings.TrimSpace(d.Timezone),
	}
	return hashString(strings.Join(parts, "|"))[:16]
}

// hashString returns the hex-encoded SHA-256 hash of s.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
