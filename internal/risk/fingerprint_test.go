package risk

import (
	"math"
	"testing"

	"github.com/nixlim/fieldwatch/internal/survey"
)

func TestUserAgentFamily(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"android chrome", androidUA, "android-chrome"},
		{"android chrome other build", "Mozilla/5.0 (Linux; Android 11; Pixel 4) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.45 Mobile Safari/537.36", "android-chrome"},
		{"android webview", "Mozilla/5.0 (Linux; Android 10; K; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/120.0 Mobile Safari/537.36", "android-webview"},
		{"iphone safari", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1", "ios-safari"},
		{"headless", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36", "headless-automation"},
		{"curl", "curl/8.4.0", "curl"},
		{"unknown strips versions", "FieldApp/2.3.1 (build 4411)", "fieldapp/ (build )"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := UserAgentFamily(tc.ua); got != tc.want {
				t.Errorf("UserAgentFamily(%q) = %q, want %q", tc.ua, got, tc.want)
			}
		})
	}
}

func TestUserAgentFamily_UnknownVersionsCollapse(t *testing.T) {
	a := UserAgentFamily("FieldApp/2.3.1 (build 4411)")
	b := UserAgentFamily("FieldApp/2.4.0 (build 4502)")
	if a != b {
		t.Errorf("versions of the same unknown client should collapse: %q vs %q", a, b)
	}
}

func TestFingerprint(t *testing.T) {
	d := survey.DeviceInfo{UserAgent: androidUA, Platform: "Linux armv8l", Screen: "720x1600", Language: "en-IN", Timezone: "Asia/Kolkata"}

	fp := Fingerprint(d)
	if len(fp) != 16 {
		t.Fatalf("fingerprint length: want 16, got %d (%q)", len(fp), fp)
	}

	same := d
	same.DeviceID = "other"
	same.Language = "EN-in"
	if Fingerprint(same) != fp {
		t.Error("device id and case should not affect the fingerprint")
	}

	diff := d
	diff.Screen = "1080x2400"
	if Fingerprint(diff) == fp {
		t.Error("different screen should change the fingerprint")
	}

	if Fingerprint(survey.DeviceInfo{}) != "" {
		t.Error("no user agent should give an empty fingerprint")
	}
}

func TestHaversineKm(t *testing.T) {
	// One degree of latitude along a meridian.
	got := haversineKm(0, 0, 1, 0)
	want := earthRadiusKm * math.Pi / 180
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("haversineKm: want %f, got %f", want, got)
	}
	if haversineKm(19.076, 72.8777, 19.076, 72.8777) != 0 {
		t.Error("distance to self should be zero")
	}
}
