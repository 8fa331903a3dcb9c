// Package clientinfo classifies a session's raw client descriptor string
// into device class, browser, and operating system.
//
// Classification is deliberate substring matching against ordered keyword
// rules, not a parsed user-agent grammar: descriptors in the wild are messy
// and the dashboard only needs coarse buckets. Order matters: Edge
// descriptors contain "chrome", Chrome descriptors contain "safari", iOS
// descriptors contain "mac os", and Android descriptors contain "linux".
// Each list is checked top to bottom and the first match wins.
package clientinfo

import "strings"

// Device is the coarse device class of a session.
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceTablet  Device = "tablet"
	DeviceDesktop Device = "desktop"
)

// Info is the classified view of one client descriptor.
type Info struct {
	Device  Device `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// rule maps a keyword to its classification label.
type rule struct {
	keyword string
	label   string
}

// Tablet keywords are checked before mobile ones: an iPad descriptor also
// says "mobile".
var tabletKeywords = []string{"ipad", "tablet", "kindle", "silk"}

var mobileKeywords = []string{"mobile", "iphone", "android", "ipod", "windows phone"}

var browserRules = []rule{
	{"edg", "Edge"},
	{"opr", "Opera"},
	{"opera", "Opera"},
	{"samsungbrowser", "Samsung Internet"},
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
	{"msie", "Internet Explorer"},
	{"trident", "Internet Explorer"},
}

var osRules = []rule{
	{"windows phone", "Windows Phone"},
	{"windows", "Windows"},
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"ipod", "iOS"},
	{"android", "Android"},
	{"mac os", "macOS"},
	{"macintosh", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

// Classify buckets a raw client descriptor. Unknown browsers and operating
// systems come back as "Unknown"; unrecognised form factors default to
// desktop.
func Classify(descriptor string) Info {
	d := strings.ToLower(descriptor)
	return Info{
		Device:  classifyDevice(d),
		Browser: firstMatch(d, browserRules),
		OS:      firstMatch(d, osRules),
	}
}

func classifyDevice(d string) Device {
	for _, kw := range tabletKeywords {
		if strings.Contains(d, kw) {
			return DeviceTablet
		}
	}
	for _, kw := range mobileKeywords {
		if strings.Contains(d, kw) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

func firstMatch(d string, rules []rule) string {
	for _, r := range rules {
		if strings.Contains(d, r.keyword) {
			return r.label
		}
	}
	return "Unknown"
}
