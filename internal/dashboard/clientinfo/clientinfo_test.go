package clientinfo

import "testing"

// Real-world descriptors exercising every keyword rule, including the
// ordering traps (Edge contains "chrome", Chrome contains "safari", iOS
// contains "mac os", Android contains "linux").
func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		want       Info
	}{
		{
			name:       "chrome on windows",
			descriptor: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			want:       Info{Device: DeviceDesktop, Browser: "Chrome", OS: "Windows"},
		},
		{
			name:       "edge on windows",
			descriptor: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
			want:       Info{Device: DeviceDesktop, Browser: "Edge", OS: "Windows"},
		},
		{
			name:       "safari on mac",
			descriptor: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			want:       Info{Device: DeviceDesktop, Browser: "Safari", OS: "macOS"},
		},
		{
			name:       "firefox on linux",
			descriptor: "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
			want:       Info{Device: DeviceDesktop, Browser: "Firefox", OS: "Linux"},
		},
		{
			name:       "opera on windows",
			descriptor: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 OPR/111.0.0.0",
			want:       Info{Device: DeviceDesktop, Browser: "Opera", OS: "Windows"},
		},
		{
			name:       "safari on iphone",
			descriptor: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			want:       Info{Device: DeviceMobile, Browser: "Safari", OS: "iOS"},
		},
		{
			name:       "safari on ipad",
			descriptor: "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			want:       Info{Device: DeviceTablet, Browser: "Safari", OS: "iOS"},
		},
		{
			name:       "chrome on android phone",
			descriptor: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			want:       Info{Device: DeviceMobile, Browser: "Chrome", OS: "Android"},
		},
		{
			name:       "android tablet",
			descriptor: "Mozilla/5.0 (Linux; Android 13; SM-X710 Tablet) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			want:       Info{Device: DeviceTablet, Browser: "Chrome", OS: "Android"},
		},
		{
			name:       "samsung internet",
			descriptor: "Mozilla/5.0 (Linux; Android 14; SM-S921B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/25.0 Chrome/121.0.0.0 Mobile Safari/537.36",
			want:       Info{Device: DeviceMobile, Browser: "Samsung Internet", OS: "Android"},
		},
		{
			name:       "internet explorer 11",
			descriptor: "Mozilla/5.0 (Windows NT 10.0; WOW64; Trident/7.0; rv:11.0) like Gecko",
			want:       Info{Device: DeviceDesktop, Browser: "Internet Explorer", OS: "Windows"},
		},
		{
			name:       "chromebook",
			descriptor: "Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			want:       Info{Device: DeviceDesktop, Browser: "Chrome", OS: "ChromeOS"},
		},
		{
			name:       "kindle",
			descriptor: "Mozilla/5.0 (Linux; U; Android 9; KFMAWI) AppleWebKit/537.36 (KHTML, like Gecko) Silk/126.2 like Chrome/126.0.0.0 Safari/537.36",
			want:       Info{Device: DeviceTablet, Browser: "Chrome", OS: "Android"},
		},
		{
			name:       "windows phone",
			descriptor: "Mozilla/5.0 (Windows Phone 10.0; Android 6.0.1; Microsoft; Lumia 950) AppleWebKit/537.36",
			want:       Info{Device: DeviceMobile, Browser: "Unknown", OS: "Windows Phone"},
		},
		{
			name:       "empty descriptor",
			descriptor: "",
			want:       Info{Device: DeviceDesktop, Browser: "Unknown", OS: "Unknown"},
		},
		{
			name:       "curl",
			descriptor: "curl/8.7.1",
			want:       Info{Device: DeviceDesktop, Browser: "Unknown", OS: "Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.descriptor)
			if got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.descriptor, got, tt.want)
			}
		})
	}
}
