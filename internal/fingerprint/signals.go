package fingerprint

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Sentinel values used when a signal cannot be observed.
const (
	SentinelUnknown = "unknown"
	SentinelNone    = "none"
)

// Signals is the fixed, ordered signal bundle a fingerprint is derived
// from. Field order matters: the hash is computed over the JSON
// serialization, which follows declaration order.
type Signals struct {
	UserAgent           string  `json:"userAgent"`
	Platform            string  `json:"platform"`
	HardwareConcurrency string  `json:"hardwareConcurrency"`
	DeviceMemory        string  `json:"deviceMemory"`
	ScreenResolution    string  `json:"screenResolution"`
	ColorDepth          int     `json:"colorDepth"`
	PixelRatio          float64 `json:"pixelRatio"`
	Timezone            string  `json:"timezone"`
	WebGLVendor         string  `json:"webglVendor"`
	WebGLRenderer       string  `json:"webglRenderer"`
	AudioFingerprint    string  `json:"audioFingerprint"`
	TouchSupport        bool    `json:"touchSupport"`
	CookiesEnabled      bool    `json:"cookiesEnabled"`
	DoNotTrack          string  `json:"doNotTrack"`
}

// Screen describes the display the agent reports for this device.
type Screen struct {
	Width      int
	Height     int
	ColorDepth int
	PixelRatio float64
}

// Resolution formats the screen as "WIDTHxHEIGHT".
func (s Screen) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// hostUserAgent builds the agent identity string reported as the user
// agent signal.
func hostUserAgent(version string) string {
	return fmt.Sprintf("webclassification-agent/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
}

// hostPlatform reports the OS/architecture pair.
func hostPlatform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// hostConcurrency reports the logical CPU count, or the sentinel when the
// runtime cannot determine it.
func hostConcurrency() string {
	n := runtime.NumCPU()
	if n <= 0 {
		return SentinelUnknown
	}
	return strconv.Itoa(n)
}

// memoryClasses mirrors the coarse device-memory buckets browsers report,
// in GiB.
var memoryClasses = []float64{0.25, 0.5, 1, 2, 4, 8}

// hostMemoryClass buckets total system memory into a coarse class. Returns
// the sentinel when total memory cannot be read.
func hostMemoryClass() string {
	totalKB, err := readMemTotal()
	if err != nil || totalKB <= 0 {
		return SentinelUnknown
	}
	gib := float64(totalKB) / (1024 * 1024)

	class := memoryClasses[len(memoryClasses)-1]
	for _, c := range memoryClasses {
		if gib <= c {
			class = c
			break
		}
	}
	return strconv.FormatFloat(class, 'f', -1, 64)
}

// readMemTotal reads MemTotal from /proc/meminfo in KiB.
func readMemTotal() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		return strconv.ParseInt(fields[1], 10, 64)
	}
	return 0, fmt.Errorf("MemTotal not found")
}

// hostTimezone resolves the IANA timezone name for the host.
func hostTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if idx := strings.Index(target, "zoneinfo/"); idx != -1 {
			return target[idx+len("zoneinfo/"):]
		}
	}
	return time.Now().Location().String()
}

// hostDoNotTrack reads the user's tracking preference from the
// environment, or the sentinel when unset.
func hostDoNotTrack() string {
	if v := os.Getenv("DNT"); v != "" {
		return v
	}
	return SentinelUnknown
}
