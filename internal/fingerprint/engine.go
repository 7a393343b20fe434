package fingerprint

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
	"github.com/KalaHanok/webclassification/internal/shared/hashing"
)

// FallbackPrefix marks hashes that were generated randomly after a
// fingerprint failure and therefore are not deterministic.
const FallbackPrefix = "failed_"

// Fingerprint is a derived device identity: the raw signal bundle plus a
// SHA-256 hex digest over its serialization. Raw is advisory data; Hash is
// the value transmitted as identity material.
type Fingerprint struct {
	Raw  json.RawMessage `json:"raw"`
	Hash string          `json:"hash"`
}

// Degraded reports whether this fingerprint fell back to a random token.
func (f Fingerprint) Degraded() bool {
	return len(f.Hash) >= len(FallbackPrefix) && f.Hash[:len(FallbackPrefix)] == FallbackPrefix
}

// Options configures an Engine. Zero-value fields get host defaults.
type Options struct {
	Version string
	Screen  Screen
	Render  RenderProbe
	Audio   AudioProbe
	Logger  *logging.Logger
}

// Engine generates fingerprints from host signals and capability probes.
type Engine struct {
	version string
	screen  Screen
	render  RenderProbe
	audio   AudioProbe
	hasher  *hashing.Hasher
	log     *logging.Logger
}

// New creates a fingerprint engine.
func New(opts Options) *Engine {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Screen.ColorDepth == 0 {
		opts.Screen.ColorDepth = 24
	}
	if opts.Screen.PixelRatio == 0 {
		opts.Screen.PixelRatio = 1.0
	}
	if opts.Render == nil {
		opts.Render = HostRenderProbe{}
	}
	if opts.Audio == nil {
		opts.Audio = SynthAudioProbe{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Engine{
		version: opts.Version,
		screen:  opts.Screen,
		render:  opts.Render,
		audio:   opts.Audio,
		hasher:  hashing.Default(),
		log:     opts.Logger,
	}
}

// Screen returns the display the engine reports for this device.
func (e *Engine) Screen() Screen {
	return e.screen
}

// Generate produces a fingerprint. It never fails: any internal error
// degrades to a random token hash so the caller can proceed with a
// best-effort, non-colliding value.
func (e *Engine) Generate(ctx context.Context) (fp Fingerprint) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("fingerprint generation panicked")
			fp = e.fallback()
		}
	}()

	signals := e.collect()

	raw, err := json.Marshal(signals)
	if err != nil {
		e.log.Error("fingerprint serialization failed")
		return e.fallback()
	}

	hash, err := e.hasher.HashJSON(signals)
	if err != nil {
		e.log.Error("fingerprint hashing failed")
		return e.fallback()
	}

	return Fingerprint{Raw: raw, Hash: hash}
}

// collect gathers the ordered signal set. Capability probes are consulted
// exactly once.
func (e *Engine) collect() Signals {
	render, hasRender := e.render.Acquire()
	vendor, renderer := SentinelNone, SentinelNone
	if hasRender {
		vendor, renderer = render.Vendor, render.Renderer
	}

	return Signals{
		UserAgent:           hostUserAgent(e.version),
		Platform:            hostPlatform(),
		HardwareConcurrency: hostConcurrency(),
		DeviceMemory:        hostMemoryClass(),
		ScreenResolution:    e.screen.Resolution(),
		ColorDepth:          e.screen.ColorDepth,
		PixelRatio:          e.screen.PixelRatio,
		Timezone:            hostTimezone(),
		WebGLVendor:         vendor,
		WebGLRenderer:       renderer,
		AudioFingerprint:    audioSignal(e.audio),
		TouchSupport:        false,
		CookiesEnabled:      true,
		DoNotTrack:          hostDoNotTrack(),
	}
}

// fallback builds the degraded fingerprint used when generation fails.
func (e *Engine) fallback() Fingerprint {
	raw, _ := json.Marshal(map[string]string{"error": "fingerprint_failed"})
	return Fingerprint{
		Raw:  raw,
		Hash: FallbackPrefix + uuid.NewString(),
	}
}
