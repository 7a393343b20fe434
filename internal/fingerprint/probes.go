package fingerprint

import (
	"os"
)

// RenderInfo holds graphics adapter strings reported by a render surface.
type RenderInfo struct {
	Vendor   string
	Renderer string
}

// RenderProbe exposes the graphics capability of the device. Acquire is
// called once per fingerprint generation; the second return value reports
// whether a rendering surface could be created at all.
type RenderProbe interface {
	Acquire() (RenderInfo, bool)
}

// AudioProbe exposes the audio capability of the device. Acquire builds a
// transient audio graph; callers must Close the graph on every exit path.
type AudioProbe interface {
	Acquire() (AudioGraph, bool)
}

// AudioGraph is a transient generator-to-analyser signal graph.
type AudioGraph interface {
	// TimeDomain returns one snapshot of the analyser's time-domain buffer.
	TimeDomain() ([]float32, error)
	// Close tears the graph down, disconnecting the generator.
	Close() error
}

// UnavailableRenderProbe reports no graphics capability; the fingerprint
// carries the "none" sentinel for both adapter strings.
type UnavailableRenderProbe struct{}

// Acquire implements RenderProbe.
func (UnavailableRenderProbe) Acquire() (RenderInfo, bool) {
	return RenderInfo{}, false
}

// StaticRenderProbe reports fixed adapter strings.
type StaticRenderProbe struct {
	Info RenderInfo
}

// Acquire implements RenderProbe.
func (p StaticRenderProbe) Acquire() (RenderInfo, bool) {
	if p.Info.Vendor == "" && p.Info.Renderer == "" {
		return RenderInfo{}, false
	}
	return p.Info, true
}

// HostRenderProbe resolves adapter strings from the host environment.
// Headless hosts typically expose neither, in which case the probe is
// unavailable.
type HostRenderProbe struct{}

// Acquire implements RenderProbe.
func (HostRenderProbe) Acquire() (RenderInfo, bool) {
	vendor := os.Getenv("WEBCLASS_GPU_VENDOR")
	renderer := os.Getenv("WEBCLASS_GPU_RENDERER")
	if vendor == "" && renderer == "" {
		return RenderInfo{}, false
	}
	return RenderInfo{Vendor: vendor, Renderer: renderer}, true
}

// UnavailableAudioProbe reports no audio capability; the fingerprint
// carries the "audio_error" sentinel.
type UnavailableAudioProbe struct{}

// Acquire implements AudioProbe.
func (UnavailableAudioProbe) Acquire() (AudioGraph, bool) {
	return nil, false
}
