package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// PlaybackControls mirrors the caller-facing speed/volume knobs applied to
// each synthesized chunk before it is published to subscribers.
type PlaybackControls struct {
	Rate   float64 // 1.0 = unchanged; validated to [0.25, 4.0] by the caller
	Volume float64 // 1.0 = unchanged; validated to [0.0, 2.0] by the caller
}

// ApplyPlaybackControls scales volume and, if Rate != 1.0, time-stretches
// pcm (mono PCM16LE at sampleRate) while preserving pitch. Volume scaling
// is always exact; time-stretch prefers an external tool and falls back to
// linear resampling (which does not preserve pitch) if none is available.
func ApplyPlaybackControls(ctx context.Context, pcm []byte, sampleRate int, controls PlaybackControls) ([]byte, error) {
	out := pcm
	if controls.Volume != 1.0 {
		out = scaleVolume(out, controls.Volume)
	}
	if controls.Rate != 1.0 {
		stretched, err := timeStretch(ctx, out, sampleRate, controls.Rate)
		if err != nil {
			return nil, err
		}
		out = stretched
	}
	return out, nil
}

func scaleVolume(pcm []byte, volume float64) []byte {
	n := len(pcm) / 2
	out := make([]byte, len(pcm))
	for i := 0; i < n; i++ {
		v := int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
		scaled := int(float64(v) * volume)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out[i*2] = byte(int16(scaled))
		out[i*2+1] = byte(int16(scaled) >> 8)
	}
	return out
}

// timeStretch changes playback rate while preserving pitch. It tries an
// external sox-like executable first (tempo changes without affecting
// pitch); if none is resolvable, it falls back to linear interpolation
// resampling, which changes pitch along with speed.
func timeStretch(ctx context.Context, pcm []byte, sampleRate int, rate float64) ([]byte, error) {
	if path := resolveSoxPath(); path != "" {
		stretched, err := timeStretchWithSox(ctx, path, pcm, sampleRate, rate)
		if err == nil {
			return stretched, nil
		}
		// Tool resolved but failed at runtime (missing codec, bad install):
		// degrade rather than fail the whole chunk.
	}
	return resampleLinear(pcm, rate), nil
}

// decomposeTempoFactors splits an arbitrary rate into a sequence of factors
// each within [0.5, 2.0], the working range most tempo tools accept without
// audible artifacts, by repeated halving or doubling.
func decomposeTempoFactors(rate float64) []float64 {
	if rate <= 0 {
		return []float64{1.0}
	}
	var factors []float64
	remaining := rate
	for remaining > 2.0 {
		factors = append(factors, 2.0)
		remaining /= 2.0
	}
	for remaining < 0.5 {
		factors = append(factors, 0.5)
		remaining /= 0.5
	}
	factors = append(factors, remaining)
	return factors
}

func timeStretchWithSox(ctx context.Context, soxPath string, pcm []byte, sampleRate int, rate float64) ([]byte, error) {
	factors := decomposeTempoFactors(rate)
	args := []string{
		"-t", "raw", "-r", fmt.Sprintf("%d", sampleRate), "-e", "signed", "-b", "16", "-c", "1", "-",
		"-t", "raw", "-r", fmt.Sprintf("%d", sampleRate), "-e", "signed", "-b", "16", "-c", "1", "-",
	}
	for _, f := range factors {
		args = append(args, "tempo", fmt.Sprintf("%.6f", f))
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, soxPath, args...)
	cmd.Stdin = bytes.NewReader(pcm)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		return nil, fmt.Errorf("audio: sox tempo failed: %w: %s", err, tail)
	}
	return stdout.Bytes(), nil
}

// resampleLinear changes duration by linear interpolation of the int16
// waveform. It is a last-resort fallback: speed changes under this method
// also shift pitch.
func resampleLinear(pcm []byte, rate float64) []byte {
	if rate <= 0 {
		rate = 1.0
	}
	n := len(pcm) / 2
	if n == 0 {
		return pcm
	}
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}

	outN := int(float64(n) / rate)
	if outN < 1 {
		outN = 1
	}
	out := make([]byte, outN*2)
	for i := 0; i < outN; i++ {
		srcPos := float64(i) * rate
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		var a, b int16
		if idx < n {
			a = samples[idx]
		} else {
			a = samples[n-1]
		}
		if idx+1 < n {
			b = samples[idx+1]
		} else {
			b = a
		}
		v := int16(float64(a) + frac*float64(b-a))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// resolveSoxPath finds a sox-compatible tempo tool via, in order: an
// explicit override, the bundled sidecar layout, PATH, and well-known
// package-manager install locations.
func resolveSoxPath() string {
	if override := os.Getenv("VOICEREADER_SOX_PATH"); override != "" {
		if isExecutable(override) {
			return override
		}
	}
	if bundled := findBundledSoxNearExecutable(); bundled != "" {
		return bundled
	}
	if p, err := exec.LookPath("sox"); err == nil {
		return p
	}
	for _, candidate := range wellKnownSoxLocations() {
		if isExecutable(candidate) {
			return candidate
		}
	}
	return ""
}

func findBundledSoxNearExecutable() string {
	exePath, err := os.Executable()
	if err != nil {
		return ""
	}
	dir := filepath.Dir(exePath)
	name := "sox"
	if runtime.GOOS == "windows" {
		name = "sox.exe"
	}
	for _, rel := range []string{name, filepath.Join("sox", name), filepath.Join("tools", "sox", name)} {
		candidate := filepath.Join(dir, rel)
		if isExecutable(candidate) {
			return candidate
		}
	}
	return ""
}

func wellKnownSoxLocations() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files (x86)\sox\sox.exe`,
			`C:\Program Files\sox\sox.exe`,
		}
	case "darwin":
		return []string{"/opt/homebrew/bin/sox", "/usr/local/bin/sox"}
	default:
		return []string{"/usr/bin/sox", "/usr/local/bin/sox"}
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0 || runtime.GOOS == "windows"
}
