package recognizer

import (
	"bytes"

	"github.com/youpy/go-wav"
)

// EncodeWAV wraps mono 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(len(pcm)), 1, uint32(sampleRate), 16)
	samples := make([]wav.Sample, len(pcm))
	for i, s := range pcm {
		samples[i].Values[0] = int(s)
	}
	if err := w.WriteSamples(samples); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
