package recognizer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
	"go.uber.org/zap"
)

func TestEncodeWAV(t *testing.T) {
	pcm := []int16{0, 1000, -1000, 32767}
	b, err := EncodeWAV(pcm, 16000)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(b[:4]))
	assert.Equal(t, "WAVE", string(b[8:12]))

	r := wav.NewReader(bytes.NewReader(b))
	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), format.SampleRate)
	assert.Equal(t, uint16(1), format.NumChannels)
	assert.Equal(t, uint16(16), format.BitsPerSample)
}

func TestDeepgramTranscribe(t *testing.T) {
	var gotQuery, gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"metadata":{"request_id":"r1","duration":0.5},"results":{"channels":[{"detected_language":"en","alternatives":[{"transcript":" My back hurts. ","confidence":0.93}]}]}}`)
	}))
	defer srv.Close()

	stt, err := NewTranscriber(Config{Vendor: "deepgram", APIKey: "dg-key", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "nova-3", stt.Model())

	tr, err := stt.Transcribe(context.Background(), make([]int16, 8000), 16000)
	require.NoError(t, err)
	assert.Equal(t, "My back hurts.", tr.Text)
	assert.Equal(t, "en", tr.Language)
	assert.InDelta(t, 0.93, tr.Confidence, 1e-9)
	assert.Equal(t, 500*time.Millisecond, tr.AudioDuration)

	assert.Equal(t, "Token dg-key", gotAuth)
	assert.Equal(t, "audio/wav", gotType)
	assert.Contains(t, gotQuery, "model=nova-3")
	assert.Contains(t, gotQuery, "language=multi")
	assert.Equal(t, "RIFF", string(gotBody[:4]))
}

func TestDeepgramErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"err_msg":"Invalid credentials."}`)
	}))
	defer srv.Close()

	d := NewDeepgram(DeepgramOptions{APIKey: "bad", BaseURL: srv.URL}, zap.NewNop())
	_, err := d.Transcribe(context.Background(), []int16{1, 2, 3}, 16000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = d.Transcribe(context.Background(), nil, 16000)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	_, err = NewTranscriber(Config{Vendor: "whisper"}, nil)
	assert.Error(t, err)
}
