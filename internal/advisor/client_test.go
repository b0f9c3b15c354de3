package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
)

func testRequest() Request {
	return Request{
		Setpoint:     120,
		Gains:        control.Gains{Kp: 1, Ki: 0.1, Kd: 0.05},
		MeanAbsError: 12.5,
		MaxAbsError:  40.1,
		Samples: []telemetry.Sample{
			telemetry.NewSample(50*time.Millisecond, 120, 20, 255),
			telemetry.NewSample(100*time.Millisecond, 120, 25, 255),
		},
	}
}

func TestClient_Propose(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"p": 2.0, "i": 0.5, "d": 0.05, "status": "TUNING"}`}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "tuner-1", Timeout: time.Second})
	text, err := c.Propose(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "tuner-1", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Contains(t, gotBody.Messages[1].Content, "Setpoint: 120.00")
	assert.Contains(t, gotBody.Messages[1].Content, "P=1, I=0.1, D=0.05")
	assert.Contains(t, text, `"p": 2.0`)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 30 * time.Millisecond})
	_, err := c.Propose(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Propose(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Propose(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestBuildSummary(t *testing.T) {
	req := testRequest()
	req.Trend = "error shrinking ~1.2/s"
	got := BuildSummary(req)

	assert.Contains(t, got, "Current PID gains: P=1, I=0.1, D=0.05")
	assert.Contains(t, got, "Mean |error|: 12.50, max |error|: 40.10")
	assert.Contains(t, got, "Trend: error shrinking ~1.2/s")
	assert.Contains(t, got, "Recent 2 samples")
	assert.Contains(t, got, "50,20.0,255,+100.0")
}
