package guidance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenyourself/reflection-core/internal/model"
)

func TestWorkerClientStartSession(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody workerRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"mirror": "Das klingt nach einem schweren Tag.",
			"question": "Was war heute am schwersten?",
			"risk_level": "none",
			"followups": ["\"Ich glaube, es war?\""],
			"session": {"thread_id": "w-1", "turn_index": 0, "max_turns": 3}
		}`))
	}))
	defer srv.Close()

	client, err := NewWorkerClient(srv.URL, "secret", 5*time.Second)
	require.NoError(t, err)

	res, err := client.StartSession(context.Background(), "Ich hatte einen harten Tag", "de", "Europe/Zurich")
	require.NoError(t, err)

	assert.Equal(t, "/v1/reflect/start", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "Ich hatte einen harten Tag", gotBody.Text)
	assert.Equal(t, "de", gotBody.Locale)

	assert.Equal(t, "Das klingt nach einem schweren Tag.", res.Mirror)
	assert.Equal(t, "Was war heute am schwersten?", res.Question)
	assert.False(t, res.Risk)
	assert.Equal(t, []string{"Ich glaube, es war"}, res.Followups)
	require.True(t, res.HasSession)
	assert.Equal(t, "w-1", res.Session.ThreadID)
}

func TestWorkerClientEchoesSessionOnNextTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body workerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.Session)
		assert.Equal(t, "w-1", body.Session.ThreadID)

		w.Write([]byte(`{"reply": "Verstanden.", "flow": {"recommend_end": true}}`))
	}))
	defer srv.Close()

	client, err := NewWorkerClient(srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	sess := model.SessionHandle{ThreadID: "w-1", TurnIndex: 1, MaxTurns: 3}
	res, err := client.NextTurn(context.Background(), sess, "Arbeit", "de", "")
	require.NoError(t, err)

	assert.Equal(t, "Verstanden.", res.Mirror)
	assert.True(t, res.Closure())
}

func TestWorkerClientToleratesNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ich bin bei dir."))
	}))
	defer srv.Close()

	client, err := NewWorkerClient(srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	res, err := client.StartSession(context.Background(), "seed", "de", "")
	require.NoError(t, err)
	assert.Equal(t, "Ich bin bei dir.", res.Mirror)
}

func TestWorkerClientSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewWorkerClient(srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	_, err = client.StartSession(context.Background(), "seed", "de", "")
	assert.Error(t, err)
}

func TestNewWorkerClientRequiresURL(t *testing.T) {
	_, err := NewWorkerClient("", "", time.Second)
	assert.Error(t, err)
}
