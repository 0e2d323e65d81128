package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gammanik/filet/internal/relay"
)

func TestHealthz(t *testing.T) {
	h := newRelayHarness(t, relay.DefaultTimeouts())

	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "filet", body["service"])
}

func TestTransferInfoMalformedID(t *testing.T) {
	h := newRelayHarness(t, relay.DefaultTimeouts())

	resp, err := http.Get(h.srv.URL + "/api/transfer/not-an-id")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransferInfoUnknownID(t *testing.T) {
	h := newRelayHarness(t, relay.DefaultTimeouts())

	resp, err := http.Get(h.srv.URL + "/api/transfer/aaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransferInfoByPhase(t *testing.T) {
	h := newRelayHarness(t, relay.DefaultTimeouts())

	rec, err := h.reg.Create(relay.Metadata{Filename: "report.pdf", Size: 12345})
	require.NoError(t, err)

	get := func() int {
		resp, err := http.Get(h.srv.URL + "/api/transfer/" + rec.ID)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// registered: отправитель ещё не представился, id наружу не отдаем
	assert.Equal(t, http.StatusNotFound, get())

	require.NoError(t, rec.MarkSenderReady())
	resp, err := http.Get(h.srv.URL + "/api/transfer/" + rec.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Filename string `json:"filename"`
		Size     uint64 `json:"size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "report.pdf", body.Filename)
	assert.Equal(t, uint64(12345), body.Size)

	// claimed: страница получателя может перезагрузиться
	_, err = h.reg.Claim(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get())

	// streaming и дальше: метаданные больше не отдаем
	require.NoError(t, rec.SignalStart())
	require.NoError(t, rec.PushChunk(context.Background(), []byte("x")))
	assert.Equal(t, http.StatusGone, get())

	rec.Cancel(relay.KindPeerDisconnected)
	assert.Equal(t, http.StatusGone, get())
}
