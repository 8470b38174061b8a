package responseformat

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Stage string  `json:"growth_stage"`
	Index float64 `json:"ndvi"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"", JSON, false},
		{"JSON", JSON, false},
		{"msgpack", MsgPack, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMsgPackUsesJSONTags(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, MsgPack, sample{Stage: "Heading", Index: 0.71}))

	var generic map[string]any
	require.NoError(t, Decode(bytes.NewReader(buf.Bytes()), MsgPack, &generic))
	assert.Equal(t, "Heading", generic["growth_stage"])
	assert.Equal(t, 0.71, generic["ndvi"])
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/series", nil)
	require.NoError(t, f.WriteResponse(rec, req, sample{Stage: "Sowing"}, map[string]string{"X-Season": "2024"}))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "2024", rec.Header().Get("X-Season"))
	assert.JSONEq(t, `{"growth_stage":"Sowing","ndvi":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/series?format=msgpack", nil)
	require.NoError(t, f.WriteResponse(rec, req, sample{Stage: "Sowing", Index: 0.2}, nil))
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

	var got sample
	require.NoError(t, Decode(rec.Body, MsgPack, &got))
	assert.Equal(t, sample{Stage: "Sowing", Index: 0.2}, got)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/series", nil)
	require.NoError(t, NewFormatter().WriteError(rec, req, http.StatusNotFound, "no analysis"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"no analysis"}`, rec.Body.String())
}
