package touchline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewClient(u.Hostname(), port, 2*time.Second)
}

func TestFetchRegisters(t *testing.T) {
	var gotPath string
	var gotHeaders http.Header
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		io.WriteString(w, `<body><item_list>`+
			`<i><n>G0.RaumTemp</n><v>2105</v></i>`+
			`<i><n>R0.SystemStatus</n><v>0</v></i>`+
			`</item_list></body>`)
	}))
	defer srv.Close()

	values, err := clientFor(t, srv).FetchRegisters(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "/cgi-bin/ILRReadValues.cgi", gotPath)
	assert.Equal(t, "text/xml", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "SpiderControl/1.0 (iniNet-Solutions GmbH)", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "*", gotHeaders.Get("Accept-Language"))
	assert.Equal(t, "no-cache", gotHeaders.Get("Cache-Control"))
	assert.Equal(t, "no-cache", gotHeaders.Get("Pragma"))

	wantBody, err := BuildRequest(2, SystemStatusRegister)
	require.NoError(t, err)
	assert.Equal(t, wantBody, gotBody)

	assert.Equal(t, map[string]string{
		"G0.RaumTemp":     "2105",
		"R0.SystemStatus": "0",
	}, values)
}

func TestFetchRegistersHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := clientFor(t, srv).FetchRegisters(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestFetchRegistersConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := clientFor(t, srv).FetchRegisters(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestFetchRegistersMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<<<not xml")
	}))
	defer srv.Close()

	_, err := clientFor(t, srv).FetchRegisters(context.Background(), 1)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchRegistersCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := clientFor(t, srv).FetchRegisters(ctx, 1)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<body></body>`)
	}))
	defer srv.Close()

	assert.NoError(t, clientFor(t, srv).Ping(context.Background()))
}

func TestNewClientBaseURL(t *testing.T) {
	c := NewClient("192.168.0.104", 80, time.Second)
	assert.Equal(t, "http://192.168.0.104:80", c.baseURL)
}
