package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"connected":3,"waiting":1,"paired":2,"matches":5}`))
	}))
	defer srv.Close()

	s, err := fetchStats(context.Background(), srv.URL+"/stats")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Connected)
	assert.Equal(t, 1, s.Waiting)
	assert.Equal(t, 2, s.Paired)
	assert.EqualValues(t, 5, s.Matches)

	_, err = fetchStats(context.Background(), srv.URL+"/nope")
	assert.ErrorContains(t, err, "404")
}

func TestLoadClientConfig_RelayNeedsTURN(t *testing.T) {
	t.Setenv("TURN_SERVER", "")
	flagRelay, flagTURN = true, ""
	t.Cleanup(func() { flagRelay = false })

	_, err := loadClientConfig()
	assert.ErrorContains(t, err, "TURN")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "chat", "stats"} {
		assert.True(t, names[want], "missing %s", want)
	}

	f := chatCmd.Flags().Lookup("interest")
	require.NotNil(t, f)
	require.NoError(t, chatCmd.Flags().Parse([]string{"--interest", "go", "--interest", "chess"}))
	assert.Equal(t, []string{"go", "chess"}, flagInterests)
}
