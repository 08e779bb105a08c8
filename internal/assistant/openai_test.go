package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	helpyhttp "github.com/psds-microservice/helpy/http"
	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySendsConversation(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get(helpyhttp.HeaderAuthorization))
		assert.Equal(t, helpyhttp.ContentTypeJSON, r.Header.Get(helpyhttp.HeaderContentType))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Try restarting."}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL+"/v1/", "secret", "small", "You are support.")
	reply, err := c.Classify(context.Background(), []Message{{Role: RoleUser, Content: "it broke"}})
	require.NoError(t, err)
	assert.Equal(t, "Try restarting.", reply)

	assert.Equal(t, "small", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "it broke", got.Messages[1].Content)
}

func TestClassifyFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":`))
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		},
		"error body": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"type":"invalid_request","message":"bad model"}}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewOpenAI(srv.URL, "", "m", "").Classify(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
			assert.ErrorIs(t, err, errs.ErrClassifier)
		})
	}
}

func TestClassifyUnreachable(t *testing.T) {
	_, err := NewOpenAI("http://127.0.0.1:1", "", "m", "").Classify(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrClassifier)
}

func TestIsEscalation(t *testing.T) {
	assert.True(t, IsEscalation("I will Call The Administrator for you.", DefaultEscalationMarker))
	assert.False(t, IsEscalation("Try restarting.", DefaultEscalationMarker))
	assert.False(t, IsEscalation("anything", ""))
}
