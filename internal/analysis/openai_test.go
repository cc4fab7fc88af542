package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionServer(t *testing.T, content string, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "local-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "vsftpd 2.3.4")

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "local-model",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testInput() Input {
	return Input{
		Target:  "ftp.example.com",
		Scans:   []models.ScanOutput{{Tool: "nmap", Output: "21/tcp open ftp vsftpd 2.3.4"}},
		Matches: []models.VulnerabilityMatch{{Signature: "vsftpd 2.3.4", Exploit: "exploit/unix/ftp/vsftpd_234_backdoor"}},
	}
}

func TestOpenAIAnalyzerCompatibleEndpoint(t *testing.T) {
	srv := newCompletionServer(t, "  Upgrade vsftpd immediately.  ", http.StatusOK)
	a := NewOpenAIAnalyzer(config.AnalysisConfig{BaseURL: srv.URL + "/v1", Model: "local-model"}, nil)
	require.True(t, a.IsEnabled())

	text, err := a.Analyze(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "Upgrade vsftpd immediately.", text)
}

func TestOpenAIAnalyzerServerError(t *testing.T) {
	srv := newCompletionServer(t, "", http.StatusInternalServerError)
	a := NewOpenAIAnalyzer(config.AnalysisConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "local-model"}, nil)

	_, err := a.Analyze(context.Background(), testInput())
	assert.Error(t, err)
}

func TestOpenAIAnalyzerDisabled(t *testing.T) {
	a := NewOpenAIAnalyzer(config.AnalysisConfig{}, nil)
	assert.False(t, a.IsEnabled())

	_, err := a.Analyze(context.Background(), testInput())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOpenAIAnalyzerClose(t *testing.T) {
	srv := newCompletionServer(t, "ok", http.StatusOK)
	a := NewOpenAIAnalyzer(config.AnalysisConfig{BaseURL: srv.URL + "/v1", Model: "local-model"}, nil)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Analyze(context.Background(), testInput())
	assert.ErrorIs(t, err, ErrClosed)
}
