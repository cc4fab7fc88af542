package exploit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type rpcServer struct {
	mu      sync.Mutex
	methods []string
	options map[string]interface{}
	handle  func(method string, args []interface{}) (int, map[string]interface{})
}

func (s *rpcServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/" || r.Header.Get("Content-Type") != msgpackContentType {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req []interface{}
	if err := msgpack.Unmarshal(body, &req); err != nil || len(req) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	method, _ := req[0].(string)

	s.mu.Lock()
	s.methods = append(s.methods, method)
	if method == "module.execute" && len(req) == 5 {
		if opts, ok := req[4].(map[string]interface{}); ok {
			s.options = opts
		}
	}
	s.mu.Unlock()

	status, resp := s.handle(method, req[1:])
	data, _ := msgpack.Marshal(resp)
	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func defaultHandler(method string, args []interface{}) (int, map[string]interface{}) {
	switch method {
	case "auth.login":
		if len(args) == 2 && args[1] == "secret" {
			return http.StatusOK, map[string]interface{}{"result": "success", "token": "TEMP123"}
		}
		return http.StatusUnauthorized, map[string]interface{}{
			"error": true, "error_class": "Msf::RPC::Exception", "error_message": "Login Failed",
		}
	case "module.execute":
		return http.StatusOK, map[string]interface{}{"job_id": 7, "uuid": "u-1"}
	case "core.version":
		return http.StatusOK, map[string]interface{}{"version": "6.4.12-dev", "ruby": "3.2.2", "api": "1.0"}
	case "auth.logout":
		return http.StatusOK, map[string]interface{}{"result": "success"}
	}
	return http.StatusInternalServerError, map[string]interface{}{"error": true, "error_message": "Unknown API Call"}
}

func newTestClient(t *testing.T, handler func(string, []interface{}) (int, map[string]interface{}), password string) (*MSFClient, *rpcServer) {
	rs := &rpcServer{handle: handler}
	srv := httptest.NewServer(rs)
	t.Cleanup(srv.Close)
	return &MSFClient{BaseURL: srv.URL, User: "msf", Password: password, HTTP: srv.Client()}, rs
}

func TestMSFClientAttempt(t *testing.T) {
	c, rs := newTestClient(t, defaultHandler, "secret")

	a, err := c.Attempt(context.Background(), "10.0.0.5", "exploit/unix/ftp/vsftpd_234_backdoor", Listener{Host: "10.0.0.9", Port: 4444})
	require.NoError(t, err)
	assert.Equal(t, "7", a.JobID)
	assert.Equal(t, "u-1", a.UUID)

	assert.Equal(t, []string{"auth.login", "module.execute", "auth.logout"}, rs.methods)
	assert.Equal(t, "10.0.0.5", rs.options["RHOSTS"])
	assert.Equal(t, "10.0.0.9", rs.options["LHOST"])
	assert.EqualValues(t, 4444, rs.options["LPORT"])
}

func TestMSFClientLoginFailure(t *testing.T) {
	c, rs := newTestClient(t, defaultHandler, "wrong")

	_, err := c.Attempt(context.Background(), "10.0.0.5", "exploit/unix/ftp/vsftpd_234_backdoor", Listener{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPC)
	assert.Contains(t, err.Error(), "Login Failed")
	assert.Equal(t, []string{"auth.login"}, rs.methods)
}

func TestMSFClientExecuteError(t *testing.T) {
	handler := func(method string, args []interface{}) (int, map[string]interface{}) {
		if method == "module.execute" {
			return http.StatusInternalServerError, map[string]interface{}{"error": true, "error_message": "Invalid Module"}
		}
		return defaultHandler(method, args)
	}
	c, rs := newTestClient(t, handler, "secret")

	_, err := c.Attempt(context.Background(), "10.0.0.5", "exploit/unix/nope", Listener{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Module")
	// logout still happens
	assert.Equal(t, []string{"auth.login", "module.execute", "auth.logout"}, rs.methods)
}

func TestMSFClientNoJob(t *testing.T) {
	handler := func(method string, args []interface{}) (int, map[string]interface{}) {
		if method == "module.execute" {
			return http.StatusOK, map[string]interface{}{"result": "failure"}
		}
		return defaultHandler(method, args)
	}
	c, _ := newTestClient(t, handler, "secret")

	_, err := c.Attempt(context.Background(), "10.0.0.5", "exploit/unix/ftp/vsftpd_234_backdoor", Listener{})
	assert.ErrorIs(t, err, ErrRPC)
}

func TestSplitModule(t *testing.T) {
	typ, name, err := SplitModule("exploit/windows/smb/ms17_010_eternalblue")
	require.NoError(t, err)
	assert.Equal(t, "exploit", typ)
	assert.Equal(t, "windows/smb/ms17_010_eternalblue", name)

	for _, bad := range []string{"", "exploit", "exploit/", "weird/unix/thing"} {
		_, _, err := SplitModule(bad)
		assert.Error(t, err, "module %q", bad)
	}
}

func TestToString(t *testing.T) {
	assert.Equal(t, "abc", toString([]byte("abc")))
	assert.Equal(t, "5", toString(int8(5)))
	assert.Equal(t, "", toString(nil))
}

func TestMSFClientVersion(t *testing.T) {
	c, rs := newTestClient(t, defaultHandler, "secret")

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "6.4.12-dev", v)
	assert.Equal(t, []string{"auth.login", "core.version", "auth.logout"}, rs.methods)

	bad, _ := newTestClient(t, defaultHandler, "wrong")
	_, err = bad.Version(context.Background())
	assert.ErrorIs(t, err, ErrRPC)
}
