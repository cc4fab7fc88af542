package exploit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/config"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const msgpackContentType = "binary/message-pack"

// ErrRPC is returned when the RPC server reports an error.
var ErrRPC = errors.New("metasploit rpc error")

// MSFClient launches modules through the Metasploit msgpack RPC API.
type MSFClient struct {
	BaseURL  string // e.g. https://127.0.0.1:55553
	User     string
	Password string
	HTTP     *http.Client
	Logger   *zap.SugaredLogger
}

// NewMSFClient builds a client from the exploit configuration.
func NewMSFClient(cfg config.ExploitConfig, logger *zap.SugaredLogger) *MSFClient {
	scheme := "http"
	if cfg.RPCSSL {
		scheme = "https"
	}
	return &MSFClient{
		BaseURL:  fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(cfg.RPCHost, strconv.Itoa(cfg.RPCPort))),
		User:     cfg.RPCUser,
		Password: cfg.RPCPass,
		HTTP:     newRPCHTTPClient(config.Duration(cfg.Timeout, time.Minute)),
		Logger:   logger,
	}
}

// Attempt logs in, executes moduleID against address and logs out again.
func (c *MSFClient) Attempt(ctx context.Context, address, moduleID string, l Listener) (Attempt, error) {
	moduleType, moduleName, err := SplitModule(moduleID)
	if err != nil {
		return Attempt{}, err
	}

	token, err := c.login(ctx)
	if err != nil {
		return Attempt{}, err
	}
	defer c.logout(token)

	options := map[string]interface{}{"RHOSTS": address}
	if l.Host != "" {
		options["LHOST"] = l.Host
	}
	if l.Port > 0 {
		options["LPORT"] = l.Port
	}

	resp, err := c.call(ctx, "module.execute", token, moduleType, moduleName, options)
	if err != nil {
		return Attempt{}, fmt.Errorf("module.execute %s: %w", moduleID, err)
	}

	jobID, ok := resp["job_id"]
	if !ok || jobID == nil {
		return Attempt{}, fmt.Errorf("%w: module %s returned no job", ErrRPC, moduleID)
	}

	a := Attempt{JobID: toString(jobID), UUID: toString(resp["uuid"])}
	c.logger().Infow("Exploit module launched", "module", moduleID, "target", address, "job_id", a.JobID)
	return a, nil
}

// Version logs in and returns the framework version reported by core.version.
func (c *MSFClient) Version(ctx context.Context) (string, error) {
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	defer c.logout(token)

	resp, err := c.call(ctx, "core.version", token)
	if err != nil {
		return "", fmt.Errorf("core.version: %w", err)
	}
	return toString(resp["version"]), nil
}

func (c *MSFClient) login(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "auth.login", c.User, c.Password)
	if err != nil {
		return "", fmt.Errorf("auth.login: %w", err)
	}
	if toString(resp["result"]) != "success" {
		return "", fmt.Errorf("%w: login rejected", ErrRPC)
	}
	token := toString(resp["token"])
	if token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrRPC)
	}
	return token, nil
}

func (c *MSFClient) logout(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.call(ctx, "auth.logout", token, token); err != nil {
		c.logger().Debugw("RPC logout failed", "error", err)
	}
}

// call sends one RPC request, encoded as a msgpack array of method and arguments.
func (c *MSFClient) call(ctx context.Context, method string, args ...interface{}) (map[string]interface{}, error) {
	body, err := msgpack.Marshal(append([]interface{}{method}, args...))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/api/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", msgpackContentType)

	client := c.HTTP
	if client == nil {
		client = newRPCHTTPClient(time.Minute)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading rpc response: %w", err)
	}

	var out map[string]interface{}
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: HTTP %d with undecodable body: %v", ErrRPC, resp.StatusCode, err)
	}

	if isTrue(out["error"]) {
		msg := toString(out["error_message"])
		if msg == "" {
			msg = toString(out["error_string"])
		}
		return nil, fmt.Errorf("%w: %s", ErrRPC, msg)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRPC, resp.StatusCode)
	}

	return out, nil
}

func (c *MSFClient) logger() *zap.SugaredLogger {
	if c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// SplitModule splits "exploit/unix/ftp/vsftpd_234_backdoor" into its module
// type and the name relative to that type.
func SplitModule(moduleID string) (string, string, error) {
	moduleType, name, ok := strings.Cut(strings.Trim(moduleID, "/"), "/")
	if !ok || moduleType == "" || name == "" {
		return "", "", fmt.Errorf("invalid module id %q", moduleID)
	}
	switch moduleType {
	case "exploit", "auxiliary", "post", "payload":
		return moduleType, name, nil
	}
	return "", "", fmt.Errorf("invalid module type %q in %q", moduleType, moduleID)
}

// msfrpcd may return strings as msgpack bin values.
func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func isTrue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	case []byte:
		return string(t) == "true"
	}
	return false
}
