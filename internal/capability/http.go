package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"starmcp-go/internal/bridge"
)

const defaultHTTPTimeout = 30 * time.Second

// sharedHTTPClient is process-wide, matching spec.md §4.2's "shared,
// process-wide *http.Client" note — one connection pool for the whole
// process rather than one per call.
var sharedHTTPClient = &http.Client{Timeout: defaultHTTPTimeout}

// HTTPModule is a hand-built module over net/http. get/post never raise:
// transport failures surface as a mapping with status_code = 0, matching
// spec.md §4.2 exactly.
func HTTPModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "http",
		Members: starlark.StringDict{
			"get":  starlark.NewBuiltin("http.get", httpGet),
			"post": starlark.NewBuiltin("http.post", httpPost),
		},
	}
}

func httpGet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		url        string
		headers    *starlark.Dict
		timeoutSec starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &url, "headers?", &headers, "timeout?", &timeoutSec); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transportError(err), nil
	}
	applyHeaders(req, headers)
	return doRequest(ctx, req, timeoutSec)
}

func httpPost(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		url        string
		body       starlark.Value = starlark.None
		headers    *starlark.Dict
		timeoutSec starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &url, "body?", &body, "headers?", &headers, "timeout?", &timeoutSec); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != starlark.None {
		if s, ok := starlark.AsString(body); ok {
			reader = bytes.NewBufferString(s)
		} else {
			jv, err := bridge.ToJSON(body)
			if err != nil {
				return transportError(err), nil
			}
			encoded, err := json.Marshal(jv)
			if err != nil {
				return transportError(err), nil
			}
			reader = bytes.NewReader(encoded)
		}
	}
	ctx := CurrentContext(thread)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return transportError(err), nil
	}
	applyHeaders(req, headers)
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return doRequest(ctx, req, timeoutSec)
}

func applyHeaders(req *http.Request, headers *starlark.Dict) {
	if headers == nil {
		return
	}
	for _, item := range headers.Items() {
		k, okK := starlark.AsString(item[0])
		v, okV := starlark.AsString(item[1])
		if okK && okV {
			req.Header.Set(k, v)
		}
	}
}

func doRequest(ctx context.Context, req *http.Request, timeoutSec starlark.Value) (starlark.Value, error) {
	if err := ctx.Err(); err != nil {
		return transportError(err), nil
	}

	client := sharedHTTPClient
	if f, ok := timeoutSec.(starlark.Float); ok {
		client = &http.Client{Timeout: time.Duration(float64(f) * float64(time.Second))}
	} else if i, ok := timeoutSec.(starlark.Int); ok {
		if secs, ok := i.Int64(); ok {
			client = &http.Client{Timeout: time.Duration(secs) * time.Second}
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return transportError(err), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err), nil
	}

	if err := ctx.Err(); err != nil {
		return transportError(err), nil
	}

	jsonValue, err := bridge.FromJSONBytes(raw)
	if err != nil {
		jsonValue = starlark.None
	}

	respHeaders := starlark.NewDict(len(resp.Header))
	for k := range resp.Header {
		_ = respHeaders.SetKey(starlark.String(k), starlark.String(resp.Header.Get(k)))
	}

	return responseDict(resp.StatusCode, string(raw), jsonValue, respHeaders), nil
}

func transportError(err error) starlark.Value {
	return responseDict(0, err.Error(), starlark.None, starlark.NewDict(0))
}

func responseDict(statusCode int, body string, jsonValue starlark.Value, headers *starlark.Dict) *starlark.Dict {
	d := starlark.NewDict(4)
	_ = d.SetKey(starlark.String("status_code"), starlark.MakeInt(statusCode))
	_ = d.SetKey(starlark.String("body"), starlark.String(body))
	_ = d.SetKey(starlark.String("json"), jsonValue)
	_ = d.SetKey(starlark.String("headers"), headers)
	return d
}
