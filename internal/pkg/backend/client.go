package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

const (
	pathCallLog    = "jzzz-api/api/voice/record/add2"
	pathCallInfo   = "jzzz-api/api/voice/record/add"
	pathRecordFile = "jzzz-api/api/voice/record/file/save"

	codeOK           = 0
	codeLoginExpired = 401

	prmRecordFile = "recordFile"
)

// Session provides auth cookie for the requests
type Session interface {
	Cookie(ctx context.Context) (string, error)
}

// CallData is the call info sent to the backend
type CallData struct {
	UUID          string `json:"uuid"`
	CallStartTime int64  `json:"callStartTime"`
	Connected     bool   `json:"isConnected"`
	CallEndTime   int64  `json:"callEndTime"`
	DurationMs    int64  `json:"durationMs"`
	CallerNumber  string `json:"callerNumber"`
	Mobile        string `json:"mobile"`
}

type response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client communicates with the sales call backend
type Client struct {
	httpclient *http.Client
	baseURL    string
	session    Session
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a backend client
func NewClient(baseURL string, session Session) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("no baseURL")
	}
	if !strings.HasPrefix(baseURL, "http") {
		return nil, fmt.Errorf("no http in baseURL")
	}
	if session == nil {
		return nil, fmt.Errorf("no session")
	}
	res := Client{baseURL: baseURL, session: session}
	res.timeout = time.Minute * 2
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return &res, nil
}

// UploadCallLog sends call info with an optional recording in one multipart request.
// Empty file means no recording part
func (sp *Client) UploadCallLog(ctx context.Context, data *CallData, file string) (string, error) {
	return sp.postMultipart(ctx, pathCallLog, func(w *multipart.Writer) error {
		for _, p := range [][2]string{
			{"id", data.UUID},
			{"callStartTime", strconv.FormatInt(data.CallStartTime, 10)},
			{"isConnected", strconv.FormatBool(data.Connected)},
			{"callEndTime", strconv.FormatInt(data.CallEndTime, 10)},
			{"durationMs", strconv.FormatInt(data.DurationMs, 10)},
			{"callerNumber", data.CallerNumber},
			{"mobile", data.Mobile},
		} {
			if err := w.WriteField(p[0], p[1]); err != nil {
				return fmt.Errorf("can't add param: %w", err)
			}
		}
		if file == "" {
			return nil
		}
		return addFile(w, file)
	})
}

// UploadCallInfo sends call info only
func (sp *Client) UploadCallInfo(ctx context.Context, data *CallData) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("can't marshal: %w", err)
	}
	return sp.post(ctx, pathCallInfo, "application/json", b)
}

// UploadRecordFile sends a recording under the id
func (sp *Client) UploadRecordFile(ctx context.Context, id, file string) (string, error) {
	return sp.postMultipart(ctx, pathRecordFile, func(w *multipart.Writer) error {
		if err := w.WriteField("id", id); err != nil {
			return fmt.Errorf("can't add param: %w", err)
		}
		return addFile(w, file)
	})
}

func (sp *Client) postMultipart(ctx context.Context, path string, fill func(*multipart.Writer) error) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := fill(writer); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("can't prepare request: %w", err)
	}
	return sp.post(ctx, path, writer.FormDataContentType(), body.Bytes())
}

func (sp *Client) post(ctx context.Context, path, contentType string, body []byte) (string, error) {
	cookie, err := sp.session.Cookie(ctx)
	if err != nil {
		return "", fmt.Errorf("can't get session: %w", err)
	}
	urlStr, err := url.JoinPath(sp.baseURL, path)
	if err != nil {
		return "", fmt.Errorf("can't prepare URL: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Cookie", cookie)
		goapp.Log.Info().Str("url", urlStr).Int("size", len(body)).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", urlStr, err)
			return "", goapp.IsRetryableCode(resp.StatusCode), err
		}
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		res, err := parseResponse(br)
		return res, false, err
	}, sp.backoff())
}

// parseResponse maps response envelope: 0 - ok, 401 - expired session, others - request error
func parseResponse(b []byte) (string, error) {
	var resp *response
	if err := json.Unmarshal(b, &resp); err != nil {
		return "", fmt.Errorf("can't decode response: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response")
	}
	switch resp.Code {
	case codeOK:
		return dataID(resp.Data), nil
	case codeLoginExpired:
		return "", utils.ErrLoginExpired
	}
	goapp.Log.Warn().Int("code", resp.Code).Str("msg", goapp.Sanitize(resp.Msg)).Msg("backend error")
	return "", &utils.ErrRequest{Code: resp.Code, Msg: resp.Msg}
}

func dataID(b json.RawMessage) string {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" || s == "{}" {
		return ""
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		return str
	}
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && len(obj.ID) > 0 {
		return strings.Trim(string(obj.ID), `"`)
	}
	return s
}

func addFile(w *multipart.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("can't open %s: %w", file, err)
	}
	defer f.Close()
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, prmRecordFile, escapeQuotes(filepath.Base(file))))
	h.Set("Content-Type", "audio/*")
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err = io.Copy(part, f); err != nil {
		return fmt.Errorf("can't add file content to request: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxIdleConns = 5
	res.MaxIdleConnsPerHost = 2
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 2)
}
