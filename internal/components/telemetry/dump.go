package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const report_dump_write = "dump.write"

// ExchangeOutput receives every request/response pair rendered as text, keyed by a
// sequence number.
type ExchangeOutput interface {
	Write(id string, contents string)
}

// FsOutput writes every exchange to its own file in a directory.
type FsOutput struct {
	fs        afero.Fs
	directory string
	tel       API
}

// NewFsOutput empties (or creates) `dir` and writes exchanges into it.
func NewFsOutput(fs afero.Fs, dir string, tel API) (FsOutput, error) {
	err := fs.RemoveAll(dir)
	if err != nil {
		return FsOutput{}, err
	}
	err = fs.MkdirAll(dir, 0o700)
	if err != nil {
		return FsOutput{}, err
	}
	return FsOutput{fs: fs, directory: dir, tel: tel}, nil
}

func (o FsOutput) Write(id string, contents string) {
	err := afero.WriteFile(o.fs, filepath.Join(o.directory, id), []byte(contents), 0o600)
	if err != nil {
		o.tel.ReportWarning(report_dump_write, id, err)
	}
}

// DumpResty renders every exchange made by `client` into `output` with ids like
// `<name>-20261016T101500-1a2b3c4d-1`. The prefix is unique per call so clients created
// later (one per `watch` tick) never overwrite earlier exchanges. A nil `output` does
// nothing.
func DumpResty(client *resty.Client, name string, output ExchangeOutput) {
	if output == nil {
		return
	}
	prefix := DumpPrefix(name, time.Now())
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%s-%d", prefix, atomic.AddUint64(&idcounter, 1))
		output.Write(id, formatExchange(res))
		return nil
	})
}

// DumpPrefix is `name`, the time in a sortable form and a random suffix.
func DumpPrefix(name string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", name, now.Format("20060102T150405"), uuid.NewString()[:8])
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{}
	for _, k := range keys {
		for _, v := range headers[k] {
			lines = append(lines, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	if body == nil || body == http.NoBody {
		return ""
	}
	defer body.Close()
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response url
// 7: response headers in ("Key: Value" format)
// 8: response body
const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

func formatExchange(res *resty.Response) string {
	var requestHeaders string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
	}

	responseUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		responseUrl = res.RawResponse.Request.URL.String()
	}

	return fmt.Sprintf(
		exchangeTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		formatRequestBody(res.Request.RawRequest),

		strconv.Itoa(res.StatusCode()), responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
