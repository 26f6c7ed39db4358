package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
)

const page = `<html><body>
<table class="table"><tbody><tr><td>ignored</td></tr></tbody></table>
<table class="table table-striped">
<thead><tr><th>#</th><th>线路</th><th>优选IP</th><th>丢包</th><th>延迟</th><th>速度</th><th>带宽</th><th>Colo</th><th>时间</th></tr></thead>
<tbody>
<tr><th>1</th><td>电信</td><td><span>104.16.1.1</span></td><td>0.00%</td><td>120.5ms</td><td>35.2mb/s</td><td>282Mbps</td><td>SJC</td><td>2026-10-19 10:00</td></tr>
<tr><th>2</th><td>联通</td><td>104.16.2.2</td><td>1.00%</td><td>90ms</td><td>20mb/s</td><td>160Mbps</td><td>LAX</td><td>2026-10-19 10:00</td></tr>
<tr><td>broken</td><td>row</td></tr>
</tbody>
</table>
</body></html>`

const payload = `{
  "生成时间": "2026-10-19 10:00",
  "完整数据列表": {
    "电信": [
      {"优选IP": "104.16.1.1", "丢包": "0.00%", "延迟": 120.5, "速度": 35.2, "带宽": "282Mbps", "Colo": "SJC", "时间": "10:00"},
      {"优选IP": "104.16.1.2", "丢包": "0.00%", "延迟": 130, "速度": 30, "带宽": "", "时间": "10:00"}
    ],
    "IPV6": [
      {"优选IP": "2606:4700::1", "丢包": "0.00%", "延迟": 150, "速度": 10, "带宽": "", "时间": "10:00"}
    ]
  }
}`

func serve(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newSource(url, format string) *HTTPSource {
	return &HTTPSource{
		Log:     logr.Discard(),
		URL:     url,
		Format:  format,
		Timeout: time.Second,
		Delay:   time.Millisecond,
	}
}

func TestHTTPSource_HTMLTable(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, page)

	rows, err := newSource(srv.URL, FormatHTML).Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, measure.Row{
		measure.ColOrdinal:    "1",
		measure.ColLine:       "电信",
		measure.ColAddress:    "104.16.1.1",
		measure.ColLoss:       "0.00%",
		measure.ColLatency:    "120.5ms",
		measure.ColThroughput: "35.2mb/s",
		measure.ColBandwidth:  "282Mbps",
		measure.ColColo:       "SJC",
		measure.ColTime:       "2026-10-19 10:00",
	}, rows[0])
	assert.Equal(t, "联通", rows[1][measure.ColLine])
	assert.Len(t, rows[2], 2)

	n := measure.NewNormalizer(logr.Discard())
	var eps []measure.Endpoint
	for ep := range n.Endpoints(slices.Values(rows)) {
		eps = append(eps, ep)
	}
	assert.Len(t, eps, 2)
	assert.Equal(t, 1, n.Stats().Dropped)
}

func TestHTTPSource_JSON(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, payload)

	rows, err := newSource(srv.URL, FormatJSON).Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "电信", rows[0][measure.ColLine])
	assert.Equal(t, "104.16.1.1", rows[0][measure.ColAddress])
	assert.Equal(t, "120.5", rows[0][measure.ColLatency])
	assert.Equal(t, "SJC", rows[0][measure.ColColo])
	assert.Equal(t, "2", rows[1][measure.ColOrdinal])
	assert.Equal(t, "", rows[1][measure.ColColo])
	assert.Equal(t, "IPV6", rows[2][measure.ColLine])
	for _, r := range rows {
		assert.Len(t, r, len(measure.Columns))
	}
}

func TestHTTPSource_MissingTable(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `<html><table class="plain"></table></html>`)

	_, err := newSource(srv.URL, FormatHTML).Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestHTTPSource_EmptyTable(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `<table class="table-striped"><tbody></tbody></table>`)

	_, err := newSource(srv.URL, FormatHTML).Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestHTTPSource_BadJSON(t *testing.T) {
	for _, body := range []string{`not json`, `{"other": {}}`} {
		srv, _ := serve(t, http.StatusOK, body)
		_, err := newSource(srv.URL, FormatJSON).Rows(context.Background())
		assert.ErrorIs(t, err, ErrSourceUnavailable, body)
	}
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	srv, hits := serve(t, http.StatusBadGateway, "")

	_, err := newSource(srv.URL, FormatHTML).Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPSource_DoesNotRetryClientErrors(t *testing.T) {
	srv, hits := serve(t, http.StatusNotFound, "")

	_, err := newSource(srv.URL, FormatHTML).Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPSource_RecoversAfterRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	rows, err := newSource(srv.URL, FormatHTML).Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPSource_RejectsOversizedBody(t *testing.T) {
	srv, hits := serve(t, http.StatusOK, page)

	src := newSource(srv.URL, FormatHTML)
	src.MaxBodySize = int64(len(page)) - 1
	_, err := src.Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorContains(t, err, "exceeds")
	assert.Equal(t, int32(1), hits.Load())

	src.MaxBodySize = int64(len(page))
	rows, err := src.Rows(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestHTTPSource_UnknownFormat(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, page)

	_, err := newSource(srv.URL, "csv").Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestStatic(t *testing.T) {
	_, err := Static(nil).Rows(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	rows, err := Static{{measure.ColLine: "电信"}}.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
