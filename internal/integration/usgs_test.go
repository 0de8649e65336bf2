package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const usgsFixture = `{
  "value": {
    "timeSeries": [
      {
        "sourceInfo": {"siteName": "ARKANSAS RIVER NEAR NATHROP", "siteCode": [{"value": "07091200"}]},
        "variable": {"variableCode": [{"value": "00060"}]},
        "values": [{"value": [
          {"value": "410", "dateTime": "2025-06-01T10:00:00.000-06:00"},
          {"value": "452", "dateTime": "2025-06-01T10:15:00.000-06:00"}
        ]}]
      },
      {
        "sourceInfo": {"siteName": "ARKANSAS RIVER NEAR NATHROP", "siteCode": [{"value": "07091200"}]},
        "variable": {"variableCode": [{"value": "00010"}]},
        "values": [{"value": [{"value": "10.0", "dateTime": "2025-06-01T10:15:00.000-06:00"}]}]
      },
      {
        "sourceInfo": {"siteName": "CLEAR CREEK", "siteCode": [{"value": "06719505"}]},
        "variable": {"variableCode": [{"value": "00065"}]},
        "values": [{"value": [{"value": "3.21", "dateTime": "2025-06-01T10:15:00.000-06:00"}]}]
      },
      {
        "sourceInfo": {"siteName": "CLEAR CREEK", "siteCode": [{"value": "06719505"}]},
        "variable": {"variableCode": [{"value": "00060"}]},
        "values": [{"value": [{"value": "Ice", "dateTime": "2025-06-01T10:15:00.000-06:00"}]}]
      }
    ]
  }
}`

func TestUSGSScraper(t *testing.T) {
	t.Run("groups readings by site", func(t *testing.T) {
		var query map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/iv/", r.URL.Path)
			q := r.URL.Query()
			query = map[string]string{
				"sites":       q.Get("sites"),
				"parameterCd": q.Get("parameterCd"),
				"format":      q.Get("format"),
				"siteStatus":  q.Get("siteStatus"),
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, usgsFixture)
		}))
		defer srv.Close()

		s := NewUSGSScraper(testClient("usgs"), srv.URL, &stubRivers{gauges: []string{"07091200", "06719505"}}, zap.NewNop())
		items, err := s.Scrape(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "07091200,06719505", query["sites"])
		assert.Equal(t, "00060,00065,00010", query["parameterCd"])
		assert.Equal(t, "json", query["format"])
		assert.Equal(t, "active", query["siteStatus"])

		require.Len(t, items, 2)

		creek := items[0]
		assert.Equal(t, "usgs", creek.Source)
		assert.Equal(t, "06719505", creek.Condition.USGSGaugeID)
		assert.Equal(t, "https://waterdata.usgs.gov/nwis/uv?site_no=06719505", creek.SourceURL)
		assert.Nil(t, creek.Condition.FlowRate, "non-numeric value is skipped")
		require.NotNil(t, creek.Condition.GaugeHeight)
		assert.InDelta(t, 3.21, *creek.Condition.GaugeHeight, 0.0001)

		ark := items[1]
		assert.Equal(t, "07091200", ark.Condition.USGSGaugeID)
		require.NotNil(t, ark.Condition.FlowRate)
		assert.Equal(t, 452.0, *ark.Condition.FlowRate, "latest value wins")
		require.NotNil(t, ark.Condition.WaterTemp)
		assert.InDelta(t, 50.0, *ark.Condition.WaterTemp, 0.0001, "celsius converted to fahrenheit")
		assert.Nil(t, ark.Condition.GaugeHeight)
		assert.Equal(t, 452.0, ark.Raw["00060"])
	})

	t.Run("no gauges means no request", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		s := NewUSGSScraper(testClient("usgs"), srv.URL, &stubRivers{}, zap.NewNop())
		items, err := s.Scrape(context.Background())
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.False(t, called)
	})

	t.Run("upstream failure is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		s := NewUSGSScraper(testClient("usgs"), srv.URL, &stubRivers{gauges: []string{"1"}}, zap.NewNop())
		_, err := s.Scrape(context.Background())
		assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	})
}
