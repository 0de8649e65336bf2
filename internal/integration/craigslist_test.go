package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
)

const craigslistRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>craigslist bend | sporting goods</title>
  <item>
    <title>NRS Otter 14' raft - $2,500</title>
    <link>https://bend.craigslist.org/boa/d/raft/1.html</link>
    <description><![CDATA[<img src="https://images.craigslist.org/a.jpg"> Great <b>raft</b> with frame]]></description>
    <pubDate>Sun, 01 Jun 2025 10:00:00 -0700</pubDate>
  </item>
  <item>
    <title>Leather couch</title>
    <link>https://bend.craigslist.org/sga/d/couch/9.html</link>
    <description>Like new</description>
  </item>
  <item>
    <title>Old kayak</title>
    <link>https://bend.craigslist.org/sga/d/old/3.html</link>
    <description>Already stored</description>
  </item>
</channel>
</rss>`

const emptyRSS = `<?xml version="1.0"?><rss version="2.0"><channel><title>empty</title></channel></rss>`

const craigslistHTML = `<html><body><ol>
<li class="cl-static-search-result"><a href="/boa/d/paddle/2.html">Werner paddle</a><span class="priceinfo">$150</span></li>
<li class="cl-static-search-result"><a href="https://bend.craigslist.org/boa/d/raft/1.html">NRS raft</a></li>
<li class="cl-static-search-result"><span>no link</span></li>
</ol></body></html>`

func TestCraigslistScraper(t *testing.T) {
	t.Run("rss with html fallback", func(t *testing.T) {
		var rssCalls, htmlCalls atomic.Int32
		var userAgents uaRecorder
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgents.add(r.Header.Get("User-Agent"))
			category := strings.TrimPrefix(r.URL.Path, "/search/")
			query := r.URL.Query().Get("query")
			if r.URL.Query().Get("format") == "rss" {
				rssCalls.Add(1)
				if category == "sga" && strings.HasPrefix(query, "raft OR kayak") {
					io.WriteString(w, craigslistRSS)
					return
				}
				io.WriteString(w, emptyRSS)
				return
			}
			htmlCalls.Add(1)
			if category == "boa" && strings.HasPrefix(query, "paddle") {
				io.WriteString(w, craigslistHTML)
				return
			}
			io.WriteString(w, "<html><body></body></html>")
		}))
		defer srv.Close()

		known := &stubRivers{urls: map[string]bool{"https://bend.craigslist.org/sga/d/old/3.html": true}}
		s := NewCraigslistScraper(testClient("craigslist"), []string{"bend"}, srv.URL, known, zap.NewNop())
		s.jitter = func() time.Duration { return 0 }

		items, err := s.Scrape(context.Background())
		require.NoError(t, err)

		assert.Equal(t, int32(8), rssCalls.Load())
		assert.Equal(t, int32(7), htmlCalls.Load())
		assert.Len(t, userAgents.distinct(), 1, "one user agent per region")
		assert.Contains(t, craigslistUserAgents, userAgents.distinct()[0])

		require.Len(t, items, 2)

		raft := items[0].Deal
		require.NotNil(t, raft)
		assert.Equal(t, "craigslist", items[0].Source)
		assert.Equal(t, "NRS Otter 14' raft - $2,500", raft.Title)
		assert.Equal(t, 2500.0, *raft.Price)
		assert.Equal(t, "https://images.craigslist.org/a.jpg", raft.ImageURL)
		assert.Equal(t, "Great raft with frame", raft.Description)
		assert.Equal(t, entities.CategoryRaft, raft.Category)
		assert.Equal(t, "bend", raft.Region)
		require.NotNil(t, raft.PostedAt)
		assert.True(t, time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC).Equal(*raft.PostedAt))

		paddle := items[1].Deal
		require.NotNil(t, paddle)
		assert.Equal(t, srv.URL+"/boa/d/paddle/2.html", paddle.URL)
		assert.Equal(t, "Werner paddle", paddle.Title)
		assert.Equal(t, 150.0, *paddle.Price)
		assert.Equal(t, entities.CategoryPaddle, paddle.Category)
	})

	t.Run("blocked region yields nothing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		s := NewCraigslistScraper(testClient("craigslist"), []string{"bend"}, srv.URL, &stubRivers{}, zap.NewNop())
		s.jitter = func() time.Duration { return 0 }

		items, err := s.Scrape(context.Background())
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("region placeholder in base url", func(t *testing.T) {
		s := NewCraigslistScraper(testClient("craigslist"), nil, "", &stubRivers{}, zap.NewNop())
		assert.Equal(t, "https://seattle.craigslist.org", s.regionBase("seattle"))
	})
}

func TestListingHelpers(t *testing.T) {
	t.Run("price", func(t *testing.T) {
		assert.Equal(t, 1200.0, *ExtractPrice("Hyside raft $1,200 obo"))
		assert.Equal(t, 45.5, *ExtractPrice("$ 45.50"))
		assert.Nil(t, ExtractPrice("make an offer"))
	})

	t.Run("relevance", func(t *testing.T) {
		assert.True(t, IsRelevant("Kokatat Drysuit", ""))
		assert.True(t, IsRelevant("Bundle", "comes with a throw bag"))
		assert.False(t, IsRelevant("Mountain bike", "full suspension"))
	})

	t.Run("category order", func(t *testing.T) {
		assert.Equal(t, entities.CategoryRaft, Categorize("Raft with oars", ""))
		assert.Equal(t, entities.CategoryKayak, Categorize("Dagger kayak", "paddle included"))
		assert.Equal(t, entities.CategoryPFD, Categorize("Astral life jacket", ""))
		assert.Equal(t, entities.CategoryDrysuit, Categorize("Wet suit, size M", ""))
		assert.Equal(t, entities.CategoryOther, Categorize("NRS throw bag", ""))
	})
}

// uaRecorder collects distinct User-Agent headers from handler goroutines
type uaRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *uaRecorder) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.seen {
		if x == v {
			return
		}
	}
	r.seen = append(r.seen, v)
}

func (r *uaRecorder) distinct() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}
