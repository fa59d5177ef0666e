package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(Config{
		ClientID:          "test-client",
		BaseURL:           server.URL,
		Client:            server.Client(),
		Tokens:            StaticToken("test-token"),
		RequestsPerSecond: 1000,
		PageSize:          3,
	})
	return client, server
}

func gameJSON(id int64, name string) string {
	return fmt.Sprintf(`{"id": %d, "name": %q}`, id, name)
}

func TestSearchTitlesSingleShortPage(t *testing.T) {
	var gotBody string
	var gotHeaders http.Header
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotHeaders = r.Header.Clone()
		fmt.Fprintf(w, "[%s, %s]", gameJSON(1, "Celeste"), gameJSON(2, "Celeste 64"))
	})

	entries, err := client.SearchTitles(context.Background(), "celeste", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].ExternalID != 1 || entries[0].Title != "Celeste" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}

	if gotHeaders.Get("Client-ID") != "test-client" {
		t.Fatalf("Client-ID header = %q", gotHeaders.Get("Client-ID"))
	}
	if gotHeaders.Get("Authorization") != "Bearer test-token" {
		t.Fatalf("Authorization header = %q", gotHeaders.Get("Authorization"))
	}
	if !strings.Contains(gotBody, `search "celeste";`) {
		t.Fatalf("query body missing search clause: %q", gotBody)
	}
	if !strings.Contains(gotBody, "limit 3;") || !strings.Contains(gotBody, "offset 0;") {
		t.Fatalf("query body missing paging clauses: %q", gotBody)
	}
}

func TestSearchTitlesPagesWithOffsets(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		call := len(bodies)
		mu.Unlock()

		switch call {
		case 1:
			// Full page of 3, forcing a second request.
			fmt.Fprintf(w, "[%s, %s, %s]",
				gameJSON(1, "Doom"), gameJSON(2, "Doom II"), gameJSON(3, "Doom 3"))
		default:
			fmt.Fprintf(w, "[%s]", gameJSON(4, "Doom Eternal"))
		}
	})

	entries, err := client.SearchTitles(context.Background(), "doom", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("want 4 entries across pages, got %d", len(entries))
	}
	if len(bodies) != 2 {
		t.Fatalf("want 2 requests, got %d", len(bodies))
	}
	if !strings.Contains(bodies[0], "offset 0;") {
		t.Fatalf("first page body: %q", bodies[0])
	}
	if !strings.Contains(bodies[1], "offset 3;") {
		t.Fatalf("second page must continue at offset 3: %q", bodies[1])
	}
}

func TestSearchTitlesStopsAtLimit(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, "[%s, %s]", gameJSON(1, "A"), gameJSON(2, "B"))
	})

	entries, err := client.SearchTitles(context.Background(), "ab", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 2 || calls != 1 {
		t.Fatalf("want 2 entries from a single call, got %d entries in %d calls", len(entries), calls)
	}
}

func TestSearchTitlesDropsInvalidRecords(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			io.WriteString(w, `[]`)
			return
		}
		io.WriteString(w, `[{"id": 0, "name": "ghost"}, {"id": 7, "name": "  "}, {"id": 8, "name": "Real"}]`)
	})

	entries, err := client.SearchTitles(context.Background(), "real", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 1 || entries[0].ExternalID != 8 {
		t.Fatalf("id-less and nameless records must be dropped: %+v", entries)
	}
}

func TestCountByFranchise(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		if r.URL.Path != "/games/count" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{"count": 42}`)
	})

	count, err := client.CountByFranchise(context.Background(), "The Legend of Zelda")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 42 {
		t.Fatalf("count = %d, want 42", count)
	}
	if !strings.Contains(gotBody, `franchises.name ~ "The Legend of Zelda"`) {
		t.Fatalf("count body: %q", gotBody)
	}
}

func TestPostErrorIncludesStatusAndSnippet(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "slow down")
	})

	_, err := client.SearchTitles(context.Background(), "anything", 5)
	if err == nil {
		t.Fatalf("want an error for a 429 response")
	}
	if !strings.Contains(err.Error(), "status 429") || !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("error = %q", err)
	}
}

func TestByIDs(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		fmt.Fprintf(w, "[%s, %s]", gameJSON(5, "Portal"), gameJSON(6, "Portal 2"))
	})

	entries, err := client.ByIDs(context.Background(), []int64{5, 6})
	if err != nil {
		t.Fatalf("byIds: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if !strings.Contains(gotBody, "where id = (5,6);") {
		t.Fatalf("byIds body: %q", gotBody)
	}

	empty, err := client.ByIDs(context.Background(), nil)
	if err != nil || empty != nil {
		t.Fatalf("empty id list must short-circuit: %v %v", empty, err)
	}
}

func TestToEntryProjection(t *testing.T) {
	raw := `{
		"id": 1020,
		"name": "  Grand Theft Auto V  ",
		"game_type": 0,
		"parent_game": 500,
		"first_release_date": 1379376000,
		"summary": "An open world adventure.",
		"cover": {"url": "//images.igdb.com/t_thumb/co2lbd.jpg"},
		"franchises": [{"name": " Grand Theft Auto "}, {"name": ""}]
	}`
	var record gameRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	entry, ok := toEntry(record)
	if !ok {
		t.Fatalf("record must convert")
	}
	if entry.Title != "Grand Theft Auto V" {
		t.Fatalf("title = %q", entry.Title)
	}
	if entry.ReleaseYear != 2013 {
		t.Fatalf("release year = %d, want 2013", entry.ReleaseYear)
	}
	if entry.TypeCode == nil || *entry.TypeCode != 0 {
		t.Fatalf("type code = %v", entry.TypeCode)
	}
	if entry.ParentID == nil || *entry.ParentID != 500 {
		t.Fatalf("parent id = %v", entry.ParentID)
	}
	if entry.CoverURL != "https://images.igdb.com/t_thumb/co2lbd.jpg" {
		t.Fatalf("cover url = %q", entry.CoverURL)
	}
	if len(entry.FranchiseNames) != 1 || entry.FranchiseNames[0] != "Grand Theft Auto" {
		t.Fatalf("franchises = %v", entry.FranchiseNames)
	}
}

func TestQuoteEscapesQuotes(t *testing.T) {
	if got := quote(`say "hi"`); got != `"say \"hi\""` {
		t.Fatalf("quote = %s", got)
	}
}

func TestStaticToken(t *testing.T) {
	token, err := StaticToken("abc").Token(context.Background())
	if err != nil || token != "abc" {
		t.Fatalf("token = %q err = %v", token, err)
	}
}

func TestClientCredentialsSourceRefreshesAndCaches(t *testing.T) {
	issued := 0
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		issued++
		fmt.Fprintf(w, `{"access_token": "token-%d", "expires_in": 3600}`, issued)
	}))
	defer tokenServer.Close()

	source := NewClientCredentialsSource(ClientCredentialsConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenServer.URL,
		Client:       tokenServer.Client(),
	})

	first, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	second, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if first != "token-1" || second != "token-1" {
		t.Fatalf("token must be reused until expiry: %q then %q", first, second)
	}
	if issued != 1 {
		t.Fatalf("want one issuance, got %d", issued)
	}
}

func TestClientCredentialsSourceExpiry(t *testing.T) {
	issued := 0
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issued++
		fmt.Fprintf(w, `{"access_token": "token-%d", "expires_in": 3600}`, issued)
	}))
	defer tokenServer.Close()

	source := NewClientCredentialsSource(ClientCredentialsConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenServer.URL,
		Client:       tokenServer.Client(),
	})

	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("first token: %v", err)
	}

	source.mu.Lock()
	source.expiresAt = time.Now().Add(-time.Minute)
	source.mu.Unlock()

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if token != "token-2" || issued != 2 {
		t.Fatalf("expired token must be re-issued: token=%q issuances=%d", token, issued)
	}
}
