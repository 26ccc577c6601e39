package tiktok

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func commentJSON(id string) string {
	return fmt.Sprintf(`{"cid":%q,"text":"comment %s","create_time":1700000000,"digg_count":1,"user":{"unique_id":"u"}}`, id, id)
}

func commentPage(ids []string, hasMore, cursor int) string {
	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = commentJSON(id)
	}
	return fmt.Sprintf(`{"comments":[%s],"cursor":%d,"has_more":%d,"total":99}`, strings.Join(items, ","), cursor, hasMore)
}

func TestComments_Pagination(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/comment/list/" || r.URL.Query().Get("aweme_id") != "v1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		switch cursorOf(r) {
		case 0:
			w.Write([]byte(commentPage([]string{"c1", "c2"}, 1, 20)))
		case 20:
			w.Write([]byte(strings.Replace(commentPage([]string{"c3", "c4"}, 0, 40), `{"cid":"c3"`, `{"text":"no id","x":"c3"`, 1)))
		default:
			t.Errorf("unexpected cursor %d", cursorOf(r))
		}
	}))
	defer srv.Close()

	var ids []string
	malformed := 0
	for c, err := range newMockScraper(srv.URL).Comments(context.Background(), "v1", 10) {
		if errors.Is(err, ErrMalformedItem) {
			malformed++
			continue
		}
		if err != nil {
			t.Fatalf("Comments: %v", err)
		}
		if c.VideoID != "v1" {
			t.Errorf("VideoID = %q", c.VideoID)
		}
		ids = append(ids, c.ID)
	}
	if got := strings.Join(ids, ","); got != "c1,c2,c4" {
		t.Errorf("ids = %s, want c1,c2,c4", got)
	}
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
}

func TestComments_Count(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(commentPage([]string{"a", "b", "c"}, 1, cursorOf(r)+3)))
	}))
	defer srv.Close()

	n := 0
	for _, err := range newMockScraper(srv.URL).Comments(context.Background(), "v1", 2) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("got %d comments, want 2", n)
	}
}

func TestComments_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var errs []error
	for _, err := range newMockScraper(srv.URL).Comments(context.Background(), "v1", 5) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrRateLimited) {
		t.Errorf("expected one ErrRateLimited, got %v", errs)
	}

	errs = nil
	for _, err := range New().Comments(context.Background(), "", 5) {
		errs = append(errs, err)
	}
	if len(errs) != 1 {
		t.Errorf("expected an error for an empty video id, got %v", errs)
	}
}
