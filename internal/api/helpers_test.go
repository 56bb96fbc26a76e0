package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestParseLimitOffset(t *testing.T) {
	cases := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 20, 0},
		{"limit=50&offset=10", 50, 10},
		{"limit=0", 20, 0},
		{"limit=9999", 20, 0}, // above cap falls back to default
		{"offset=-5", 20, 0},
		{"limit=abc&offset=xyz", 20, 0},
	}
	for _, c := range cases {
		req := httptest.NewRequest("GET", "/api/v1/groups?"+c.query, nil)
		limit, offset := parseLimitOffset(req)
		if limit != c.wantLimit || offset != c.wantOffset {
			t.Errorf("query %q: got (%d, %d), want (%d, %d)",
				c.query, limit, offset, c.wantLimit, c.wantOffset)
		}
	}
}

func TestPathID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/groups/42", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "42"})
	id, err := pathID(req, "id")
	if err != nil || id != 42 {
		t.Fatalf("pathID = (%d, %v), want (42, nil)", id, err)
	}

	for _, bad := range []string{"abc", "-1", "0", ""} {
		req = mux.SetURLVars(req, map[string]string{"id": bad})
		if _, err := pathID(req, "id"); err == nil {
			t.Errorf("pathID(%q) should fail", bad)
		}
	}
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Word string `json:"word"`
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"word":"ok"}`))
	if err := decodeBody(req, &dst); err != nil || dst.Word != "ok" {
		t.Fatalf("decodeBody = %v, word = %q", err, dst.Word)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"wrod":"typo"}`))
	if err := decodeBody(req, &dst); err == nil {
		t.Error("unknown field should be rejected")
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`not json`))
	if err := decodeBody(req, &dst); err == nil {
		t.Error("malformed body should be rejected")
	}
}
