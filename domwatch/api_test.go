package domwatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPI_Pages(t *testing.T) {
	site := newSite(t)
	w := newWatcher(t, &collector{})
	api := httptest.NewServer(w.Handler())
	t.Cleanup(api.Close)

	resp, err := http.Get(api.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("health: no request id header")
	}

	body := `{"id":"news","url":"` + site.URL + `","stealth_level":"0","rules":[{"name":"posts","selector":"article.post"}]}`
	resp, err = http.Post(api.URL+"/pages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	var st PageStatus
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	if st.ID != "news" || st.Level != "http" || st.Rules != 1 {
		t.Errorf("created: %+v", st)
	}

	resp, err = http.Post(api.URL+"/pages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: %d", resp.StatusCode)
	}

	resp, err = http.Post(api.URL+"/pages", "application/json",
		strings.NewReader(`{"id":"x","url":"`+site.URL+`","stealth_level":"0","rules":[{"selector":"[["}]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad selector: %d", resp.StatusCode)
	}

	resp, err = http.Post(api.URL+"/pages", "application/json", strings.NewReader(`{"id":`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json: %d", resp.StatusCode)
	}

	resp, err = http.Get(api.URL + "/pages")
	if err != nil {
		t.Fatal(err)
	}
	var list []PageStatus
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 1 || list[0].ID != "news" {
		t.Errorf("list: %+v", list)
	}

	del := func(id string) int {
		req, _ := http.NewRequest(http.MethodDelete, api.URL+"/pages/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := del("news"); code != http.StatusNoContent {
		t.Errorf("delete: %d", code)
	}
	if code := del("news"); code != http.StatusNotFound {
		t.Errorf("delete again: %d", code)
	}
}
