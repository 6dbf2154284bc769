package transport

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPostJSON(t *testing.T) {
	Convey("Given a server that replies with a fixed JSON body", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"result":{"ok":true}}`))
		}))
		defer srv.Close()

		client := New()

		Convey("PostJSON returns the buffered status and body", func() {
			res, err := client.PostJSON(context.Background(), srv.URL, nil, []byte(`{}`), time.Second)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, http.StatusOK)
			So(string(res.Body), ShouldContainSubstring, `"ok":true`)
		})
	})
}

func TestOpenStream(t *testing.T) {
	Convey("Given a server that streams two SSE frames", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flusher := w.(http.Flusher)
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("data: {\"result\":{\"step\":1}}\n\n"))
			flusher.Flush()
			_, _ = w.Write([]byte("data: {\"result\":{\"step\":2}}\n\n"))
			flusher.Flush()
		}))
		defer srv.Close()

		client := New()

		Convey("The caller can read the live response body", func() {
			resp, err := client.OpenStream(context.Background(), srv.URL, nil, []byte(`{}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			scanner := bufio.NewScanner(resp.Body)
			scanner.Scan()
			So(scanner.Text(), ShouldContainSubstring, `"step":1`)
		})
	})
}
