package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/readq/internal/adapters/http/api"
	service "github.com/okian/readq/internal/app"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/ordering"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type client struct {
	handler http.Handler
}

func (c client) do(method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set(api.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func newClient(opts ...api.Option) (client, *service.Service) {
	svc := service.New()
	return client{handler: api.NewServer(svc, opts...).Routes()}, svc
}

func TestServer_Health(t *testing.T) {
	Convey("Given a new API server", t, func() {
		c, _ := newClient()

		Convey("Then the health endpoint answers", func() {
			w := c.do("GET", "/healthz", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then metrics are exposed", func() {
			c.do("GET", "/healthz", "", "")
			w := c.do("GET", "/metrics", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "readq_queue_http_requests_total")
		})

		Convey("Then the API reference is served", func() {
			So(c.do("GET", "/openapi.yaml", "", "").Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/api-docs", "", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are reported", func() {
			w := c.do("GET", "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			stats := decode[map[string]interface{}](w)
			So(stats["started"], ShouldEqual, false)
		})
	})
}

func TestServer_Books(t *testing.T) {
	Convey("Given a server with an empty reading list", t, func() {
		c, _ := newClient()

		Convey("When no user header is sent", func() {
			w := c.do("GET", "/books", "", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(decode[map[string]string](w)["code"], ShouldEqual, "unauthorized")
		})

		Convey("When the body is not JSON", func() {
			w := c.do("POST", "/books", "alice", "{")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the title is missing", func() {
			w := c.do("POST", "/books", "alice", `{"status":"unread"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "title is required")
		})

		Convey("When the rating is out of range", func() {
			w := c.do("POST", "/books", "alice", `{"title":"T","rating":9}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "rating")
		})

		Convey("When three books are created", func() {
			var ids []string
			for _, title := range []string{"A", "B", "C"} {
				w := c.do("POST", "/books", "alice", `{"title":"`+title+`","availability":"physical"}`)
				So(w.Code, ShouldEqual, http.StatusCreated)
				b := decode[model.Book](w)
				ids = append(ids, b.ID)
			}

			Convey("Then the queue lists them by rank", func() {
				w := c.do("GET", "/books/queue", "alice", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				books := decode[[]model.Book](w)
				So(len(books), ShouldEqual, 3)
				So(books[0].Title, ShouldEqual, "A")
				So(*books[2].Rank, ShouldEqual, 3)
			})

			Convey("Then a position can be looked up", func() {
				w := c.do("GET", "/books/queue/2", "alice", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.Book](w).Title, ShouldEqual, "B")

				So(c.do("GET", "/books/queue/9", "alice", "").Code, ShouldEqual, http.StatusNotFound)
				So(c.do("GET", "/books/queue/x", "alice", "").Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then queue stats are computed", func() {
				w := c.do("GET", "/books/queue/stats", "alice", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				q := decode[map[string]float64](w)
				So(q["total"], ShouldEqual, 3.0)
				So(q["q1"], ShouldEqual, 2.0)
			})

			Convey("Then another user cannot read them", func() {
				w := c.do("GET", "/books/"+ids[0], "bob", "")
				So(w.Code, ShouldEqual, http.StatusForbidden)
			})

			Convey("Then a move to an existing rank reorders the queue", func() {
				w := c.do("PUT", "/books/"+ids[2], "alice", `{"rank":1}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(*decode[model.Book](w).Rank, ShouldEqual, 1)

				w = c.do("GET", "/books/queue/2", "alice", "")
				So(decode[model.Book](w).Title, ShouldEqual, "A")
			})

			Convey("Then a move to a rank nobody holds conflicts", func() {
				w := c.do("PUT", "/books/"+ids[0], "alice", `{"rank":7}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[map[string]string](w)["code"], ShouldEqual, "inconsistent_rank")
			})

			Convey("Then finishing a book drops it from the queue", func() {
				w := c.do("PUT", "/books/"+ids[0], "alice", `{"status":"finished"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.Book](w).Rank, ShouldBeNil)

				books := decode[[]model.Book](c.do("GET", "/books/queue", "alice", ""))
				So(len(books), ShouldEqual, 2)
				all := decode[[]model.Book](c.do("GET", "/books", "alice", ""))
				So(len(all), ShouldEqual, 3)
			})

			Convey("Then a bulk reorder reports skipped pairs", func() {
				body := `[{"book_id":"` + ids[0] + `","rank":3},{"book_id":"` + ids[2] + `","rank":1},{"book_id":"nope","rank":2}]`
				w := c.do("POST", "/books/reorder", "alice", body)
				So(w.Code, ShouldEqual, http.StatusOK)
				res := decode[types.ReorderResult](w)
				So(res.Applied, ShouldEqual, 2)
				So(res.Skipped, ShouldResemble, []types.SkippedAssignment{{BookID: "nope", Reason: types.SkipNotFound}})
			})

			Convey("Then a reorder pair without book id is rejected", func() {
				w := c.do("POST", "/books/reorder", "alice", `[{"rank":1}]`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then deleting closes the gap", func() {
				So(c.do("DELETE", "/books/"+ids[0], "alice", "").Code, ShouldEqual, http.StatusNoContent)
				So(c.do("GET", "/books/"+ids[0], "alice", "").Code, ShouldEqual, http.StatusNotFound)
				w := c.do("GET", "/books/queue/1", "alice", "")
				So(decode[model.Book](w).Title, ShouldEqual, "B")
			})
		})
	})
}

func TestServer_Formula(t *testing.T) {
	Convey("Given a user with one book", t, func() {
		c, _ := newClient()
		So(c.do("POST", "/books", "alice", `{"title":"A","type":"Technical"}`).Code, ShouldEqual, http.StatusCreated)

		Convey("When the formula is read before any is stored", func() {
			view := decode[types.FormulaView](c.do("GET", "/formula", "alice", ""))
			So(view.Custom, ShouldBeFalse)
		})

		Convey("When a formula is stored", func() {
			w := c.do("PUT", "/formula", "alice", `{"type":{"weights":{"Technical":3}}}`)

			Convey("Then the book is rescored", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[types.FormulaUpdate](w).Rescored, ShouldEqual, 1)
				books := decode[[]model.Book](c.do("GET", "/books", "alice", ""))
				So(books[0].Score, ShouldEqual, 3.0)
			})

			Convey("Then previews use it", func() {
				w := c.do("POST", "/books/preview-score", "alice", `{"title":"P","type":"Technical"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[map[string]float64](w)["total"], ShouldEqual, 3.0)
			})

			Convey("Then resetting restores the defaults", func() {
				w := c.do("DELETE", "/formula", "alice", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				view := decode[types.FormulaView](c.do("GET", "/formula", "alice", ""))
				So(view.Custom, ShouldBeFalse)
			})
		})
	})
}

func TestServer_Admin(t *testing.T) {
	Convey("Given a server without an admin token", t, func() {
		c, _ := newClient()

		Convey("Then admin routes are disabled", func() {
			w := c.do("GET", "/admin/audit?user=alice", "", "", api.HeaderAdminToken, "anything")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a server with an admin token", t, func() {
		c, svc := newClient(api.WithAdminToken("s3cret"))
		So(c.do("POST", "/books", "alice", `{"title":"A"}`).Code, ShouldEqual, http.StatusCreated)

		Convey("When the token is wrong", func() {
			w := c.do("GET", "/admin/audit?user=alice", "", "", api.HeaderAdminToken, "nope")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When a user's queue is audited", func() {
			w := c.do("GET", "/admin/audit?user=alice", "", "", api.HeaderAdminToken, "s3cret")
			So(w.Code, ShouldEqual, http.StatusOK)
			report := decode[ordering.Report](w)
			So(report.Consistent, ShouldBeTrue)
			So(report.Ranked, ShouldEqual, 1)
		})

		Convey("When the user parameter is missing", func() {
			w := c.do("POST", "/admin/resequence", "", "", api.HeaderAdminToken, "s3cret")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a user's queue is resequenced", func() {
			w := c.do("POST", "/admin/resequence?user=alice", "", "", api.HeaderAdminToken, "s3cret")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[types.ResequenceResult](w).Changed, ShouldEqual, 0)
		})

		Convey("When a rescore is requested before the workers run", func() {
			w := c.do("POST", "/admin/rescore", "", "", api.HeaderAdminToken, "s3cret")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a rescore is requested on a started service", func() {
			ctx, cancel := context.WithCancel(context.Background())
			t.Cleanup(cancel)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			w := c.do("POST", "/admin/rescore", "", "", api.HeaderAdminToken, "s3cret")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(decode[types.RescoreResult](w).Users, ShouldEqual, 1)
		})
	})
}
