package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/powchain/business/sys/validate"
	"github.com/ardanlabs/powchain/business/web/errs"
	"github.com/ardanlabs/powchain/business/web/mid"
	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp(path string, h web.Handler) *web.App {
	log := zap.NewNop().Sugar()

	app := web.NewApp(
		make(chan os.Signal, 1),
		mid.Logger(log),
		mid.Errors(log),
		mid.Metrics(),
		mid.Panics(),
	)
	app.Handle(http.MethodGet, "", path, h)

	return app
}

func serve(t *testing.T, app *web.App, path string) (int, errs.Response) {
	t.Helper()

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var er errs.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
	}

	return w.Code, er
}

func TestErrors(t *testing.T) {
	tt := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"trusted", errs.NewTrusted(errors.New("no such block"), http.StatusNotFound), http.StatusNotFound, "no such block"},
		{"fields", validate.FieldErrors{{Field: "data", Error: "data is too long"}}, http.StatusBadRequest, "data validation error"},
		{"untrusted", errors.New("disk on fire"), http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			app := newApp("/fail", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				return tst.err
			})

			status, er := serve(t, app, "/fail")
			assert.Equal(t, tst.status, status)
			assert.Equal(t, tst.msg, er.Error)
		})
	}
}

func TestPanics(t *testing.T) {
	app := newApp("/panic", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	status, er := serve(t, app, "/panic")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotEmpty(t, er.Error)
}
