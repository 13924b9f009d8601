package mock

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/jeremija/gosubmit"
)

func NewUserAgent(t *testing.T) *MockUserAgent {
	return NewMockUserAgent(gomock.NewController(t))
}

// NewUserAgentFollowing returns a user agent which requests the
// authorization URL from handler and delivers the redirect to callback,
// the way a browser without user interaction would.
func NewUserAgentFollowing(t *testing.T, op http.Handler, callback http.Handler) *MockUserAgent {
	m := NewUserAgent(t)
	m.EXPECT().Navigate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, authURL *url.URL) error {
			go func() {
				if err := Follow(ctx, authURL, op, callback); err != nil {
					t.Log(err)
				}
			}()
			return nil
		}).AnyTimes()
	return m
}

// Follow requests authURL from op and passes the response to callback,
// the way a browser without user interaction would: a redirect location
// is requested, with fragment parameters moved into the query like the
// relay page does, and an auto-submitting form_post page is submitted.
func Follow(ctx context.Context, authURL *url.URL, op http.Handler, callback http.Handler) error {
	rec := httptest.NewRecorder()
	op.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, authURL.String(), nil).WithContext(ctx))
	resp := rec.Result()
	defer resp.Body.Close()

	var req *http.Request
	switch resp.StatusCode {
	case http.StatusFound, http.StatusSeeOther:
		location, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			return err
		}
		if location.Fragment != "" {
			location.RawQuery = location.Fragment
			location.Fragment = ""
		}
		req = httptest.NewRequest(http.MethodGet, location.String(), nil)
	case http.StatusOK:
		form := gosubmit.ParseWithURL(resp.Body, authURL.String()).FirstForm()
		var err error
		if req, err = form.NewTestRequest(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("authorization endpoint: %s", resp.Status)
	}
	callback.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))
	return nil
}
