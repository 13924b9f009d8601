package rp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

var (
	ErrStateMissing = errors.New("state missing")
	ErrStatePending = errors.New("an authentication with this state is already pending")
)

// DeliveryChannel receives authorization responses at the redirect URI.
type DeliveryChannel interface {
	// Expect registers a pending authentication for state.
	// The returned Completion is resolved with the first response
	// carrying the state.
	Expect(state string) (*Completion, error)
}

// Completion is the single-use result slot of one authentication.
// It is resolved at most once, either by a response or by
// Wait giving up. Responses arriving afterwards are discarded.
type Completion struct {
	once    sync.Once
	done    chan struct{}
	params  url.Values
	release func()
}

func newCompletion(release func()) *Completion {
	return &Completion{
		done:    make(chan struct{}),
		release: release,
	}
}

// Resolve delivers the response parameters.
// It reports false if the completion was already resolved or abandoned.
func (c *Completion) Resolve(params url.Values) bool {
	if params == nil {
		params = url.Values{}
	}
	return c.finish(params)
}

func (c *Completion) finish(params url.Values) (ok bool) {
	c.once.Do(func() {
		c.params = params
		ok = true
		close(c.done)
	})
	return ok
}

// Wait blocks until the completion is resolved or ctx is done.
// In the latter case the completion is abandoned and ctx.Err() returned.
func (c *Completion) Wait(ctx context.Context) (url.Values, error) {
	if c.release != nil {
		defer c.release()
	}
	select {
	case <-c.done:
		return c.params, nil
	case <-ctx.Done():
	}
	if c.finish(nil) {
		return nil, ctx.Err()
	}
	// resolved concurrently with the cancellation
	return c.params, nil
}

// Abandon gives up the completion without waiting.
func (c *Completion) Abandon() {
	c.finish(nil)
	if c.release != nil {
		c.release()
	}
}

// CallbackHandler is the DeliveryChannel of a redirect URI served by
// this process. Responses are accepted as query (GET) and as form_post
// body (POST). A GET without parameters gets a page which posts the
// URL fragment back, so fragment encoded responses arrive as well.
type CallbackHandler struct {
	mu      sync.Mutex
	pending map[string]*Completion
}

func NewCallbackHandler() *CallbackHandler {
	return &CallbackHandler{
		pending: make(map[string]*Completion),
	}
}

func (h *CallbackHandler) Expect(state string) (*Completion, error) {
	if state == "" {
		return nil, ErrStateMissing
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pending[state]; ok {
		return nil, fmt.Errorf("%w: %q", ErrStatePending, state)
	}
	c := newCompletion(func() {
		h.mu.Lock()
		delete(h.pending, state)
		h.mu.Unlock()
	})
	h.pending[state] = c
	return c, nil
}

func (h *CallbackHandler) lookup(state string) (*Completion, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.pending[state]
	return c, ok
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := loggerFrom(ctx)

	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
		if len(params) == 0 {
			w.Header().Set("content-type", "text/html; charset=utf-8")
			io.WriteString(w, fragmentRelayPage)
			return
		}
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params = r.PostForm
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := params.Get(stateParam)
	completion, ok := h.lookup(state)
	if !ok {
		logger.WarnContext(ctx, "discarding authorization response without pending authentication", "state", state)
		http.Error(w, "no pending authentication for this response", http.StatusBadRequest)
		return
	}
	if !completion.Resolve(params) {
		logger.WarnContext(ctx, "discarding late authorization response", "state", state)
		http.Error(w, "authentication already completed", http.StatusGone)
		return
	}
	logger.DebugContext(ctx, "authorization response received", "state", state)
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	io.WriteString(w, "Authentication response received, you may close this window.")
}

const fragmentRelayPage = `<!DOCTYPE html>
<html>
<head><title>Authentication</title></head>
<body>
<form method="post" id="relay"></form>
<script>
var params = new URLSearchParams(window.location.hash.substring(1));
var form = document.getElementById("relay");
params.forEach(function(value, key) {
	var input = document.createElement("input");
	input.type = "hidden";
	input.name = key;
	input.value = value;
	form.appendChild(input);
});
form.submit();
</script>
</body>
</html>`
