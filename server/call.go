package server

import (
	"net/http"
	"net/url"

	"github.com/bradenaw/juniper/xslices"
)

// Call is a request received by the server, with its response.
type Call struct {
	URL    *url.URL
	Method string
	Status int

	RequestHeader http.Header
	RequestBody   []byte

	ResponseHeader http.Header
	ResponseBody   []byte
}

type callWatcher struct {
	paths    []string
	callFn   func(Call)
	watchAll bool
}

func newCallWatcher(fn func(Call), paths ...string) callWatcher {
	return callWatcher{
		paths:    paths,
		callFn:   fn,
		watchAll: len(paths) == 0,
	}
}

func (watcher *callWatcher) isWatching(path string) bool {
	return watcher.watchAll || xslices.Index(watcher.paths, path) >= 0
}

func (watcher *callWatcher) publish(call Call) {
	watcher.callFn(call)
}
