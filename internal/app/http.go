package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aphorist/pkg/api"
	"aphorist/pkg/auth"
)

// handler builds the full HTTP surface. Probes and metrics stay outside the
// admission gate so deployment systems can reach them without credentials;
// the API itself sits behind key check, rate limit and IP blocklist.
func (a *App) handler() http.Handler {
	gate := auth.NewGate(
		a.cfg.Security.APIKeys,
		auth.Limits{RPS: a.cfg.Security.RateLimit.RPS, Burst: a.cfg.Security.RateLimit.Burst},
		auth.NewBlocklist(a.store),
	)
	apiHandler := gate.Middleware(api.NewServer(a.svc).Router())

	root := http.NewServeMux()
	root.HandleFunc("/healthz", healthzHandler)
	root.HandleFunc("/readyz", a.readyzHandler)
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", apiHandler)
	return root
}

// healthzHandler answers liveness: the process is up.
func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// readyzHandler answers readiness: storage connected and migration passed.
func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// startHTTP starts the HTTP server in a goroutine and returns a channel
// that will carry any server error.
func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: a.handler()}

	errCh := make(chan error, 1)
	go func() {
		cert := a.cfg.Server.TLS.CertFile
		key := a.cfg.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
