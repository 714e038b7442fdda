// Package web serves a one-page form for inspecting the telemetry ping of a
// single changeset without sending it anywhere.
package web

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sanix-darker/hgping/internal/telemetry"
)

type payloadBuilder interface {
	PayloadForChangeset(ctx context.Context, node, repoURL string) (*telemetry.Payload, error)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>hgping</title></head>
<body>
<h1>hgping</h1>
<p>Build the telemetry ping for a changeset in {{.Repo}}.</p>
<form method="POST" action="/">
  <label>Changeset ID: <input type="text" name="changesetid" size="42"></label>
  <button type="submit">Classify</button>
</form>
{{if .Error}}<p style="color: red">{{.Error}}</p>{{end}}
{{if .PingBody}}<pre>{{.PingBody}}</pre>{{end}}
</body>
</html>
`))

type indexData struct {
	Repo     string
	PingBody string
	Error    string
}

// Server renders the form and classifies submitted changesets against a
// single configured repository.
type Server struct {
	pinger  payloadBuilder
	repoURL string
}

// NewServer returns a Server bound to the given repository URL.
func NewServer(pinger *telemetry.Pinger, repoURL string) *Server {
	return &Server{pinger: pinger, repoURL: repoURL}
}

// Handler returns the HTTP handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	return logging(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := indexData{Repo: s.repoURL}
	if r.Method == http.MethodPost {
		node := r.FormValue("changesetid")
		payload, err := s.pinger.PayloadForChangeset(r.Context(), node, s.repoURL)
		if err != nil {
			data.Error = err.Error()
		} else {
			body, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data.PingBody = string(body)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("rendering index template")
	}
}

// logging writes one access log line per request.
func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
