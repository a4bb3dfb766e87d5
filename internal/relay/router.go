package relay

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the relay at /ws, with the match code taken from
// ?match=, and at /ws/{match}.
func NewRouter(s *Server) http.Handler {
	router := mux.NewRouter()
	router.Handle("/ws", s).Methods(http.MethodGet)
	router.HandleFunc("/ws/{match}", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		q.Set("match", mux.Vars(r)["match"])
		r.URL.RawQuery = q.Encode()
		s.ServeHTTP(w, r)
	}).Methods(http.MethodGet)
	return router
}
