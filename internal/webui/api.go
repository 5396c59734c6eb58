package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"effectifs/internal/georef"
	"effectifs/internal/queries"
)

// Defaults of the query parameters.
const (
	DefaultAnnee = 2023
	DefaultDebut = 2015
	DefaultFin   = 2023
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("webui: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// ready answers 503 until the data is initialized.
func (s *Server) ready(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Tracker.Snapshot().NeedsSetup {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.PollInterval.Seconds())+1))
			writeError(w, http.StatusServiceUnavailable, "donnees en cours d'initialisation")
			return
		}
		next(w, r)
	}
}

func (s *Server) querier(ctx context.Context) (Querier, error) {
	s.qMu.Lock()
	defer s.qMu.Unlock()
	if s.q != nil {
		return s.q, nil
	}
	if s.deps.Queries == nil {
		return nil, errors.New("webui: no query layer configured")
	}
	q, err := s.deps.Queries(ctx)
	if err != nil {
		return nil, err
	}
	s.q = q
	return q, nil
}

// serveQuery resolves the querier, runs fn and writes its result.
func serveQuery[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(Querier) (T, error)) {
	q, err := s.querier(r.Context())
	if err != nil {
		log.Printf("webui: open queries: %v", err)
		writeError(w, http.StatusServiceUnavailable, "base de donnees indisponible")
		return
	}
	out, err := fn(q)
	if err != nil {
		log.Printf("webui: %s: %v", r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "requete echouee")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// intParam reads an integer query parameter, def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parametre %s invalide: %q", name, v)
	}
	return n, nil
}

func strParam(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

func (s *Server) handlePathologies(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, func(q Querier) ([]string, error) { return q.Pathologies(r.Context()) })
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	serveQuery(s, w, r, func(q Querier) ([]string, error) { return q.Regions(r.Context()) })
}

func (s *Server) handlePrevalence(byDept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		annee, err := intParam(r, "annee", DefaultAnnee)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f := queries.Filter{Annee: annee, Pathologie: strParam(r, "pathologie")}
		serveQuery(s, w, r, func(q Querier) ([]queries.AreaStat, error) {
			if byDept {
				return q.PrevalenceByDepartement(r.Context(), f)
			}
			return q.PrevalenceByRegion(r.Context(), f)
		})
	}
}

func (s *Server) handleEvolution(w http.ResponseWriter, r *http.Request) {
	debut, err := intParam(r, "debut", DefaultDebut)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fin, err := intParam(r, "fin", DefaultFin)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if debut > fin {
		writeError(w, http.StatusBadRequest, "debut doit preceder fin")
		return
	}
	f := queries.EvolutionFilter{From: debut, To: fin, Pathologie: strParam(r, "pathologie"), Region: strParam(r, "region")}
	serveQuery(s, w, r, func(q Querier) ([]queries.EvolutionPoint, error) { return q.Evolution(r.Context(), f) })
}

func (s *Server) handleAgeSexe(w http.ResponseWriter, r *http.Request) {
	annee, err := intParam(r, "annee", DefaultAnnee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := queries.Filter{Annee: annee, Pathologie: strParam(r, "pathologie")}
	serveQuery(s, w, r, func(q Querier) ([]queries.AgeSexeStat, error) { return q.AgeSexe(r.Context(), f) })
}

func (s *Server) handleAge(w http.ResponseWriter, r *http.Request) {
	annee, err := intParam(r, "annee", DefaultAnnee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := queries.AgeFilter{Annee: annee, Pathologie: strParam(r, "pathologie"), Region: strParam(r, "region")}
	if strParam(r, "sexe") != "" {
		sexe, err := intParam(r, "sexe", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Sexe = &sexe
	}
	serveQuery(s, w, r, func(q Querier) ([]queries.AgeBucket, error) { return q.AgeDistribution(r.Context(), f) })
}

type geoResponse struct {
	Departements []georef.Departement `json:"departements"`
	DeptToRegion map[string]string    `json:"dept_to_region"`
	Regions      []string             `json:"regions"`
}

func (s *Server) handleGeo(w http.ResponseWriter, r *http.Request) {
	if s.deps.Geo == nil {
		writeError(w, http.StatusNotFound, "referentiel geographique non configure")
		return
	}
	idx, err := s.deps.Geo.Get()
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusServiceUnavailable, "referentiel geographique absent")
		return
	}
	if err != nil {
		log.Printf("webui: georef: %v", err)
		writeError(w, http.StatusInternalServerError, "referentiel geographique illisible")
		return
	}
	writeJSON(w, http.StatusOK, geoResponse{
		Departements: idx.Departements(),
		DeptToRegion: idx.DeptToRegion(),
		Regions:      idx.Regions(),
	})
}
