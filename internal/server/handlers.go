package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/projection"
	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/scene"
	"github.com/pkh-dashboard/peta/internal/svg"
	"github.com/pkh-dashboard/peta/internal/view"
)

const (
	defaultRankN = 10
	maxRankN     = 100
)

type sceneResponse struct {
	scene.Scene
	Transform string        `json:"transform"`
	View      view.Snapshot `json:"view"`
}

type rankResponse struct {
	Top    []classify.ValueRow `json:"top"`
	Bottom []classify.ValueRow `json:"bottom"`
}

// selection reads tipe and kabkota from the query string.
func selection(r *http.Request) (region.Selection, error) {
	q := r.URL.Query()
	category, err := region.ParseCategory(q.Get("tipe"))
	if err != nil {
		return region.Selection{}, err
	}
	code, hasCode, err := region.ParseCode(q.Get("kabkota"))
	if err != nil {
		return region.Selection{}, err
	}
	return region.Selection{Category: category, Code: code, HasCode: hasCode}, nil
}

// viewFor returns the snapshot and transform of the session named by the
// session query parameter, or of a fresh view when none is given.
func (s *Server) viewFor(r *http.Request, viewport projection.Size) (view.Snapshot, string, error) {
	id := r.URL.Query().Get("session")
	if id == "" {
		st := view.New(s.sessions.opts)
		return st.Snapshot(), st.Transform(viewport), nil
	}
	sess, ok := s.sessions.get(id)
	if !ok {
		return view.Snapshot{}, "", errUnknownSession
	}
	snap, transform := sess.read(viewport)
	return snap, transform, nil
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	sel, err := selection(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sc := s.pipeline.Compute(sel)
	snap, transform, err := s.viewFor(r, sc.Size())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sceneResponse{Scene: sc, Transform: transform, View: snap})
}

func (s *Server) handleSceneSVG(w http.ResponseWriter, r *http.Request) {
	sel, err := selection(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	regionsVersion, valuesVersion := s.pipeline.Versions()
	_, transform, err := s.viewFor(r, s.pipeline.Size())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	key := scene.CacheKey{
		RegionsVersion: regionsVersion,
		ValuesVersion:  valuesVersion,
		Selection:      sel,
		View:           transform,
	}
	if s.cache != nil {
		if doc, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookup(true)
			writeSVG(w, doc, "hit")
			return
		}
		s.metrics.CacheLookup(false)
	}

	sc := s.pipeline.Compute(sel)
	doc := svg.Render(sc, transform, s.style)
	if s.cache != nil {
		key.RegionsVersion, key.ValuesVersion = sc.RegionsVersion, sc.ValuesVersion
		s.cache.Put(key, doc)
	}
	writeSVG(w, doc, "miss")
}

func writeSVG(w http.ResponseWriter, doc []byte, cache string) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Cache", cache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handleLegend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Legend())
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	n := defaultRankN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxRankN {
			writeError(w, http.StatusBadRequest, "n must be an integer between 1 and 100")
			return
		}
		n = v
	}

	rows := s.pipeline.Rows()
	writeJSON(w, http.StatusOK, rankResponse{
		Top:    scene.TopN(rows, n),
		Bottom: scene.BottomN(rows, n),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}

	res, err := s.loader.Reload(r.Context())
	if err != nil {
		zap.L().Error("server: reload failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "reload failed: "+err.Error())
		return
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	writeJSON(w, http.StatusOK, res)
}

var errUnknownSession = errors.New("server: unknown view session")
