// Package api serves parameter predictions over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ghn/internal/arch"
	"github.com/samcharles93/ghn/internal/ghn"
	"github.com/samcharles93/ghn/internal/graph"
	"github.com/samcharles93/ghn/internal/logger"
	"github.com/samcharles93/ghn/internal/version"
)

// Predictor is satisfied by *ghn.Model and ghn.Parallel.
type Predictor interface {
	Predict(ctx context.Context, nets []*arch.Net, b *graph.Batch, opts ghn.Options) (*ghn.Result, error)
}

type Server struct {
	model     *ghn.Model
	predictor Predictor
	defaults  ghn.Options
	store     *PredictionStore
	log       logger.Logger
	clock     func() time.Time
}

// NewServer serves predictions from model through p. A nil p predicts
// with the model directly.
func NewServer(model *ghn.Model, p Predictor, defaults ghn.Options, store *PredictionStore, log logger.Logger) *Server {
	if p == nil {
		p = model
	}
	if store == nil {
		store = NewPredictionStore(256)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{model: model, predictor: p, defaults: defaults, store: store, log: log, clock: time.Now}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/predictions", s.handleCreatePrediction)
	e.GET("/v1/predictions", s.handleListPredictions)
	e.GET("/v1/predictions/:id", s.handleGetPrediction)
	e.DELETE("/v1/predictions/:id", s.handleDeletePrediction)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModel(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelInfo{
		Object:  "model",
		Config:  s.model.Config(),
		Tensors: len(s.model.Tensors()),
		Version: version.String(),
	})
}

func (s *Server) handleCreatePrediction(c *echo.Context) error {
	req, err := decodeJSON[PredictionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Net) == "" {
		return writeBadRequest(c, "net is required")
	}
	if len(req.Graph) == 0 {
		return writeBadRequest(c, "graph is required")
	}
	net, err := arch.Parse([]byte(req.Net))
	if err != nil {
		return writeBadRequest(c, "net: "+err.Error())
	}
	g, err := graph.Decode(req.Graph)
	if err != nil {
		return writeBadRequest(c, "graph: "+err.Error())
	}
	opts, err := s.options(req.Options)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	id := newPredictionID()
	ctx := logger.WithContext(c.Request().Context(), s.log.With("prediction", id))
	res, err := s.predictor.Predict(ctx, []*arch.Net{net}, graph.NewBatch(g), opts)
	if err != nil {
		return s.writePredictError(c, err)
	}

	p := Prediction{
		ID:        id,
		Object:    "prediction",
		CreatedAt: s.clock().Unix(),
		Net:       net.Name,
		Mode:      opts.Mode.String(),
		Report:    res.Report,
	}
	if req.IncludeParams {
		p.Params = summarize(net)
	}
	if req.Store == nil || *req.Store {
		s.store.Save(p)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) options(o *PredictionOptions) (ghn.Options, error) {
	opts := s.defaults
	if o == nil {
		return opts, nil
	}
	if o.Mode != "" {
		mode, err := ghn.ParseMode(o.Mode)
		if err != nil {
			return opts, newInvalidRequest(err.Error())
		}
		opts.Mode = mode
	}
	if o.PredictClassLayers != nil {
		opts.PredictClassLayers = *o.PredictClassLayers
	}
	if o.BNTrain != nil {
		opts.BNTrain = *o.BNTrain
	}
	if o.DebugLevel != nil {
		if *o.DebugLevel < 0 || *o.DebugLevel > 3 {
			return opts, newInvalidRequest("debug_level must be between 0 and 3")
		}
		opts.DebugLevel = *o.DebugLevel
	}
	// Embeddings are never returned over HTTP.
	opts.ReturnEmbeddings = false
	return opts, nil
}

// writePredictError maps pipeline failures onto 422 with a stable code.
// Anything else is a server error.
func (s *Server) writePredictError(c *echo.Context, err error) error {
	if code, ok := predictionCode(err); ok {
		return writeUnprocessable(c, err.Error(), code)
	}
	s.log.Error("prediction failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}

func (s *Server) handleListPredictions(c *echo.Context) error {
	return c.JSON(http.StatusOK, PredictionList{Object: "list", Data: s.store.List()})
}

func (s *Server) handleGetPrediction(c *echo.Context) error {
	p, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "prediction not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePrediction(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "prediction not found")
	}
	return c.JSON(http.StatusOK, DeletePredictionResp{ID: id, Object: "prediction", Deleted: true})
}

func summarize(n *arch.Net) []ParamSummary {
	var out []ParamSummary
	for name, slot := range n.Params() {
		st := slot.Data.Summarize()
		out = append(out, ParamSummary{
			Name:  name,
			Shape: slot.Shape,
			Min:   st.Min,
			Max:   st.Max,
			Mean:  st.Mean,
			Std:   st.Std,
			Norm:  st.Norm,
		})
	}
	return out
}
