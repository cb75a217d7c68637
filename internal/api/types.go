package api

import (
	"github.com/goccy/go-json"

	"github.com/samcharles93/ghn/internal/ghn"
)

// PredictionRequest runs the hypernetwork on one architecture.
type PredictionRequest struct {
	// Net is the YAML architecture description.
	Net string `json:"net"`
	// Graph is the computation graph in its JSON form.
	Graph         json.RawMessage    `json:"graph"`
	Options       *PredictionOptions `json:"options,omitempty"`
	IncludeParams bool               `json:"include_params,omitempty"`
	Store         *bool              `json:"store,omitempty"`
}

// PredictionOptions override the server defaults for one request.
type PredictionOptions struct {
	Mode               string `json:"mode,omitempty"`
	PredictClassLayers *bool  `json:"predict_class_layers,omitempty"`
	BNTrain            *bool  `json:"bn_train,omitempty"`
	DebugLevel         *int   `json:"debug_level,omitempty"`
}

// ParamSummary describes one predicted parameter without its values.
type ParamSummary struct {
	Name  string  `json:"name"`
	Shape []int   `json:"shape"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Norm  float64 `json:"norm"`
}

type Prediction struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Net       string         `json:"net"`
	Mode      string         `json:"mode"`
	Report    ghn.Report     `json:"report"`
	Params    []ParamSummary `json:"params,omitempty"`
}

type PredictionList struct {
	Object string       `json:"object"`
	Data   []Prediction `json:"data"`
}

type DeletePredictionResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ModelInfo struct {
	Object  string     `json:"object"`
	Config  ghn.Config `json:"config"`
	Tensors int        `json:"tensors"`
	Version string     `json:"version"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
