package main

import (
	"go.uber.org/zap"

	"github.com/chazu/shard/pkg/config"
	"github.com/chazu/shard/pkg/engine"
	"github.com/chazu/shard/pkg/kernel"
	"github.com/chazu/shard/pkg/kernel/sdfx"
	"github.com/chazu/shard/pkg/tessellate"
)

// colorPalette is a default palette used to assign distinct colors to meshes.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App runs a script through the engine and tessellator.
type App struct {
	engine *engine.Engine
	kernel kernel.Kernel
	cfg    config.Config
	logger *zap.Logger
}

// MeshData is the JSON-serializable mesh format.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
	Node    string `json:"node,omitempty"`
}

// EvalResult is the full result printed by the CLI.
type EvalResult struct {
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp creates an App with an engine and the sdfx kernel configured
// from cfg.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		engine: engine.NewEngine(engine.WithTimeout(cfg.EvalTimeout)),
		kernel: sdfx.New(sdfx.WithCells(cfg.SampleCells)),
		cfg:    cfg,
		logger: logger,
	}
}

// Evaluate takes Lisp source and returns mesh data plus errors and warnings.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	// Step 1: evaluate and validate the script.
	checked, err := a.engine.Check(source)
	if err != nil {
		a.logger.Error("evaluation failed", zap.Error(err))
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	for _, w := range checked.Warnings {
		data := EvalErrorData{Line: w.Line, Col: w.Col, Message: w.Message}
		if !w.NodeID.IsZero() {
			data.Node = w.NodeID.Short()
		}
		result.Warnings = append(result.Warnings, data)
	}
	if len(checked.Errors) > 0 {
		for _, e := range checked.Errors {
			data := EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message}
			if !e.NodeID.IsZero() {
				data.Node = e.NodeID.Short()
			}
			result.Errors = append(result.Errors, data)
		}
		return result
	}

	// Step 2: run the hull and shatter jobs.
	meshes, err := tessellate.Tessellate(checked.Scene, a.kernel,
		tessellate.WithConfig(a.cfg),
		tessellate.WithLogger(a.logger))
	if err != nil {
		a.logger.Error("tessellation failed", zap.Error(err))
		result.Errors = append(result.Errors, EvalErrorData{
			Message: "tessellation failed: " + err.Error(),
		})
		return result
	}

	// Step 3: convert kernel meshes to the output format.
	for i, m := range meshes {
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	a.logger.Debug("evaluated", zap.Int("meshes", len(result.Meshes)))
	return result
}
