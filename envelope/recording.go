package envelope

import (
	"context"

	"github.com/sarchlab/envelope/datarecording"
	"github.com/sarchlab/envelope/solver"
)

// Tables written to the data recorder.
const (
	IterationTable = "iterations"
	TileSolveTable = "tile_solves"
)

// IterationEntry is one row of the iterations table.
type IterationEntry struct {
	RunID     string
	Iteration int
	Change    float64
	NumTiles  int
	TileShape string
	Seconds   float64
}

// TileSolveEntry is one row of the tile_solves table.
type TileSolveEntry struct {
	RunID      string
	Iteration  int
	TileID     int
	Region     string
	Method     string
	Sweeps     int
	Iterations int
	Residual   float64
}

func (l *Loop) createTables() {
	l.tablesOnce.Do(func() {
		l.recorder.CreateTable(IterationTable, IterationEntry{})
		l.recorder.CreateTable(TileSolveTable, TileSolveEntry{})
	})
}

// appendTileRows keeps the recorded fields of solved tiles. Tile values are
// not retained.
func (l *Loop) appendTileRows(
	rows []TileSolveEntry,
	iter int,
	results []solver.Result,
) []TileSolveEntry {
	if l.recorder == nil {
		return rows
	}

	for _, r := range results {
		rows = append(rows, TileSolveEntry{
			RunID:      l.runID,
			Iteration:  iter,
			TileID:     r.Tile.ID,
			Region:     r.Tile.Region().String(),
			Method:     r.Method.String(),
			Sweeps:     r.Sweeps,
			Iterations: r.Iterations,
			Residual:   r.Residual,
		})
	}

	return rows
}

// record writes an iteration only after all of its tiles were merged.
func (l *Loop) record(
	iter int,
	out iterationOutput,
	rows []TileSolveEntry,
	seconds float64,
) {
	if l.recorder == nil {
		return
	}

	l.createTables()

	l.recorder.InsertData(IterationTable, IterationEntry{
		RunID:     l.runID,
		Iteration: iter,
		Change:    out.change,
		NumTiles:  out.numTiles,
		TileShape: out.plan.TileShape.String(),
		Seconds:   seconds,
	})

	for _, row := range rows {
		l.recorder.InsertData(TileSolveTable, row)
	}
}

func (l *Loop) flushRecorder() {
	if l.recorder == nil {
		return
	}

	l.recorder.Flush()
}

// ReadIterations returns the iterations stored in a recording, ordered by run
// and iteration. An empty runID selects every run.
func ReadIterations(
	ctx context.Context,
	r *datarecording.Reader,
	runID string,
) ([]IterationEntry, error) {
	f := datarecording.Filter{OrderBy: "RunID, Iteration"}
	if runID != "" {
		f.Where = "RunID = ?"
		f.Args = []any{runID}
	}

	return datarecording.Query[IterationEntry](ctx, r, IterationTable, f)
}

// ReadTileSolves returns the tiles solved in one iteration of a run.
func ReadTileSolves(
	ctx context.Context,
	r *datarecording.Reader,
	runID string,
	iteration int,
) ([]TileSolveEntry, error) {
	return datarecording.Query[TileSolveEntry](ctx, r, TileSolveTable,
		datarecording.Filter{
			Where:   "RunID = ? AND Iteration = ?",
			Args:    []any{runID, iteration},
			OrderBy: "TileID",
		})
}
