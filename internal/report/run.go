package report

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/geobeat/gdi-cli/internal/analysis"
	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// NewRun builds the archive record of one analysis of ps. A non-nil runErr
// marks the run failed and rep is ignored.
func NewRun(ps model.PointSet, opts analysis.Options, rep *analysis.Report, runErr error) (*model.Run, error) {
	run := &model.Run{
		Label:     RunLabel(ps.Network, ps.Len(), opts.ThresholdKm, opts.Resolution, Digest(ps)),
		Network:   ps.Network,
		NodeCount: ps.Len(),
	}
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = &model.RunError{Kind: geoerr.KindOf(runErr).String(), Message: runErr.Error()}
		return run, nil
	}
	if rep == nil {
		return nil, eris.New("report: run has neither a report nor an error")
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return nil, eris.Wrap(err, "report: encode run report")
	}
	run.Status = model.RunStatusComplete
	run.Summary = rep.Summary()
	run.Report = data
	return run, nil
}

// DecodeReport restores the report archived with a complete run. The
// frequency tables are not archived and come back empty.
func DecodeReport(run *model.Run) (*analysis.Report, error) {
	if run == nil || len(run.Report) == 0 {
		return nil, geoerr.InsufficientDataf("decode_report", "run has no report")
	}
	var rep analysis.Report
	if err := json.Unmarshal(run.Report, &rep); err != nil {
		return nil, eris.Wrapf(err, "report: decode report of run %s", run.ID)
	}
	return &rep, nil
}
