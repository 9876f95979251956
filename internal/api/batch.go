package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/snarg/vtt-batch/internal/batch"
)

// BatchRunner runs one transcription batch.
type BatchRunner interface {
	Run(ctx context.Context) (*batch.Result, error)
}

// BatchHandler runs a batch and returns its result. Every completed run is a
// 200, whatever its status. The run is detached from the request, so a client
// that disconnects does not abort it.
func BatchHandler(runner BatchRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)
		res, err := runner.Run(context.WithoutCancel(r.Context()))
		if err != nil {
			log.Error().Err(err).Msg("batch run failed")
			WriteErrorDetail(w, http.StatusInternalServerError, "batch transcription failed", err.Error())
			return
		}
		log.Info().
			Str("status", string(res.Status)).
			Int("succeeded", res.SuccessCount).
			Int("failed", res.FailureCount).
			Msg("batch run complete")
		WriteJSON(w, http.StatusOK, res)
	}
}
