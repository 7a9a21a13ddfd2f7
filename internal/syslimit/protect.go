// Package syslimit hardens the daemon's own process against the memory
// pressure it reports on.
package syslimit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	merr "memwatch/internal/errors"
)

const selfOOMScoreAdjPath = "/proc/self/oom_score_adj"

// SelfProtector locks the daemon's memory so it cannot be swapped out, and
// optionally lowers its own OOM priority. Both steps are best-effort: a
// watchdog that cannot pin itself still works, just less reliably under
// pressure.
type SelfProtector struct {
	logger      *slog.Logger
	oomScoreAdj int
	setAdj      bool
}

// NewSelfProtector creates a SelfProtector. When setAdj is true, oomScoreAdj
// is written to the daemon's own oom_score_adj during Apply.
func NewSelfProtector(logger *slog.Logger, oomScoreAdj int, setAdj bool) *SelfProtector {
	return &SelfProtector{logger: logger, oomScoreAdj: oomScoreAdj, setAdj: setAdj}
}

// Apply performs both protection steps, aggregating failures into one
// recoverable error. The context parameter matches the applier convention;
// neither step blocks.
func (sp *SelfProtector) Apply(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs merr.MultiError

	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		errs.Add(merr.WrapRecoverable(err, "mlockall"))
	} else if sp.logger != nil {
		sp.logger.Info("locked all memory into RAM")
	}

	if sp.setAdj {
		value := strconv.Itoa(sp.oomScoreAdj)
		if err := os.WriteFile(selfOOMScoreAdjPath, []byte(value+"\n"), 0o644); err != nil {
			errs.Add(merr.WrapRecoverable(err, "set_self_oom_score_adj",
				merr.ErrorContext{Path: selfOOMScoreAdjPath, Value: value}))
		} else if sp.logger != nil {
			sp.logger.Info("adjusted own OOM priority", slog.Int("oom_score_adj", sp.oomScoreAdj))
		}
	}

	if errs.Len() > 0 {
		return fmt.Errorf("self-protection incomplete: %w", errs.ErrorOrNil())
	}
	return nil
}
