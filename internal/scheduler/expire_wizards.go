package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExpireWizardsJob closes plugin wizards nobody has touched for a while
type ExpireWizardsJob struct {
	log     zerolog.Logger
	expirer WizardExpirer
	maxIdle time.Duration
}

// NewExpireWizardsJob creates a new ExpireWizardsJob
func NewExpireWizardsJob(expirer WizardExpirer, maxIdle time.Duration) *ExpireWizardsJob {
	return &ExpireWizardsJob{
		log:     zerolog.Nop(),
		expirer: expirer,
		maxIdle: maxIdle,
	}
}

// SetLogger sets the logger for the job
func (j *ExpireWizardsJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *ExpireWizardsJob) Name() string {
	return "expire_wizards"
}

// Run executes the expire wizards job
func (j *ExpireWizardsJob) Run() error {
	if j.expirer == nil {
		return fmt.Errorf("wizard store not configured")
	}

	expired := j.expirer.Expire(j.maxIdle)
	j.log.Debug().
		Int("expired", expired).
		Dur("max_idle", j.maxIdle).
		Msg("Wizard sessions swept")

	return nil
}
