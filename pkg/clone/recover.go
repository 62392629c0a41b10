package clone

import (
	"context"
	"errors"
	"log"
	"slices"

	"github.com/google/uuid"

	"github.com/ndexbio/ndexgraph/pkg/metrics"
)

// RecoveryReport counts what Recover did.
type RecoveryReport struct {
	// Unlocked: updates whose rebuild never committed in full; the live
	// record was unlocked and any partial rebuild queued for deletion.
	Unlocked int
	// Abandoned: clones that never committed in full; the partial record was
	// queued for deletion.
	Abandoned int
	// Resumed: committed rebuilds swapped in.
	Resumed int
	// Discarded: committed rebuilds whose live record was gone, marked
	// deleted and queued for deletion.
	Discarded int
	// Resubmitted: completed swaps whose deletion task was queued again.
	Resubmitted int
}

// Total is the number of intents settled.
func (r RecoveryReport) Total() int {
	return r.Unlocked + r.Abandoned + r.Resumed + r.Discarded + r.Resubmitted
}

// Recover settles clones and updates interrupted by a crash, oldest first.
// Run it at startup, before any clone or update can be in flight.
func (e *Engine) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	intents, err := loadIntents(e.db)
	if err != nil {
		return report, err
	}
	slices.SortFunc(intents, func(a, b *intent) int { return a.created.Compare(b.created) })

	for _, in := range intents {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch in.state {
		case IntentBuilding:
			if err := e.discard(ctx, in); err != nil {
				return report, err
			}
			if in.source == uuid.Nil {
				log.Printf("[Recovery] Clone into record %s never finished; discarded", in.targetNode)
				report.Abandoned++
				metrics.IntentsRecovered.WithLabelValues(string(IntentBuilding), "abandoned").Inc()
				continue
			}
			log.Printf("[Recovery] Update of %s never finished building; unlocked", in.source)
			report.Unlocked++
			metrics.IntentsRecovered.WithLabelValues(string(IntentBuilding), "unlocked").Inc()

		case IntentBuilt:
			err := e.swap(in)
			if errors.Is(err, ErrSourceGone) {
				if err := e.discard(ctx, in); err != nil {
					return report, err
				}
				report.Discarded++
				metrics.IntentsRecovered.WithLabelValues(string(IntentBuilt), "discarded").Inc()
				continue
			}
			if err != nil {
				return report, err
			}
			e.finish(ctx, in)
			log.Printf("[Recovery] Resumed swap of %s", in.source)
			report.Resumed++
			metrics.IntentsRecovered.WithLabelValues(string(IntentBuilt), "resumed").Inc()

		case IntentSwapped:
			e.finish(ctx, in)
			log.Printf("[Recovery] Queued deletion of %s again", in.transitional)
			report.Resubmitted++
			metrics.IntentsRecovered.WithLabelValues(string(IntentSwapped), "resubmitted").Inc()

		default:
			log.Printf("[Recovery] Warning: intent %s has unknown state %q, leaving it", in.id, in.state)
		}
	}

	if report.Total() > 0 {
		log.Printf("[Recovery] Settled %d intent(s): %+v", report.Total(), report)
	}
	return report, nil
}
