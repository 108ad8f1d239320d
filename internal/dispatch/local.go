package dispatch

import (
	"context"

	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/vk/redogrid/internal/events"
	"github.com/vk/redogrid/internal/model"
)

// DispatchLocal builds targets on this host. GPU-class targets run one
// invocation each, in list order, because local GPU jobs cannot safely
// share the device. The remaining targets go to the build tool together and
// it may parallelize them as it likes. The first failure ends the call.
func (d *Dispatcher) DispatchLocal(ctx context.Context, targets []model.Target, spec model.ResourceSpec) error {
	logger := ctxlog.FromContext(ctx)

	if err := spec.Validate(len(targets)); err != nil {
		return &PreconditionError{Err: err}
	}

	partitions := make([]string, len(targets))
	for i := range targets {
		partitions[i], _ = spec.Partition.At(i)
	}
	gpu, other := d.opts.Classifier.Split(partitions)
	logger.Info("Running targets locally.", "gpu", len(gpu), "other", len(other))

	for _, i := range gpu {
		batch := []model.Target{targets[i]}
		logger.Debug("Running GPU target.", "target", string(targets[i]), "partition", partitions[i])
		d.emit(ctx, events.Event{Kind: events.LocalRun, Target: string(targets[i]), Count: 1})
		if err := d.tool.Ensure(ctx, batch); err != nil {
			return err
		}
	}

	if len(other) == 0 {
		return nil
	}
	batch := make([]model.Target, len(other))
	for j, i := range other {
		batch[j] = targets[i]
	}
	d.emit(ctx, events.Event{Kind: events.LocalRun, Targets: model.Strings(batch), Count: len(batch)})
	return d.tool.Ensure(ctx, batch)
}
