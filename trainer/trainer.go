// Package trainer drives the epoch state machine: a training phase of
// gradient steps over shuffled batches, a validation phase of no-gradient
// evaluation passes, and an epoch-end summary appended to the run's History.
package trainer

import (
	"fmt"
	"io"
	"log"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/schollz/progressbar/v3"

	"brainseg/dice"
)

// EpochStats are the scalar metrics recorded at the end of one epoch: mean
// training loss, mean validation loss, and mean validation Dice score.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	ValDice   float64
}

// History is the append-only record of per-epoch metrics. It grows by one
// entry per completed epoch and is never rewritten.
type History []EpochStats

// StepRunner is the minimal interface the loop needs from a gomlx
// train.Trainer: a gradient step that mutates parameters once per batch and
// an evaluation step that computes metrics without touching parameters or
// gradients. Both return the batch metrics with the loss first.
type StepRunner interface {
	TrainStep(spec any, inputs, labels []*tensors.Tensor) ([]*tensors.Tensor, error)
	EvalStep(spec any, inputs, labels []*tensors.Tensor) ([]*tensors.Tensor, error)
}

// panicStepper is the step surface of a gomlx *train.Trainer, which reports
// step failures by panicking rather than returning an error.
type panicStepper interface {
	TrainStep(spec any, inputs, labels []*tensors.Tensor) []*tensors.Tensor
	EvalStep(spec any, inputs, labels []*tensors.Tensor) []*tensors.Tensor
}

var _ panicStepper = (*train.Trainer)(nil)

// TrainerRunner adapts a gomlx *train.Trainer to the error-returning
// StepRunner contract, converting step panics into errors so the loop can
// abort the run cleanly.
type TrainerRunner struct {
	steps panicStepper
}

var _ StepRunner = (*TrainerRunner)(nil)

// NewTrainerRunner wraps t as a StepRunner.
func NewTrainerRunner(t *train.Trainer) *TrainerRunner {
	return &TrainerRunner{steps: t}
}

// TrainStep runs one gradient step and returns its metrics.
func (r *TrainerRunner) TrainStep(spec any, inputs, labels []*tensors.Tensor) (metrics []*tensors.Tensor, err error) {
	defer recoverStepError("train step", &err)
	return r.steps.TrainStep(spec, inputs, labels), nil
}

// EvalStep runs one evaluation step and returns its metrics.
func (r *TrainerRunner) EvalStep(spec any, inputs, labels []*tensors.Tensor) (metrics []*tensors.Tensor, err error) {
	defer recoverStepError("eval step", &err)
	return r.steps.EvalStep(spec, inputs, labels), nil
}

// recoverStepError is deferred around a step call to turn its panic, if
// any, into the caller's returned error.
func recoverStepError(phase string, err *error) {
	switch r := recover().(type) {
	case nil:
	case error:
		*err = fmt.Errorf("%s: %w", phase, r)
	default:
		*err = fmt.Errorf("%s: %v", phase, r)
	}
}

// Predictor is the fixed-parameter forward pass used to compute the
// validation Dice score from raw logits.
type Predictor interface {
	Predict(images *tensors.Tensor) (*tensors.Tensor, error)
}

// Loop alternates training and validation phases over a configured number of
// epochs. A failure inside any phase aborts the run; there is no
// checkpointing, early stopping, or retry.
type Loop struct {
	Runner StepRunner
	Pred   Predictor

	// Train shuffles every epoch; Val preserves its original order.
	Train train.Dataset
	Val   train.Dataset

	Epochs int

	// Progress enables per-phase progress bars on stderr.
	Progress bool

	// History accumulates one entry per completed epoch.
	History History

	// TrainBatches and ValBatches count the batches processed in the most
	// recent epoch of each phase.
	TrainBatches int
	ValBatches   int
}

// NewLoop assembles a Loop over the given runner, predictor and datasets.
func NewLoop(runner StepRunner, pred Predictor, trainDS, valDS train.Dataset, epochs int) (*Loop, error) {
	if runner == nil {
		return nil, fmt.Errorf("step runner is nil")
	}
	if pred == nil {
		return nil, fmt.Errorf("predictor is nil")
	}
	if trainDS == nil || valDS == nil {
		return nil, fmt.Errorf("both training and validation datasets are required")
	}
	if epochs <= 0 {
		return nil, fmt.Errorf("epoch count %d must be positive", epochs)
	}
	return &Loop{Runner: runner, Pred: pred, Train: trainDS, Val: valDS, Epochs: epochs}, nil
}

// Run executes the configured number of epochs and returns the accumulated
// History. The returned History has exactly one entry per completed epoch.
func (l *Loop) Run() (History, error) {
	for epoch := 1; epoch <= l.Epochs; epoch++ {
		trainLoss, err := l.trainPhase(epoch)
		if err != nil {
			return l.History, fmt.Errorf("epoch %d training phase: %w", epoch, err)
		}

		valLoss, valDice, err := l.validationPhase(epoch)
		if err != nil {
			return l.History, fmt.Errorf("epoch %d validation phase: %w", epoch, err)
		}

		stats := EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, ValDice: valDice}
		l.History = append(l.History, stats)
		log.Printf("epoch %d/%d: train loss %.4f, val loss %.4f, val dice %.4f",
			epoch, l.Epochs, stats.TrainLoss, stats.ValLoss, stats.ValDice)
	}
	return l.History, nil
}

// trainPhase runs one pass of gradient steps over the training dataset and
// returns the mean batch loss.
func (l *Loop) trainPhase(epoch int) (float64, error) {
	l.Train.Reset()
	bar := l.newBar(epoch, "train")

	var lossSum float64
	batches := 0
	for {
		spec, inputs, labels, err := l.Train.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		metrics, err := l.Runner.TrainStep(spec, inputs, labels)
		if err != nil {
			return 0, err
		}
		loss, err := scalarValue(metrics[0])
		if err != nil {
			return 0, err
		}
		lossSum += loss
		batches++
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	l.TrainBatches = batches
	if batches == 0 {
		return 0, fmt.Errorf("training split yielded zero batches")
	}
	return lossSum / float64(batches), nil
}

// validationPhase runs one no-gradient pass over the validation dataset and
// returns the mean batch loss and mean batch Dice score.
func (l *Loop) validationPhase(epoch int) (loss, score float64, err error) {
	l.Val.Reset()
	bar := l.newBar(epoch, "validate")

	var lossSum, diceSum float64
	batches := 0
	for {
		spec, inputs, labels, yieldErr := l.Val.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			return 0, 0, yieldErr
		}
		metrics, stepErr := l.Runner.EvalStep(spec, inputs, labels)
		if stepErr != nil {
			return 0, 0, stepErr
		}
		batchLoss, convErr := scalarValue(metrics[0])
		if convErr != nil {
			return 0, 0, convErr
		}
		lossSum += batchLoss

		logits, predErr := l.Pred.Predict(inputs[0])
		if predErr != nil {
			return 0, 0, predErr
		}
		batchDice, diceErr := dice.Score(logits, labels[0])
		if diceErr != nil {
			return 0, 0, diceErr
		}
		diceSum += batchDice
		batches++
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	l.ValBatches = batches
	if batches == 0 {
		return 0, 0, fmt.Errorf("validation split yielded zero batches")
	}
	return lossSum / float64(batches), diceSum / float64(batches), nil
}

func (l *Loop) newBar(epoch int, phase string) *progressbar.ProgressBar {
	if !l.Progress {
		return nil
	}
	return progressbar.Default(-1, fmt.Sprintf("epoch %d %s", epoch, phase))
}

// scalarValue reads a scalar metric tensor as float64.
func scalarValue(t *tensors.Tensor) (float64, error) {
	switch t.Shape().DType {
	case dtypes.Float32:
		return float64(tensors.ToScalar[float32](t)), nil
	case dtypes.Float64:
		return tensors.ToScalar[float64](t), nil
	default:
		return 0, fmt.Errorf("metric tensor has unsupported dtype %s", t.Shape().DType)
	}
}
