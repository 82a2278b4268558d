/*
 *	Copyright 2025 Rener Castro
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package fashiondropout

// This file implements the training entry point: default hyperparameters,
// trainer and loop setup, checkpointing and the final evaluation report.

import (
	"fmt"
	"os"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// ParamsExcludedFromSaving is the list of hyperparameters that shouldn't be
// saved along the model checkpoints, and may be overwritten in further
// training sessions.
var ParamsExcludedFromSaving = []string{
	"data_dir", "train_steps", "num_checkpoints",
}

// Models maps the value of the "model" hyperparameter to the function that
// builds the corresponding model graph.
var Models = map[string]train.ModelFn{
	"linear": LinearModelGraph,
	"mlp":    MLPModelGraph,
}

// Backend is created once and reused if TrainModel is called multiple times.
var Backend backends.Backend

// CreateDefaultContext creates a context.Context set with the default
// hyperparameters to use with TrainModel.
//
// The defaults are the classic dropout exercise: two hidden layers of 256
// nodes with dropout rates 0.2 and 0.5, plain SGD, and enough steps to
// cover ~10 epochs of the training split at the default batch size.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		// Model type to use: "mlp" (with dropout) or "linear" baseline.
		"model":           "mlp",
		"num_checkpoints": 3,
		"train_steps":     2350,

		// batch_size for training.
		"batch_size": 256,

		// eval_batch_size can be larger than training, it's more efficient.
		"eval_batch_size": 1000,

		// MLP topology and dropout rates.
		ParamHiddenNodes: 256,
		ParamDropout1:    0.2,
		ParamDropout2:    0.5,

		optimizers.ParamOptimizer:       "sgd",
		optimizers.ParamLearningRate:    0.1,
		cosineschedule.ParamPeriodSteps: 0,
	})
	return ctx
}

// SelectModelFn returns the model graph function selected by the "model"
// hyperparameter.
func SelectModelFn(ctx *context.Context) (train.ModelFn, error) {
	model := context.GetParamOr(ctx, "model", "mlp")
	modelFn, ok := Models[model]
	if !ok {
		return nil, errors.Errorf("unknown model %q: valid values are 'mlp' or 'linear'", model)
	}
	return modelFn, nil
}

// NewDatasetsConfigurationFromContext creates a dataset configuration based
// on hyperparameters set in the context.
func NewDatasetsConfigurationFromContext(ctx *context.Context, dataDir string) *DatasetsConfiguration {
	config := &DatasetsConfiguration{}
	config.DataDir = data.ReplaceTildeInDir(dataDir)
	config.BatchSize = context.GetParamOr(ctx, "batch_size", 0)
	config.EvalBatchSize = context.GetParamOr(ctx, "eval_batch_size", 0)
	config.UseParallelism = true
	config.BufferSize = 100
	config.Dtype = dtypes.Float32
	return config
}

// TrainModel with hyperparameters given in ctx -- see CreateDefaultContext
// for defaults.
//
// It downloads the dataset if needed, trains for the remaining of
// "train_steps" steps reporting loss and accuracy on a progress bar, and
// prints a final evaluation on the train and test splits.
//
// If checkpointPath is not empty, the model (and its hyperparameters,
// except those listed in paramsSet and ParamsExcludedFromSaving) is
// checkpointed there, and training resumes from the checkpointed global
// step if one exists.
func TrainModel(ctx *context.Context, dataDir, checkpointPath string, paramsSet []string) {
	dataDir = data.ReplaceTildeInDir(dataDir)
	if !data.FileExists(dataDir) {
		must.M(os.MkdirAll(dataDir, 0777))
	}
	must.M(Download(dataDir))

	// Backend handles creation of ML computation graphs, accelerator
	// resources, etc.
	if Backend == nil {
		Backend = backends.New()
	}

	modelFn := must.M1(SelectModelFn(ctx))
	dsConfig := NewDatasetsConfigurationFromContext(ctx, dataDir)
	trainDS, trainEvalDS, testEvalDS := CreateDatasets(dsConfig)

	// Metrics we are interested.
	meanAccuracyMetric := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)

	// Create a train.Trainer: this object will orchestrate running the model,
	// feeding results to the optimizer, evaluating the metrics, etc.
	// (all happens in trainer.TrainStep)
	optimizer := optimizers.FromContext(ctx)
	trainer := train.NewTrainer(Backend, ctx,
		modelFn,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizer,
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics

	// Use standard training loop.
	loop := train.NewLoop(trainer)
	commandline.AttachProgressBar(loop) // Attaches a progress bar to the loop.

	// Checkpoints saving.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			DirFromBase(checkpointPath, dataDir).
			Keep(numCheckpointsToKeep).
			ExcludeParams(append(paramsSet, ParamsExcludedFromSaving...)...).
			Done())
		fmt.Printf("Checkpointing model to %q\n", checkpoint.Dir())
	}

	// Loop for given number of steps, resuming from the checkpointed global
	// step if any.
	numTrainSteps := context.GetParamOr(ctx, "train_steps", 0)
	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
	}
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunSteps(trainDS, numTrainSteps-globalStep))
		fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
			loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
	} else {
		fmt.Printf("\t - target train_steps=%d already reached. To train further, set a number additional "+
			"to current global step.\n", numTrainSteps)
	}

	// Finally, print an evaluation on train and test datasets.
	fmt.Println()
	must.M(commandline.ReportEval(trainer, trainEvalDS, testEvalDS))
	fmt.Println()
}
