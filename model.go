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

// This file implements the model graphs: the dropout-regularized MLP and a
// logistic-regression baseline.

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
)

const (
	// ParamHiddenNodes is the context hyperparameter with the number of nodes
	// of each of the two hidden layers of the MLP.
	ParamHiddenNodes = "mlp_hidden_nodes"

	// ParamDropout1 and ParamDropout2 are the context hyperparameters with
	// the dropout rates applied after the first and second hidden layers.
	// The layer closer to the input uses the smaller rate.
	ParamDropout1 = "mlp_dropout_1"
	ParamDropout2 = "mlp_dropout_2"
)

// LinearModelGraph builds a logistic regression model, used as a baseline.
// It returns the logits, not the predictions, which works with most losses,
// with shape `[batch_size, NumClasses]`.
// inputs: only one tensor, with shape `[batch_size, width, height, depth]`.
func LinearModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	ctx = ctx.In("model") // Create the model by default under the "/model" scope.
	batchSize := inputs[0].Shape().Dimensions[0]
	embeddings := Reshape(inputs[0], batchSize, -1)
	logits := layers.DenseWithBias(ctx, embeddings, NumClasses)
	return []*Node{logits}
}

// MLPModelGraph builds the 3-layer perceptron with a dropout layer after
// each of the two hidden ReLU layers.
//
// During training each dropout layer zeroes a random subset of the
// activations and rescales the survivors by 1/(1-rate); during evaluation
// and inference both dropout layers are no-ops. The mode switch and the
// masking are GoMLX's (see layers.DropoutStatic), nothing here checks the
// training flag directly.
//
// It returns the logits, not the predictions, with shape
// `[batch_size, NumClasses]`.
// inputs: only one tensor, with shape `[batch_size, width, height, depth]`.
func MLPModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	ctx = ctx.In("model") // Create the model by default under the "/model" scope.
	batchSize := inputs[0].Shape().Dimensions[0]

	numHiddenNodes := context.GetParamOr(ctx, ParamHiddenNodes, 256)
	dropout1 := context.GetParamOr(ctx, ParamDropout1, 0.2)
	dropout2 := context.GetParamOr(ctx, ParamDropout2, 0.5)

	layerIdx := 0
	nextCtx := func(name string) *context.Context {
		newCtx := ctx.Inf("%03d_%s", layerIdx, name)
		layerIdx++
		return newCtx
	}

	// Flatten images to a vector per example.
	x := Reshape(inputs[0], batchSize, -1)

	x = layers.DenseWithBias(nextCtx("dense"), x, numHiddenNodes)
	x = activations.Relu(x)
	x = layers.DropoutStatic(nextCtx("dropout"), x, dropout1)
	x.AssertDims(batchSize, numHiddenNodes)

	x = layers.DenseWithBias(nextCtx("dense"), x, numHiddenNodes)
	x = activations.Relu(x)
	x = layers.DropoutStatic(nextCtx("dropout"), x, dropout2)
	x.AssertDims(batchSize, numHiddenNodes)

	logits := layers.DenseWithBias(nextCtx("dense"), x, NumClasses)
	logits.AssertDims(batchSize, NumClasses)
	return []*Node{logits}
}
