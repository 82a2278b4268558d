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

// This file demonstrates the two behaviors of the dropout layer: stochastic
// masking (plus 1/(1-rate) rescaling of the survivors) when the graph is in
// training mode, and identity when it is not. Both behaviors live in GoMLX;
// this only toggles the training flag and runs the layer on a fixed input.

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/types/tensors"
)

// DropoutDemoInput returns the fixed input used by the dropout mode demo: a
// ramp of the values 0 to 15, shaped `(Float32)[2, 8]`. The distinct values
// make it easy to see which activations were zeroed and how the survivors
// were rescaled.
func DropoutDemoInput() *tensors.Tensor {
	flat := make([]float32, 16)
	for i := range flat {
		flat[i] = float32(i)
	}
	return tensors.FromFlatDataAndDimensions(flat, 2, 8)
}

// ApplyDropout runs the framework's dropout layer over input with the given
// rate, with the graph set to the given mode. With training=false the layer
// is an identity, whatever the rate.
func ApplyDropout(backend backends.Backend, input *tensors.Tensor, rate float64, training bool) *tensors.Tensor {
	ctx := context.New()
	ctx.RngStateReset()
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		ctx.SetTraining(x.Graph(), training)
		return layers.DropoutStatic(ctx, x, rate)
	})
	return exec.Call(input)[0]
}

// PrintDropoutModes prints the output of the dropout layer over
// DropoutDemoInput for each of the given rates, in training and in
// inference mode.
func PrintDropoutModes(backend backends.Backend, rates ...float64) {
	input := DropoutDemoInput()
	fmt.Printf("input:\n%v\n", input)
	for _, rate := range rates {
		fmt.Printf("\ndropout rate %g:\n", rate)
		fmt.Printf("  training mode (random mask, survivors scaled by 1/%g):\n%v\n",
			1.0-rate, ApplyDropout(backend, input, rate, true))
		fmt.Printf("  inference mode (identity):\n%v\n",
			ApplyDropout(backend, input, rate, false))
	}
}
