package fashiondropout

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/require"
)

// modelExec compiles a model graph function with the given training mode.
func modelExec(ctx *context.Context, modelFn func(*context.Context, any, []*Node) []*Node, training bool) *context.Exec {
	return context.NewExec(getTestBackend(), ctx, func(ctx *context.Context, images *Node) *Node {
		ctx.SetTraining(images.Graph(), training)
		return modelFn(ctx, nil, []*Node{images})[0]
	})
}

// testImagesBatch returns a deterministic non-zero batch of images shaped
// `(Float32)[batchSize, Height, Width, 3]`.
func testImagesBatch(batchSize int) *tensors.Tensor {
	flat := make([]float32, batchSize*Height*Width*3)
	for i := range flat {
		flat[i] = float32(i%255) / 255.0
	}
	return tensors.FromFlatDataAndDimensions(flat, batchSize, Height, Width, 3)
}

func TestLinearModelGraph(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	ctx := CreateDefaultContext()
	exec := modelExec(ctx, LinearModelGraph, false)
	logits := exec.Call(testImagesBatch(4))[0]
	logits.Shape().AssertDims(4, NumClasses)
}

func TestMLPModelGraph(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	const batchSize = 4
	images := testImagesBatch(batchSize)

	// Inference mode: correct shape, and deterministic -- the dropout layers
	// are no-ops, so two forward passes agree exactly.
	ctx := CreateDefaultContext()
	inferenceExec := modelExec(ctx, MLPModelGraph, false)
	logits := inferenceExec.Call(images)[0]
	logits.Shape().AssertDims(batchSize, NumClasses)
	logitsAgain := inferenceExec.Call(images)[0]
	require.Equal(t,
		tensors.CopyFlatData[float32](logits),
		tensors.CopyFlatData[float32](logitsAgain),
		"inference must not be stochastic")

	// Training mode: the dropout layers mask random activations, so two
	// forward passes with the same weights and input disagree.
	trainingExec := modelExec(ctx.Reuse(), MLPModelGraph, true)
	first := tensors.CopyFlatData[float32](trainingExec.Call(images)[0])
	second := tensors.CopyFlatData[float32](trainingExec.Call(images)[0])
	require.NotEqual(t, first, second, "training mode dropout must be stochastic")
}

func TestSelectModelFn(t *testing.T) {
	ctx := CreateDefaultContext()
	modelFn, err := SelectModelFn(ctx)
	require.NoError(t, err)
	require.NotNil(t, modelFn)

	ctx.SetParam("model", "linear")
	modelFn, err = SelectModelFn(ctx)
	require.NoError(t, err)
	require.NotNil(t, modelFn)

	ctx.SetParam("model", "resnet")
	_, err = SelectModelFn(ctx)
	require.Error(t, err)
}
