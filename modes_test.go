package fashiondropout

import (
	"os"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/xla"
)

var (
	testBackend     backends.Backend
	testBackendOnce sync.Once
)

func init() {
	if _, found := os.LookupEnv(backends.GOMLX_BACKEND); !found {
		// For testing, we use the CPU backend (and avoid GPU if not explicitly requested).
		_ = os.Setenv(backends.GOMLX_BACKEND, "xla:cpu")
	}
}

func getTestBackend() backends.Backend {
	testBackendOnce.Do(func() {
		testBackend = backends.New()
	})
	return testBackend
}

func TestDropoutDemoInput(t *testing.T) {
	input := DropoutDemoInput()
	input.Shape().AssertDims(2, 8)
	flat := tensors.CopyFlatData[float32](input)
	for i, v := range flat {
		require.Equal(t, float32(i), v)
	}
}

// TestDropoutModes checks the two behaviors of the framework dropout layer:
// identity in inference mode, stochastic masking with 1/(1-rate) rescaling
// in training mode.
func TestDropoutModes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	backend := getTestBackend()
	input := DropoutDemoInput()
	inputFlat := tensors.CopyFlatData[float32](input)

	// Inference mode: identity, whatever the rate.
	for _, rate := range []float64{0.0, 0.2, 0.5} {
		out := ApplyDropout(backend, input, rate, false)
		require.Equal(t, inputFlat, tensors.CopyFlatData[float32](out),
			"inference mode with rate %g must be the identity", rate)
	}

	// Training mode with rate 0: nothing to drop.
	out := ApplyDropout(backend, input, 0.0, true)
	require.Equal(t, inputFlat, tensors.CopyFlatData[float32](out))

	// Training mode with rate 0.5: every activation is either zeroed or
	// rescaled by 1/(1-0.5) == 2.
	outFlat := tensors.CopyFlatData[float32](ApplyDropout(backend, input, 0.5, true))
	for i, v := range outFlat {
		if v != 0 {
			require.InDelta(t, 2*inputFlat[i], v, 1e-4,
				"surviving activation %d not rescaled by 1/(1-rate)", i)
		}
	}
}
