package main

import (
	"os"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/rcastro/fashiondropout"
)

var muDemo sync.Mutex

func init() {
	klog.InitFlags(nil)
	if _, found := os.LookupEnv(backends.GOMLX_BACKEND); !found {
		// For testing, we use the CPU backend (and avoid GPU if not explicitly requested).
		must.M(os.Setenv(backends.GOMLX_BACKEND, "xla:cpu"))
	}
}

// TestDemo trains the model for 10 steps, not generating any checkpoints.
//
// Still it has to download the training data, and it will use the flag
// *flagDataDir (--data) as the location to store it.
//
// It is disabled for short tests.
func TestDemo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}

	// Run at most one demo training at a time:
	muDemo.Lock()
	defer muDemo.Unlock()

	ctx := fashiondropout.CreateDefaultContext()
	ctx.SetParam("train_steps", 10) // Only 10 steps.
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *flagSettings))
	fashiondropout.TrainModel(ctx, *flagDataDir, "", paramsSet)
}

// TestModes prints the dropout mode outputs; it just must not panic.
func TestModes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	backend := backends.New()
	fashiondropout.PrintDropoutModes(backend, 0.0, 0.5)
}
