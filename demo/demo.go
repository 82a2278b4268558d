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

// demo for the fashiondropout library.
//
//  1. With `demo --download`: it will simply download the dataset.
//  2. With `demo --modes`: runs the dropout layer on a fixed input in
//     training and inference modes, showing the difference.
//  3. With `demo --train`: trains the dropout-regularized MLP (or the
//     logistic baseline, with --set="model=linear") on Fashion-MNIST.
//
// Hyperparameters can be overridden with --set, e.g.
// --set="mlp_dropout_2=0.3;learning_rate=0.05".
package main

import (
	"flag"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/rcastro/fashiondropout"

	_ "github.com/gomlx/gomlx/backends/xla"
)

var (
	flagTrain      = flag.Bool("train", true, "Train the model")
	flagDownload   = flag.Bool("download", false, "Download the dataset only")
	flagModes      = flag.Bool("modes", false, "Show dropout train/inference mode outputs")
	flagDataDir    = flag.String("data", "~/tmp/fashion_mnist", "Directory to cache downloaded dataset and checkpoints.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save checkpoints to, relative to --data. If empty, no checkpoints are saved.")
	flagSettings   *string
)

func init() {
	flagSettings = commandline.CreateContextSettingsFlag(fashiondropout.CreateDefaultContext(), "")
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	ctx := fashiondropout.CreateDefaultContext()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *flagSettings))

	err := exceptions.TryCatch[error](func() {
		if *flagDownload {
			must.M(fashiondropout.Download(*flagDataDir))
			klog.Infof("Data downloaded in %s", *flagDataDir)
		}
		if *flagModes {
			backend := backends.New()
			fashiondropout.PrintDropoutModes(backend, 0.0, 0.2, 0.5)
		}
		if *flagTrain {
			fashiondropout.TrainModel(ctx, *flagDataDir, *flagCheckpoint, paramsSet)
			klog.Infof("model trained in %s", *flagDataDir)
		}
		if !*flagDownload && !*flagModes && !*flagTrain {
			klog.Info("exit: usage -download, -modes and/or -train, optional -data and -checkpoint")
		}
	})
	if err != nil {
		klog.Errorf("Error:\n%+v", err)
	}
}
