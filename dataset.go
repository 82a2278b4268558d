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

// Package fashiondropout trains a small multi-layer perceptron with dropout
// regularization on the Fashion-MNIST dataset, delegating all the numerics
// (graph building, autodiff, layers, optimizer) to GoMLX.
//
// This file holds the Fashion-MNIST dataset: download, parsing of the IDX
// files and a train.Dataset implementation with shuffling and batching.
// Fashion-MNIST uses the exact same file format as the original MNIST,
// only the contents (and the class names) differ.
package fashiondropout

import (
	"compress/gzip"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math/rand"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	timage "github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

const (
	downloadURL         = "https://storage.googleapis.com/tensorflow/tf-keras-datasets"
	trainImagesFilename = "train-images-idx3-ubyte.gz"
	trainLabelsFilename = "train-labels-idx1-ubyte.gz"
	testImagesFilename  = "t10k-images-idx3-ubyte.gz"
	testLabelsFilename  = "t10k-labels-idx1-ubyte.gz"

	// Width and Height of the Fashion-MNIST images.
	Width  = 28
	Height = 28

	// NumClasses of Fashion-MNIST: one per type of clothing article.
	NumClasses = 10

	trainExamples = 60000
	testExamples  = 10000

	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// Classes names the Fashion-MNIST labels, indexed by the label value.
var Classes = [NumClasses]string{
	"t-shirt/top", "trouser", "pullover", "dress", "coat",
	"sandal", "shirt", "sneaker", "bag", "ankle boot"}

// ClassName returns the human-readable name of a label.
// It returns "?" for values outside the valid range.
func ClassName(label Label) string {
	if label < 0 || label >= NumClasses {
		return "?"
	}
	return Classes[label]
}

type fileType int

const (
	imageFileType fileType = iota
	labelFileType
)

var datasetFiles = map[string][2]string{
	"train": {trainImagesFilename, trainLabelsFilename},
	"test":  {testImagesFilename, testLabelsFilename},
}

// NumExamplesInSplit returns the number of examples the official "train" or
// "test" split files carry, or 0 for an unknown split.
func NumExamplesInSplit(mode string) int {
	switch mode {
	case "train":
		return trainExamples
	case "test":
		return testExamples
	}
	return 0
}

// Image represents a Fashion-MNIST image, an array of bytes with the gray
// level of each pixel: 0 is black (the background) and 255 is white.
type Image [Width * Height]byte

// Label of the clothing article, from 0 to 9. See Classes for their names.
type Label = int8

type imageFileHeader struct {
	Magic     int32
	NumImages int32
	Height    int32
	Width     int32
}

type labelFileHeader struct {
	Magic     int32
	NumLabels int32
}

// ColorModel implements the image.Image interface.
func (img Image) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds implements the image.Image interface.
func (img Image) Bounds() image.Rectangle {
	return image.Rectangle{
		Min: image.Point{0, 0},
		Max: image.Point{Width, Height},
	}
}

// At implements the image.Image interface.
func (img Image) At(x, y int) color.Color {
	return color.Gray{Y: img[y*Width+x]}
}

// Set modifies the pixel at (x,y).
func (img *Image) Set(x, y int, v byte) {
	img[y*Width+x] = v
}

// Download the Fashion-MNIST dataset files to baseDir, if not yet there.
func Download(baseDir string) error {
	baseDir = data.ReplaceTildeInDir(baseDir)
	files := []string{trainImagesFilename, trainLabelsFilename, testImagesFilename, testLabelsFilename}
	for _, file := range files {
		downloadURLFile, _ := url.JoinPath(downloadURL, file)
		filePath := path.Join(baseDir, file)
		if err := data.DownloadIfMissing(downloadURLFile, filePath, ""); err != nil {
			return errors.WithMessagef(err, "failed to download %q", file)
		}
	}
	return nil
}

var (
	AssertDatasetIsTrainDataset *Dataset
	_                           train.Dataset = AssertDatasetIsTrainDataset

	AssertImageIsImageImage *Image
	_                       image.Image = AssertImageIsImageImage
)

// Dataset implements train.Dataset so it can be used by a train.Loop object
// to train/evaluate, and offers a few more functionality for sampling images
// (as opposed to tensors).
type Dataset struct {
	name       string
	baseDir    string
	imagesFile string
	labelsFile string

	toTensor *timage.ToTensorConfig
	dtype    dtypes.DType

	batchSize int
	shuffle   *rand.Rand
	indices   []int
	position  int

	muYield sync.Mutex

	images []image.Image
	labels []Label
}

// NewDataset creates a train.Dataset that yields batches of Fashion-MNIST
// images and their labels.
//
// It takes the following arguments:
//
//   - name: used on error and evaluation reports.
//   - baseDir: where the dataset files were downloaded to -- see Download.
//   - mode: choose between 'train' and 'test'.
//   - batchSize: images per yielded batch.
//   - shuffle: if non-nil, batches are sampled in random order and the
//     dataset loops indefinitely. If nil, it yields one epoch in file order.
//   - dtype: dtype of the images tensor, usually dtypes.Float32.
func NewDataset(name, baseDir, mode string, batchSize int, shuffle *rand.Rand, dtype dtypes.DType) (ds *Dataset, err error) {
	files, ok := datasetFiles[mode]
	if !ok {
		return nil, errors.Errorf("unknown mode %q for dataset %q: valid values are 'train' or 'test'", mode, name)
	}
	ds = &Dataset{
		name:       name,
		baseDir:    baseDir,
		imagesFile: files[imageFileType],
		labelsFile: files[labelFileType],
		toTensor:   timage.ToTensor(dtype),
		dtype:      dtype,
		batchSize:  batchSize,
		shuffle:    shuffle,
		position:   0,
	}
	ds.images, err = loadImageFile(path.Join(baseDir, ds.imagesFile))
	if err != nil {
		return nil, err
	}
	ds.labels, err = loadLabelFile(path.Join(baseDir, ds.labelsFile))
	if err != nil {
		return nil, err
	}
	if len(ds.images) != len(ds.labels) {
		return nil, errors.Errorf("dataset %q: %d images but %d labels", name, len(ds.images), len(ds.labels))
	}
	ds.resetIndices()
	return ds, nil
}

// NumExamples in the dataset.
func (ds *Dataset) NumExamples() int { return len(ds.images) }

// Sample returns the image and label of the given example, for display.
func (ds *Dataset) Sample(idx int) (image.Image, Label) {
	return ds.images[idx], ds.labels[idx]
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

func (ds *Dataset) resetIndices() {
	if ds.shuffle != nil {
		ds.indices = ds.shuffle.Perm(len(ds.images))
		return
	}
	ds.indices = ds.indices[:0]
	for i := range len(ds.images) {
		ds.indices = append(ds.indices, i)
	}
}

// Yield implements train.Dataset. It returns:
//
//   - spec: not used, left as nil.
//   - inputs: one tensor, the images batch shaped
//     `[batch_size, height, width, 3]` with the configured dtype (the gray
//     level is replicated over the 3 channels).
//   - labels: one tensor shaped `[batch_size, 1]` of Int8, as expected by
//     the sparse categorical loss and metrics.
//
// If the dataset is not shuffling, it returns io.EOF at the end of the
// epoch; with shuffling it reshuffles and loops forever.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	ds.muYield.Lock()
	defer ds.muYield.Unlock()

	if ds.position >= len(ds.indices) {
		ds.position = 0
		if ds.shuffle == nil {
			return nil, nil, nil, io.EOF
		}
		ds.resetIndices()
	}

	idxStart := ds.position
	ds.position += ds.batchSize
	idxEnd := ds.position
	if idxEnd > len(ds.indices) {
		idxEnd = len(ds.indices)
	}
	batch := ds.indices[idxStart:idxEnd]

	batchLabels := make([]Label, 0, len(batch))
	for _, exampleIdx := range batch {
		batchLabels = append(batchLabels, ds.labels[exampleIdx])
	}
	return nil,
		[]*tensors.Tensor{ds.toTensor.Batch(Select(ds.images, batch))},
		[]*tensors.Tensor{tensors.FromFlatDataAndDimensions(batchLabels, len(batchLabels), 1)},
		nil
}

// IsOwnershipTransferred tells the training loop that the dataset keeps
// ownership of the yielded tensors.
func (ds *Dataset) IsOwnershipTransferred() bool {
	return false
}

// Reset implements train.Dataset, restarting the dataset from scratch.
func (ds *Dataset) Reset() {
	ds.muYield.Lock()
	defer ds.muYield.Unlock()
	ds.position = 0
	ds.resetIndices()
}

// loadImageFile opens a gzipped IDX image file, parses it, and returns the
// images in file order.
func loadImageFile(filename string) ([]image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "os.Open")
	}
	defer f.Close()

	reader, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "gzip.NewReader")
	}
	defer reader.Close()

	header := imageFileHeader{}
	if err = binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "reading image file header")
	}
	if header.Magic != imageMagic || header.Width != Width || header.Height != Height {
		return nil, errors.Errorf("%q is not a valid %dx%d IDX image file", filename, Width, Height)
	}

	images := make([]image.Image, header.NumImages)
	for i := int32(0); i < header.NumImages; i++ {
		var img Image
		if err := binary.Read(reader, binary.BigEndian, &img); err != nil {
			return nil, errors.Wrapf(err, "reading image %d of %d", i, header.NumImages)
		}
		images[i] = img
	}
	return images, nil
}

// loadLabelFile opens a gzipped IDX label file, parses it, and returns the
// labels in file order.
func loadLabelFile(filename string) ([]Label, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "os.Open")
	}
	defer f.Close()

	reader, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "gzip.NewReader")
	}
	defer reader.Close()

	header := labelFileHeader{}
	if err = binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "reading label file header")
	}
	if header.Magic != labelMagic {
		return nil, errors.Errorf("%q is not a valid IDX label file", filename)
	}

	labels := make([]Label, header.NumLabels)
	for i := int32(0); i < header.NumLabels; i++ {
		if err = binary.Read(reader, binary.BigEndian, &labels[i]); err != nil {
			return nil, errors.Wrapf(err, "reading label %d of %d", i, header.NumLabels)
		}
	}
	return labels, nil
}

// DatasetsConfiguration holds the batching parameters for CreateDatasets.
type DatasetsConfiguration struct {
	// DataDir, where downloaded dataset files are stored.
	DataDir string

	// BatchSize for training and evaluation batches.
	BatchSize, EvalBatchSize int

	// UseParallelism wraps the datasets with data.CustomParallel, so batch
	// tensors are prepared in parallel.
	UseParallelism bool

	// BufferSize used for data.ParallelDataset, to cache intermediary
	// batches. This value is used for each dataset.
	BufferSize int

	// Dtype of the images tensors.
	Dtype dtypes.DType
}

// CreateDatasets used for training and evaluation: an infinite shuffled
// training dataset, plus one-epoch evaluation datasets over the train and
// test splits.
func CreateDatasets(config *DatasetsConfiguration) (trainDS, trainEvalDS, testEvalDS train.Dataset) {
	shuffle := rand.New(rand.NewSource(time.Now().UTC().UnixNano()))

	var err error
	trainDS, err = NewDataset("train", config.DataDir, "train", config.BatchSize, shuffle, config.Dtype)
	if err != nil {
		exceptions.Panicf("NewDataset: %v", err)
	}
	trainEvalDS, err = NewDataset("train-eval", config.DataDir, "train", config.EvalBatchSize, nil, config.Dtype)
	if err != nil {
		exceptions.Panicf("NewDataset: %v", err)
	}
	testEvalDS, err = NewDataset("test-eval", config.DataDir, "test", config.EvalBatchSize, nil, config.Dtype)
	if err != nil {
		exceptions.Panicf("NewDataset: %v", err)
	}

	// Read batch tensors in parallel:
	if config.UseParallelism {
		trainDS = data.CustomParallel(trainDS).Buffer(config.BufferSize).Start()
		trainEvalDS = data.CustomParallel(trainEvalDS).Buffer(config.BufferSize).Start()
		testEvalDS = data.CustomParallel(testEvalDS).Buffer(config.BufferSize).Start()
	}
	return
}

// Select returns the items at the given indices, dropping out-of-range ones.
func Select[T any, I constraints.Integer](items []T, idx []I) []T {
	selItems := make([]T, 0, len(idx))
	nItems := len(items)
	for _, i := range idx {
		if i < I(nItems) {
			selItems = append(selItems, items[i])
		}
	}
	return selItems
}
