// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// eulerGamma is the Euler-Mascheroni constant used by the harmonic number
// approximation.
const eulerGamma = 0.5772156649

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	seed          int64
	workers       int

	// Trained model
	trees      []iTree
	trained    bool
	nFeatures  int
	psi        int // effective subsample size
	maxDepth   int
	normalizer float64
	threshold  float64
}

// iTree is a single isolation tree stored as an arena. Nodes[0] is the root.
type iTree struct {
	Nodes []node
}

// node is a node in the isolation tree. Internal nodes have Left >= 0.
type node struct {
	// Split parameters (for internal nodes)
	Feature int
	Split   float64

	// Children, as indices into the arena
	Left  int32
	Right int32

	// Leaf information
	Size       int
	Depth      int
	PathLength float64 // Depth + c(Size)
}

func (n *node) isLeaf() bool {
	return n.Left < 0
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithWorkers bounds the goroutines used to build trees and score samples.
// Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *IsolationForest) {
		f.workers = n
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) (*IsolationForest, error) {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		seed:          42,
	}

	for _, opt := range opts {
		opt(f)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *IsolationForest) validate() error {
	if f.nTrees <= 0 {
		return fmt.Errorf("%w: num_trees must be positive, got %d", detectors.ErrInvalidConfig, f.nTrees)
	}
	if f.sampleSize <= 0 {
		return fmt.Errorf("%w: subsample_size must be positive, got %d", detectors.ErrInvalidConfig, f.sampleSize)
	}
	if !(f.contamination > 0 && f.contamination < 1) {
		return fmt.Errorf("%w: contamination must be in (0, 1), got %v", detectors.ErrInvalidConfig, f.contamination)
	}
	if f.workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", detectors.ErrInvalidConfig, f.workers)
	}
	return nil
}

func (f *IsolationForest) workerCount() int {
	if f.workers > 0 {
		return f.workers
	}
	return runtime.GOMAXPROCS(0)
}

// Fit trains the Isolation Forest on the provided data.
//
// Every tree gets its own random source seeded from the forest seed in tree
// order, so the fitted model does not depend on the number of workers.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return detectors.ErrEmptyData
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return fmt.Errorf("%w: samples have no features", detectors.ErrEmptyData)
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	psi := f.sampleSize
	if psi > nSamples {
		psi = nSamples
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	rng := rand.New(rand.NewSource(f.seed))
	seeds := make([]int64, f.nTrees)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	trees := make([]iTree, f.nTrees)
	var g errgroup.Group
	g.SetLimit(f.workerCount())
	for i := range trees {
		i := i
		g.Go(func() error {
			b := &builder{
				rng:       rand.New(rand.NewSource(seeds[i])),
				data:      data,
				nFeatures: nFeatures,
				maxDepth:  maxDepth,
			}
			trees[i] = b.build(nSamples, psi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = nFeatures
	f.psi = psi
	f.maxDepth = maxDepth
	f.normalizer = averagePathLength(float64(psi))
	if f.normalizer == 0 {
		// A single-sample forest isolates nothing; every path is 0.
		f.normalizer = 1
	}
	f.threshold = 0
	f.trained = true

	return nil
}

// builder grows one isolation tree from a subsample.
type builder struct {
	rng       *rand.Rand
	data      [][]float64
	nFeatures int
	maxDepth  int
	nodes     []node
}

func (b *builder) build(nSamples, psi int) iTree {
	// Sample without replacement
	idx := b.rng.Perm(nSamples)[:psi]
	b.nodes = make([]node, 0, 2*psi)
	b.grow(idx, 0)
	return iTree{Nodes: b.nodes}
}

func (b *builder) grow(idx []int, depth int) int32 {
	pos := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{Left: -1, Right: -1})

	n := len(idx)

	// Terminal conditions
	if depth >= b.maxDepth || n <= 1 {
		b.leaf(pos, n, depth)
		return pos
	}

	// Random feature and split value
	feature := b.rng.Intn(b.nFeatures)

	minVal, maxVal := b.data[idx[0]][feature], b.data[idx[0]][feature]
	for _, i := range idx[1:] {
		v := b.data[i][feature]
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		b.leaf(pos, n, depth)
		return pos
	}

	splitValue := minVal + b.rng.Float64()*(maxVal-minVal)

	// Partition in place: [0, k) goes left, [k, n) goes right
	k := 0
	for j, i := range idx {
		if b.data[i][feature] < splitValue {
			idx[k], idx[j] = idx[j], idx[k]
			k++
		}
	}

	left := b.grow(idx[:k], depth+1)
	right := b.grow(idx[k:], depth+1)

	b.nodes[pos] = node{
		Feature: feature,
		Split:   splitValue,
		Left:    left,
		Right:   right,
		Size:    n,
		Depth:   depth,
	}
	return pos
}

func (b *builder) leaf(pos int32, size, depth int) {
	b.nodes[pos] = node{
		Left:       -1,
		Right:      -1,
		Size:       size,
		Depth:      depth,
		PathLength: float64(depth) + averagePathLength(float64(size)),
	}
}

// pathLength follows the sample down the tree and returns the leaf's path
// length including its size correction.
func (t *iTree) pathLength(sample []float64) float64 {
	n := &t.Nodes[0]
	for !n.isLeaf() {
		if sample[n.Feature] < n.Split {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.PathLength
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ≈ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrNotTrained
	}

	return f.predict(data)
}

func (f *IsolationForest) predict(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))
	if len(data) == 0 {
		return scores, nil
	}

	workers := f.workerCount()
	chunk := (len(data) + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < len(data); start += chunk {
		start, end := start, min(start+chunk, len(data))
		g.Go(func() error {
			for i := start; i < end; i++ {
				score, err := f.predictOne(data[i])
				if err != nil {
					return fmt.Errorf("sample %d: %w", i, err)
				}
				scores[i] = score
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return scores, nil
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, detectors.ErrNotTrained
	}

	return f.predictOne(sample)
}

func (f *IsolationForest) predictOne(sample []float64) (float64, error) {
	if len(sample) != f.nFeatures {
		return 0, fmt.Errorf("sample has %d features, model expects %d", len(sample), f.nFeatures)
	}

	// Average path length across all trees
	var totalPath float64
	for i := range f.trees {
		totalPath += f.trees[i].pathLength(sample)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(psi))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.normalizer), nil
}

// Label flags the round(contamination * N) highest scores of the batch.
// Ties are broken in favour of the earlier sample.
func (f *IsolationForest) Label(scores []float64) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	flags := make([]bool, len(scores))
	k := int(math.Round(f.contamination * float64(len(scores))))
	if k == 0 {
		f.threshold = math.Inf(1)
		return flags
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	for _, i := range order[:k] {
		flags[i] = true
	}
	f.threshold = scores[order[k-1]]

	return flags
}

// Classify scores a batch against the fitted forest and labels it.
func (f *IsolationForest) Classify(data [][]float64) ([]detectors.Result, error) {
	scores, err := f.Predict(data)
	if err != nil {
		return nil, err
	}

	flags := f.Label(scores)
	results := make([]detectors.Result, len(scores))
	for i, score := range scores {
		label := traffic.Benign
		if flags[i] {
			label = traffic.Malicious
		}
		results[i] = detectors.Result{
			RecordID:  i,
			Predicted: label,
			Detector:  detectors.NameOutlier,
			Score:     score,
		}
	}

	return results, nil
}

// Detect fits the forest on the batch and classifies the same batch.
// An empty batch yields no results.
func (f *IsolationForest) Detect(data [][]float64) ([]detectors.Result, error) {
	if len(data) == 0 {
		return []detectors.Result{}, nil
	}
	if err := f.Fit(data); err != nil {
		return nil, err
	}
	return f.Classify(data)
}

// snapshot is the gob encoded form of a trained forest.
type snapshot struct {
	NTrees        int
	SampleSize    int
	Contamination float64
	Seed          int64
	NFeatures     int
	PSI           int
	MaxDepth      int
	Normalizer    float64
	Threshold     float64
	Trees         []iTree
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrNotTrained
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		NTrees:        f.nTrees,
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		Seed:          f.seed,
		NFeatures:     f.nFeatures,
		PSI:           f.psi,
		MaxDepth:      f.maxDepth,
		Normalizer:    f.normalizer,
		Threshold:     f.threshold,
		Trees:         f.trees,
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if len(s.Trees) == 0 || s.Normalizer == 0 {
		return fmt.Errorf("decode model: %w", detectors.ErrNotTrained)
	}

	restored := &IsolationForest{
		nTrees:        s.NTrees,
		sampleSize:    s.SampleSize,
		contamination: s.Contamination,
	}
	if err := restored.validate(); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if s.NFeatures <= 0 {
		return fmt.Errorf("decode model: %w: model has %d features", detectors.ErrInvalidConfig, s.NFeatures)
	}
	if len(s.Trees) != s.NTrees {
		return fmt.Errorf("decode model: %w: %d trees, want %d", detectors.ErrInvalidConfig, len(s.Trees), s.NTrees)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = s.NTrees
	f.sampleSize = s.SampleSize
	f.contamination = s.Contamination
	f.seed = s.Seed
	f.nFeatures = s.NFeatures
	f.psi = s.PSI
	f.maxDepth = s.MaxDepth
	f.normalizer = s.Normalizer
	f.threshold = s.Threshold
	f.trees = s.Trees
	f.trained = true

	return nil
}

// Threshold returns the lowest score flagged by the last Label call.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SampleSize returns the subsample size used by the last Fit.
func (f *IsolationForest) SampleSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.psi
}

// MaxDepth returns the depth limit used by the last Fit.
func (f *IsolationForest) MaxDepth() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.maxDepth
}
