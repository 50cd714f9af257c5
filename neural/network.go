package neural

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrTopology  = errors.New("network needs at least two positive layer widths")
	ErrShape     = errors.New("vector length does not match layer width")
	ErrNonFinite = errors.New("non-finite value")
)

// MaxParam bounds every weight and bias; an update crossing it is treated as divergence.
const MaxParam = 1e6

// Layer is a dense layer: Weights has one row per input unit and one column per output unit.
type Layer struct {
	Weights *mat.Dense
	Biases  *mat.VecDense
}

// Network is a small fully-connected feed-forward approximator with ReLU hidden
// layers and a linear output layer.
//
// Its update rule is not backpropagation: the output layer receives the exact per-unit
// gradient, while every earlier layer receives one shared signal, the mean of the
// output gradient, on the units that were active for the input.
type Network struct {
	widths []int
	layers []Layer
}

// New builds a network with the given layer widths, e.g. [73, 64, 32, 4]. Weights are
// drawn uniformly from ±sqrt(6/(fanIn+fanOut)) and biases start at zero.
func New(widths []int, src rand.Source) (*Network, error) {
	if len(widths) < 2 {
		return nil, fmt.Errorf("%w: %v", ErrTopology, widths)
	}
	for _, w := range widths {
		if w < 1 {
			return nil, fmt.Errorf("%w: %v", ErrTopology, widths)
		}
	}

	net := &Network{
		widths: append([]int(nil), widths...),
		layers: make([]Layer, len(widths)-1),
	}
	for i := range net.layers {
		fanIn, fanOut := widths[i], widths[i+1]
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}

		data := make([]float64, fanIn*fanOut)
		for j := range data {
			data[j] = dist.Rand()
		}
		net.layers[i] = Layer{
			Weights: mat.NewDense(fanIn, fanOut, data),
			Biases:  mat.NewVecDense(fanOut, nil),
		}
	}
	return net, nil
}

// FromLayers builds a network from existing parameters, e.g. ones returned by Layers.
// Consecutive layers must agree on their widths. The parameters are copied.
func FromLayers(layers []Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrTopology)
	}

	net := &Network{layers: make([]Layer, len(layers))}
	for i, layer := range layers {
		fanIn, fanOut := layer.Weights.Dims()
		if layer.Biases.Len() != fanOut {
			return nil, fmt.Errorf("%w: layer %d has %d outputs and %d biases", ErrShape, i, fanOut, layer.Biases.Len())
		}
		if i == 0 {
			net.widths = append(net.widths, fanIn)
		} else if fanIn != net.widths[i] {
			return nil, fmt.Errorf("%w: layer %d takes %d inputs, previous layer gives %d", ErrShape, i, fanIn, net.widths[i])
		}
		net.widths = append(net.widths, fanOut)
		net.layers[i] = Layer{
			Weights: mat.DenseCopyOf(layer.Weights),
			Biases:  mat.VecDenseCopyOf(layer.Biases),
		}
	}
	return net, nil
}

// Forward propagates input through the network. Parameters are not modified.
func (net *Network) Forward(input []float64) ([]float64, error) {
	acts, _, err := net.propagate(input)
	if err != nil {
		return nil, err
	}
	out := acts[len(acts)-1]
	return append([]float64(nil), out.RawVector().Data...), nil
}

// propagate returns the activation entering each layer plus the final output, and
// each layer's pre-activation.
func (net *Network) propagate(input []float64) (acts, pre []*mat.VecDense, err error) {
	if len(input) != net.widths[0] {
		return nil, nil, fmt.Errorf("%w: input has %d values, network takes %d", ErrShape, len(input), net.widths[0])
	}

	acts = make([]*mat.VecDense, 0, len(net.layers)+1)
	pre = make([]*mat.VecDense, 0, len(net.layers))
	acts = append(acts, mat.NewVecDense(len(input), append([]float64(nil), input...)))

	last := len(net.layers) - 1
	for i, layer := range net.layers {
		z := mat.NewVecDense(net.widths[i+1], nil)
		z.MulVec(layer.Weights.T(), acts[i])
		z.AddVec(z, layer.Biases)
		pre = append(pre, z)

		a := mat.VecDenseCopyOf(z)
		if i != last {
			relu(a)
		}
		acts = append(acts, a)
	}
	return acts, pre, nil
}

// Backward nudges the parameters along outputGradient, scaled by rate:
//
//	output layer:  W[j][k] += rate * g[k] * a[j],  b[k] += rate * g[k]
//	earlier layer: W[j][k] += rate * mean(g) * a[j], b[k] += rate * mean(g), for active units k
//
// where a is the activation entering the layer. The update is computed on copies and
// only committed if every resulting parameter is finite and within ±MaxParam; otherwise
// ErrNonFinite is returned and the parameters are untouched.
func (net *Network) Backward(input, outputGradient []float64, rate float64) error {
	if n := net.widths[len(net.widths)-1]; len(outputGradient) != n {
		return fmt.Errorf("%w: gradient has %d values, network outputs %d", ErrShape, len(outputGradient), n)
	}
	if !finite(outputGradient) || !finite([]float64{rate}) {
		return fmt.Errorf("%w in gradient %v at rate %v", ErrNonFinite, outputGradient, rate)
	}

	acts, pre, err := net.propagate(input)
	if err != nil {
		return err
	}

	last := len(net.layers) - 1
	updated := make([]Layer, len(net.layers))

	grad := mat.NewVecDense(len(outputGradient), append([]float64(nil), outputGradient...))
	updated[last] = step(net.layers[last], rate, acts[last], grad)

	mean := floats.Sum(outputGradient) / float64(len(outputGradient))
	for i := last - 1; i >= 0; i-- {
		shared := mat.NewVecDense(net.widths[i+1], nil)
		for k := 0; k < shared.Len(); k++ {
			if pre[i].AtVec(k) > 0 {
				shared.SetVec(k, mean)
			}
		}
		updated[i] = step(net.layers[i], rate, acts[i], shared)
	}

	for i, layer := range updated {
		if !bounded(layer.Weights.RawMatrix().Data) || !bounded(layer.Biases.RawVector().Data) {
			return fmt.Errorf("%w: layer %d parameters leave ±%g, update dropped", ErrNonFinite, i, MaxParam)
		}
	}
	net.layers = updated
	return nil
}

// step returns a copy of layer moved by rate * (a ⊗ g) and rate * g.
func step(layer Layer, rate float64, a, g *mat.VecDense) Layer {
	next := Layer{
		Weights: mat.DenseCopyOf(layer.Weights),
		Biases:  mat.VecDenseCopyOf(layer.Biases),
	}
	next.Weights.RankOne(next.Weights, rate, a, g)
	next.Biases.AddScaledVec(next.Biases, rate, g)
	return next
}

// Widths returns the layer widths, input first.
func (net *Network) Widths() []int {
	return append([]int(nil), net.widths...)
}

// Layers returns copies of the parameters, for exporters.
func (net *Network) Layers() []Layer {
	layers := make([]Layer, len(net.layers))
	for i, layer := range net.layers {
		layers[i] = Layer{
			Weights: mat.DenseCopyOf(layer.Weights),
			Biases:  mat.VecDenseCopyOf(layer.Biases),
		}
	}
	return layers
}

// ParamCount is the total number of weights and biases.
func (net *Network) ParamCount() (n int) {
	for i := 0; i < len(net.widths)-1; i++ {
		n += net.widths[i]*net.widths[i+1] + net.widths[i+1]
	}
	return
}

func relu(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			v.SetVec(i, 0)
		}
	}
}

func bounded(xs []float64) bool {
	for _, x := range xs {
		if !(math.Abs(x) <= MaxParam) {
			return false
		}
	}
	return true
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
