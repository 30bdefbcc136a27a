package inference

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/vision"
)

// Options configures a model handle.
type Options struct {
	// Name is used in logs, usually the layer name
	Name       string
	Path       string
	Threads    int
	UseXNNPACK bool
}

type request struct {
	ctx   context.Context
	fill  FillFunc
	reply chan response
}

type response struct {
	outputs []Tensor
	err     error
}

// Model is a TFLite model owned by a single worker goroutine. The model is
// loaded on first use; a failed load is remembered and returned to every
// later call.
type Model struct {
	opts     Options
	requests chan request
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// owned by the worker goroutine
	model       *tflite.Model
	interpreter *tflite.Interpreter
	delegate    delegates.Delegater
	loaded      bool
	loadErr     error
}

// NewModel starts the worker for a model. Nothing is read from disk until
// the first Run.
func NewModel(opts Options) *Model {
	m := &Model{
		opts:     opts,
		requests: make(chan request),
		quit:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Run sends one inference request to the worker and waits for the result or
// for ctx to end. An abandoned request still completes on the worker.
func (m *Model) Run(ctx context.Context, fill FillFunc) ([]Tensor, error) {
	req := request{ctx: ctx, fill: fill, reply: make(chan response, 1)}

	select {
	case m.requests <- req:
	case <-m.quit:
		return nil, fmt.Errorf("%w: %s model closed", vision.ErrModelUnavailable, m.opts.Name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.outputs, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker and releases the interpreter.
func (m *Model) Close() {
	m.stopOnce.Do(func() {
		close(m.quit)
		m.wg.Wait()
	})
}

func (m *Model) loop() {
	defer m.wg.Done()
	defer m.release()

	for {
		select {
		case <-m.quit:
			return
		case req := <-m.requests:
			outputs, err := m.handle(req)
			req.reply <- response{outputs: outputs, err: err}
		}
	}
}

func (m *Model) handle(req request) (outputs []Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s inference: %v", m.opts.Name, r)
		}
	}()

	if err := req.ctx.Err(); err != nil {
		return nil, err
	}
	if !m.loaded {
		m.loadErr = m.load()
		m.loaded = true
	}
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.invoke(req.fill)
}

func (m *Model) load() error {
	start := time.Now()
	log := GetLogger().With(logger.String("model", m.opts.Name))

	if m.opts.Path == "" {
		return errors.New(fmt.Errorf("%w: no model configured for %s", vision.ErrModelUnavailable, m.opts.Name)).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext("", m.opts.Name).
			Build()
	}

	data, err := os.ReadFile(m.opts.Path)
	if err != nil {
		sentinel := vision.ErrModelLoadFailure
		if os.IsNotExist(err) {
			sentinel = vision.ErrModelUnavailable
		}
		return errors.New(fmt.Errorf("%w: %w", sentinel, err)).
			Component("inference").
			Category(errors.CategoryModelLoad).
			ModelContext(m.opts.Path, m.opts.Name).
			Timing("model-load", time.Since(start)).
			Build()
	}

	m.model = tflite.NewModel(data)
	if m.model == nil {
		return m.loadFailure("cannot load TensorFlow Lite model", len(data), start)
	}

	threads := max(1, m.opts.Threads)
	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	if m.opts.UseXNNPACK {
		m.delegate = xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count
		if m.delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(m.delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("model", m.opts.Name), logger.String("message", msg))
	}, nil)

	m.interpreter = tflite.NewInterpreter(m.model, options)
	if m.interpreter == nil {
		return m.loadFailure("cannot create interpreter", len(data), start)
	}
	if status := m.interpreter.AllocateTensors(); status != tflite.OK {
		return m.loadFailure("tensor allocation failed", len(data), start)
	}

	// TFLite keeps its own copy of the model bytes
	runtime.GC()

	log.Info("model loaded",
		logger.String("path", m.opts.Path),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", m.delegate != nil),
		logger.Duration("took", time.Since(start)))
	return nil
}

func (m *Model) loadFailure(msg string, size int, start time.Time) error {
	return errors.New(fmt.Errorf("%w: %s", vision.ErrModelLoadFailure, msg)).
		Component("inference").
		Category(errors.CategoryModelInit).
		ModelContext(m.opts.Path, m.opts.Name).
		Context("model_size_mb", size/1024/1024).
		Context("use_xnnpack", m.opts.UseXNNPACK).
		Timing("model-init", time.Since(start)).
		Build()
}

func (m *Model) invoke(fill FillFunc) ([]Tensor, error) {
	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	if input.Type() != tflite.Float32 {
		return nil, fmt.Errorf("unsupported input tensor type %v", input.Type())
	}

	if err := fill(tensorShape(input), input.Float32s()); err != nil {
		return nil, err
	}

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.New(fmt.Errorf("tensor invoke failed: %v", status)).
			Component("inference").
			Category(errors.CategoryInference).
			ModelContext(m.opts.Path, m.opts.Name).
			Build()
	}

	count := m.interpreter.GetOutputTensorCount()
	outputs := make([]Tensor, 0, count)
	for i := range count {
		t := m.interpreter.GetOutputTensor(i)
		if t == nil || t.Type() != tflite.Float32 {
			return nil, fmt.Errorf("output tensor %d is not float32", i)
		}
		outputs = append(outputs, copyTensor(tensorShape(t), t.Float32s()))
	}
	return outputs, nil
}

func (m *Model) release() {
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.delegate != nil {
		m.delegate.Delete()
		m.delegate = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}

func tensorShape(t *tflite.Tensor) []int {
	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}
	return shape
}
