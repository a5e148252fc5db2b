// Command server is the single consolidated binary: it loads configuration,
// initializes ONNX Runtime and the detection/embedding models, starts one
// stream worker per configured camera, and serves the Frame Delivery
// Endpoint, all in one process and one signal-driven shutdown path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/persontrack/internal/config"
	"github.com/your-org/persontrack/internal/detector"
	"github.com/your-org/persontrack/internal/httpapi"
	"github.com/your-org/persontrack/internal/observability"
	"github.com/your-org/persontrack/internal/reid"
	"github.com/your-org/persontrack/internal/worker"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.Logging.Level)
	logger.Info("starting persontrack server", "cameras", len(cfg.Cameras), "cpu_cores", runtime.NumCPU())

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	det, emb, err := loadModels(cfg.Detector, logger)
	if err != nil {
		logger.Error("load models", "error", err)
		os.Exit(1)
	}
	defer det.Close()
	defer emb.Close()

	var publisher reid.EventPublisher
	natsPublisher, err := reid.NewNATSPublisher(cfg.ReID.EventsNATSURL, cfg.ReID.EventsSubject, logger)
	if err != nil {
		logger.Warn("connect to nats for reid events — continuing without event publication", "error", err)
	} else if natsPublisher != nil {
		publisher = natsPublisher
		defer natsPublisher.Close()
	}

	overlapHolder := config.NewOverlapGraphHolder(config.NewOverlapGraph(cfg.Overlap))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if abs, err := filepath.Abs(*configPath); err == nil {
		if err := config.WatchOverlapGraph(abs, overlapHolder, logger, ctx.Done()); err != nil {
			logger.Warn("overlap graph hot-reload disabled", "error", err)
		}
	}

	idCounter := newIDFactory()
	registry := reid.NewRegistry(cfg.ReID, overlapHolder, idCounter, publisher)
	go registry.RunDecayLoop(ctx)

	workers := make(map[string]*worker.Worker, len(cfg.Cameras))
	buffers := make(map[string]*worker.FrameBuffer, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		buffers[cam.ID] = &worker.FrameBuffer{}
	}
	for _, cam := range cfg.Cameras {
		w := worker.New(cam, cfg.Tracker, det, emb, registry, buffers[cam.ID], cfg.Server.JPEGQuality, cfg.ReID.LockTimeout, logger)
		workers[cam.ID] = w
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	apiServer := httpapi.NewServer(httpapi.Config{
		APIKey:            cfg.Server.APIKey,
		Registry:          registry,
		Workers:           workers,
		FreshnessBound:    cfg.Server.FreshnessBound,
		StatusTTL:         cfg.Server.StatusTTL,
		StatusLockTimeout: cfg.Server.StatusLockTimeout,
		Logger:            logger,
	})
	apiServer.SetReady(true)
	go apiServer.RunStatsTicker(ctx)

	router := httpapi.NewRouter(apiServer, cfg.Server.APIKey)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("frame delivery endpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()

	for _, w := range workers {
		w.Stop()
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// loadModels builds the shared detector/embedder sessions, preferring the
// configured device and falling back to CPU if CUDA setup fails — a camera
// feed still running in software is better than a process that won't start.
func loadModels(cfg config.DetectorConfig, logger *slog.Logger) (*detector.Detector, *detector.Embedder, error) {
	newSessionOptions := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		if cfg.Device == "cuda:0" {
			cudaOpts, err := ort.NewCUDAProviderOptions()
			if err != nil {
				logger.Warn("cuda provider options unavailable, falling back to cpu", "error", err)
			} else {
				defer cudaOpts.Destroy()
				if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
					logger.Warn("append cuda execution provider failed, falling back to cpu", "error", err)
				}
			}
		}
		return opts, nil
	}

	logger.Info("loading detection model", "path", cfg.ModelPath, "device", cfg.Device)
	detOpts, err := newSessionOptions()
	if err != nil {
		return nil, nil, err
	}
	det, err := detector.NewDetector(cfg.ModelPath, cfg.ConfidenceThresh, cfg.NMSIoUThresh, detOpts)
	detOpts.Destroy()
	if err != nil {
		return nil, nil, fmt.Errorf("load detector: %w", err)
	}

	logger.Info("loading embedding model", "path", cfg.EmbedderModelPath, "device", cfg.Device)
	embOpts, err := newSessionOptions()
	if err != nil {
		det.Close()
		return nil, nil, err
	}
	emb, err := detector.NewEmbedder(cfg.EmbedderModelPath, cfg.EmbeddingDimension, embOpts)
	embOpts.Destroy()
	if err != nil {
		det.Close()
		return nil, nil, fmt.Errorf("load embedder: %w", err)
	}

	return det, emb, nil
}

// newIDFactory returns a process-wide unique global identity id generator.
// Ids are opaque strings (gid-<n>) rather than UUIDs since they only need to
// be unique within one running registry, not across restarts or processes.
func newIDFactory() func() string {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("gid-%d", n.Add(1))
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path for the host OS.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
