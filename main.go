package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/trafficvision/sign-detection-service/detections"
)

const defaultModelFile = "models/gtsrb_model.onnx"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("signdetect", "German traffic sign classification service")

	modelPath := parser.String("m", "model", &argparse.Options{
		Help:    "Path to the ONNX model",
		Default: envOr("MODEL_PATH", defaultModelFile),
	})
	confidence := parser.Float("c", "confidence", &argparse.Options{
		Help:    "Confidence threshold in [0,1]",
		Default: detections.DefaultConfidenceThreshold,
	})
	topK := parser.Int("k", "top", &argparse.Options{
		Help:    "Number of ranked predictions to keep per image",
		Default: detections.DefaultTopK,
	})

	detectCmd := parser.NewCommand("detect", "Classify a single cropped sign image")
	detectImage := detectCmd.String("i", "image", &argparse.Options{
		Required: true,
		Help:     "Path to the image file",
	})
	detectOut := detectCmd.String("o", "output", &argparse.Options{
		Help: "Write the detection record to this JSON file",
	})

	batchCmd := parser.NewCommand("batch", "Classify every image in a directory")
	batchDir := batchCmd.String("d", "dir", &argparse.Options{
		Required: true,
		Help:     "Directory containing images",
	})
	batchOut := batchCmd.String("o", "output", &argparse.Options{
		Help:    "Output JSON report path",
		Default: "output/batch_results.json",
	})

	serveCmd := parser.NewCommand("serve", "Run the HTTP detection service")
	serveAddr := serveCmd.String("a", "addr", &argparse.Options{
		Help:    "Listen address",
		Default: "127.0.0.1:8080",
	})
	servePool := serveCmd.Int("p", "pool", &argparse.Options{
		Help:    "Number of model sessions to pool",
		Default: defaultPoolSize,
	})

	if err := parser.Parse(args); err != nil {
		fmt.Print(parser.Usage(err))
		return 1
	}

	logger := newLogger()
	defer logger.Sync()
	log := logger.Sugar()

	if libPath := resolveSharedLibrary(); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		log.Errorf("failed to initialize ONNX runtime: %v", err)
		return 1
	}
	defer ort.DestroyEnvironment()

	cfg := detections.Config{
		ModelPath:           *modelPath,
		ConfidenceThreshold: *confidence,
		TopK:                *topK,
	}

	switch {
	case detectCmd.Happened():
		return runDetect(log, cfg, *detectImage, *detectOut)
	case batchCmd.Happened():
		return runBatch(log, cfg, *batchDir, *batchOut)
	case serveCmd.Happened():
		return runServe(log, cfg, *serveAddr, *servePool)
	}

	fmt.Print(parser.Usage(nil))
	return 1
}

func runDetect(log *zap.SugaredLogger, cfg detections.Config, imagePath, outputPath string) int {
	detector, cleanup, err := newDetector(log, cfg)
	if err != nil {
		log.Errorf("startup failed: %v", err)
		return 1
	}
	defer cleanup()

	log.Infof("analyzing image: %s", imagePath)
	rec := detector.DetectSign(imagePath)
	printRecord(rec)

	if outputPath != "" {
		if err := writeRecord(rec, outputPath); err != nil {
			log.Errorf("failed to write %s: %v", outputPath, err)
			return 1
		}
		log.Infof("results saved to: %s", outputPath)
	}
	return 0
}

func runBatch(log *zap.SugaredLogger, cfg detections.Config, dir, outputPath string) int {
	detector, cleanup, err := newDetector(log, cfg)
	if err != nil {
		log.Errorf("startup failed: %v", err)
		return 1
	}
	defer cleanup()

	paths, err := listImages(dir)
	if err != nil {
		log.Errorf("scanning %s: %v", dir, err)
		return 1
	}
	if len(paths) == 0 {
		log.Errorf("no image files found in %s", dir)
		return 1
	}
	log.Infof("found %d images to process", len(paths))

	records, summary := detector.DetectBatch(paths)
	report := buildReport(records, summary)
	if err := writeReport(report, outputPath); err != nil {
		log.Errorf("failed to write %s: %v", outputPath, err)
		return 1
	}
	log.Infof("summary: %d/%d successful detections, results saved to %s",
		summary.SuccessfulDetections, summary.TotalImages, outputPath)
	return 0
}

// newDetector loads the model session and wraps it in a detector. The
// returned cleanup destroys the session.
func newDetector(log *zap.SugaredLogger, cfg detections.Config) (*detections.Detector, func(), error) {
	log.Infof("loading model: %s", cfg.ModelPath)
	session, err := detections.NewModelSession(cfg.ModelPath, detections.NumClasses)
	if err != nil {
		return nil, nil, err
	}
	detector, err := detections.NewDetector(cfg, session, detections.GTSRB(), log)
	if err != nil {
		session.Destroy()
		return nil, nil, err
	}
	log.Infof("model loaded, input shape %v", session.InputShape())
	return detector, session.Destroy, nil
}

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if os.Getenv("DEBUG") != "true" {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
