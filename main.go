package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pet-video-pipeline/config"
	"pet-video-pipeline/pipeline"
	"pet-video-pipeline/upload"
)

func main() {
	_ = godotenv.Load()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	duration := flag.Int("duration", 0, "target video duration in seconds (0 = config default)")
	fps := flag.Int("fps", 0, "output frame rate (0 = config default)")
	publish := flag.Bool("publish", false, "upload the final video to YouTube after assembly")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] \"<prompt>\" <pet-photo> [<pet-photo>...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}
	prompt := args[0]
	imagePaths := args[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	targetDuration := cfg.Pipeline.TargetDurationSec
	if *duration > 0 {
		targetDuration = *duration
	}
	frameRate := cfg.Pipeline.FPS
	if *fps > 0 {
		frameRate = *fps
	}

	gen, err := pipeline.New(cfg)
	if err != nil {
		logrus.Fatalf("initialise pipeline: %v", err)
	}

	state, err := gen.Run(context.Background(), pipeline.RunOptions{
		ImagePaths:        imagePaths,
		OriginPrompt:      prompt,
		TargetDurationSec: targetDuration,
		FPS:               frameRate,
	})
	if err != nil {
		logrus.Errorf("pipeline failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("Final video: %s\n", state.FinalVideo.LocalPath)

	if *publish {
		if err := publishVideo(cfg, state.FinalVideo.LocalPath, prompt); err != nil {
			logrus.Errorf("publish failed: %v", err)
			os.Exit(1)
		}
	}
}

func publishVideo(cfg *config.Config, videoFile, prompt string) error {
	meta := upload.Metadata{
		Title:       titleFromPrompt(prompt),
		Description: prompt,
		Tags:        []string{"pets", "ai", "animation"},
	}
	videoID, videoURL, err := upload.New(cfg).Run(context.Background(), videoFile, meta)
	if err != nil {
		return err
	}
	return upload.LogUpload(cfg.Paths.Output, videoID, videoURL, videoFile, meta)
}

func titleFromPrompt(prompt string) string {
	title := strings.TrimSpace(prompt)
	if title == "" {
		return "A Whimsical Pet Short"
	}
	runes := []rune(title)
	if len(runes) > 90 {
		title = string(runes[:90])
	}
	return title
}
