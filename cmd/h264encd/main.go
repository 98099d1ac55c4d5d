package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/h264enc/internal/config"
	"github.com/breeze-rmm/h264enc/internal/encoder"
	"github.com/breeze-rmm/h264enc/internal/logging"

	_ "github.com/breeze-rmm/h264enc/internal/backends/openh264"
	_ "github.com/breeze-rmm/h264enc/internal/backends/simulated"
)

var (
	version  = "0.1.0"
	cfgFile  string
	inputPath string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "h264encd",
	Short: "Stateless H.264 encoder driver",
	Long:  `h264encd drives a backend-agnostic H.264 encoder over a sequence of raw NV12 frames and writes Annex-B output.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Encode frames from an input file to Annex-B output",
	Run: func(cmd *cobra.Command, args []string) {
		runEncode()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("h264encd v%s\n", version)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Open the best available device with the loaded config and print a summary",
	Run: func(cmd *cobra.Command, args []string) {
		printInfo()
	},
}

var initConfigPath string

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a starter config file with default values",
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.WriteDefault(initConfigPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("wrote default config to %s\n", initConfigPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default /etc/h264encd/h264encd.yaml)")
	runCmd.Flags().StringVar(&inputPath, "input", "", "path to a raw NV12 input file (required)")
	runCmd.MarkFlagRequired("input")
	initConfigCmd.Flags().StringVar(&initConfigPath, "out", "h264encd.yaml", "path to write the starter config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load.
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

func runEncode() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	encCfg, err := cfg.EncoderConfig()
	if err != nil {
		log.Error("invalid encoder config", "error", err)
		os.Exit(1)
	}

	enc, err := encoder.OpenBestDevice(encCfg)
	if err != nil {
		log.Error("failed to open encoder device", "error", err)
		os.Exit(1)
	}
	defer enc.Close()

	log.Info("encoder opened",
		"profile", encCfg.Profile,
		"resolution", fmt.Sprintf("%dx%d", encCfg.Resolution.Width, encCfg.Resolution.Height),
		"preferHardware", encCfg.PreferHardware,
	)

	in, err := os.Open(inputPath)
	if err != nil {
		log.Error("failed to open input", "error", err)
		os.Exit(1)
	}
	defer in.Close()

	var out io.Writer = os.Stdout
	if cfg.OutputPath != "" {
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			log.Error("failed to open output", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	frameSize := int(encCfg.Resolution.Width)*int(encCfg.Resolution.Height)*3/2
	buf := make([]byte, frameSize)

	frames := 0
	for {
		if _, err := io.ReadFull(in, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			log.Error("failed to read frame", "error", err)
			os.Exit(1)
		}

		y := append([]byte(nil), buf[:encCfg.Resolution.Width*encCfg.Resolution.Height]...)
		uv := append([]byte(nil), buf[encCfg.Resolution.Width*encCfg.Resolution.Height:]...)
		img := encoder.NewNV12Image(encCfg.Resolution.Width, encCfg.Resolution.Height, y, uv)

		if err := enc.EncodeFrame(img); err != nil {
			log.Error("encode failed", "frame", frames, "error", err)
			os.Exit(1)
		}

		blob, err := enc.WaitResult()
		if err != nil {
			log.Error("wait result failed", "frame", frames, "error", err)
			os.Exit(1)
		}
		if _, err := out.Write(blob); err != nil {
			log.Error("failed to write output", "error", err)
			os.Exit(1)
		}
		frames++
	}

	for {
		blob, err := enc.WaitResult()
		if err != nil {
			log.Error("wait result failed", "error", err)
			os.Exit(1)
		}
		if blob == nil {
			break
		}
		if _, err := out.Write(blob); err != nil {
			log.Error("failed to write output", "error", err)
			os.Exit(1)
		}
	}

	log.Info("encode complete", "frames", frames)
}

func printInfo() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	encCfg, err := cfg.EncoderConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid encoder config: %v\n", err)
		os.Exit(1)
	}

	enc, err := encoder.OpenBestDevice(encCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open encoder device: %v\n", err)
		os.Exit(1)
	}
	defer enc.Close()

	fmt.Printf("Profile: %s\n", encCfg.Profile)
	fmt.Printf("Resolution: %dx%d\n", encCfg.Resolution.Width, encCfg.Resolution.Height)
	fmt.Printf("Rate control: %v (qp %d-%d)\n", encCfg.RateControl, encCfg.MinQP, encCfg.MaxQP)
}
