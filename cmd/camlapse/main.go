package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"camlapse/internal/app"
	"camlapse/internal/config"
	"camlapse/internal/encryption"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads .env files and reads the config. Secrets in .env are
// picked up by Config.ApplyEnv when the app is built.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	if err := app.LoadEnv(".env", filepath.Join(defaults["base_dir"], ".env")); err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a CamlapseApp. The caller must defer a.Close().
func newApp(ctx context.Context, cmd *cobra.Command) (*app.CamlapseApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewCamlapseApp(ctx, cfg, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "camlapse",
	Short:        "Timelapse capture daemon",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.ApplyEnv()

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Capture:       %s every %s (%s)\n", cfg.Capture.Type, cfg.Capture.Interval, cfg.Capture.Device)
		fmt.Printf("Buckets:       %s, boundary %02d:00 %s\n", cfg.Schedule.Granularity, cfg.Schedule.BoundaryHour, cfg.Schedule.Timezone)
		fmt.Printf("Archive:       %s %s\n", cfg.Archive.Type, cfg.Archive.Root)
		fmt.Printf("Video:         %d fps %s (%s)\n", cfg.Video.FrameRate, cfg.Video.Extension, cfg.Video.Codec)
		fmt.Printf("Delivery:      %s (encrypt=%v)\n", cfg.Delivery.Type, cfg.Delivery.Encrypt)
		fmt.Printf("Status server: enabled=%v %s\n", cfg.Server.Enabled, cfg.Server.Addr)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nWARNING: %v\n", err)
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture frames and assemble videos until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(ctx)
	},
}

// buckets command
var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List archived buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		buckets, err := a.Buckets()
		if err != nil {
			return err
		}
		if len(buckets) == 0 {
			fmt.Println("No buckets archived.")
			return nil
		}

		current := a.CurrentBucket().BucketID
		for _, b := range buckets {
			var marks []string
			if b.HasVideo {
				marks = append(marks, "video")
			}
			if b.ID == current {
				marks = append(marks, "open")
			}
			fmt.Printf("%-14s  %5d frame(s)  %s\n", b.ID, b.Frames, strings.Join(marks, ","))
		}
		return nil
	},
}

// assemble command
var assembleCmd = &cobra.Command{
	Use:   "assemble BUCKET",
	Short: "Encode and deliver a bucket now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.Assemble(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("assembly failed: %w", err)
		}
		fmt.Printf("%s: %s (%d frame(s)) %s\n", job.BucketID, job.Status, len(job.Frames), job.VideoPath)
		return nil
	},
}

// deliver command
var deliverCmd = &cobra.Command{
	Use:   "deliver VIDEO",
	Short: "Re-send an encoded video through the delivery channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		if err := a.Deliver(cmd.Context(), absPath); err != nil {
			return err
		}
		fmt.Printf("Delivered %s\n", absPath)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View assembly job history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		bucket, _ := cmd.Flags().GetString("bucket")

		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var jobs []*jobRow
		if bucket != "" {
			records, err := a.BucketHistory(bucket)
			if err != nil {
				return err
			}
			jobs = toRows(records)
		} else {
			records, err := a.History(limit)
			if err != nil {
				return err
			}
			jobs = toRows(records)
		}

		if len(jobs) == 0 {
			fmt.Println("No assembly jobs recorded.")
			return nil
		}
		for _, j := range jobs {
			fmt.Println(j)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the job history database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a copy of the job history database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupHistory(args[0]); err != nil {
			return err
		}
		fmt.Printf("Job history written to %s\n", args[0])
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the age key pair for encrypted delivery",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a passphrase-protected key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := a.Encryptor().Setup(pass); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Println("Key pair created.")
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt FILE [OUTPUT]",
	Short: "Decrypt a delivered video",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		dst := strings.TrimSuffix(src, encryption.EncryptedExt)
		if len(args) == 2 {
			dst = args[1]
		}
		if dst == src {
			return fmt.Errorf("output path required when %s has no %s suffix", src, encryption.EncryptedExt)
		}

		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		dc, err := a.Encryptor().Unlock(pass)
		if err != nil {
			return fmt.Errorf("unlocking key: %w", err)
		}
		if err := encryption.DecryptFile(dc, src, dst); err != nil {
			return err
		}
		fmt.Printf("Decrypted to %s\n", dst)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	dbCmd.AddCommand(dbBackupCmd)
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(deliverCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of jobs to show")
	historyCmd.Flags().StringP("bucket", "b", "", "Show every attempt for one bucket")
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
}
