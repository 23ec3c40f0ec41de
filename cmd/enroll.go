package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/enrollment"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Manage the people the gate recognizes",
}

var enrollAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Capture a face and register it under NAME",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrollAdd,
}

var enrollRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Delete every identity registered under NAME",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrollRemove,
}

var enrollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered identities",
	Args:  cobra.NoArgs,
	RunE:  runEnrollList,
}

var enrollInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Open the interactive enrollment menu",
	Args:  cobra.NoArgs,
	RunE:  runEnrollInteractive,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.AddCommand(enrollAddCmd, enrollRemoveCmd, enrollListCmd, enrollInteractiveCmd)
}

// newEnroller opens the camera and the embedding client.
func newEnroller(ctx context.Context, cfg *config.Config) (*enrollment.Enroller, error) {
	source, err := openCamera(ctx, cfg, cfg.Camera.Warmup)
	if err != nil {
		return nil, err
	}
	m, err := newMatcher(cfg)
	if err != nil {
		return nil, err
	}
	return enrollment.New(source, m, openStore(cfg)), nil
}

// withSpinner shows a spinner while fn runs, covering the camera warm-up.
func withSpinner(description string, fn func() error) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	err := fn()
	close(done)
	bar.Finish()
	return err
}

func runEnrollAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enroller, err := newEnroller(ctx, cfg)
	if err != nil {
		return err
	}

	name := args[0]
	var registered string
	err = withSpinner("Capturing image, please look at the camera", func() error {
		ident, err := enroller.Enroll(ctx, name)
		if err == nil {
			registered = fmt.Sprintf("%s registered successfully (%s).", ident.Name, ident.ID)
		}
		return err
	})
	if err != nil {
		return errors.New(enrollment.Describe(err))
	}
	fmt.Println(registered)
	return nil
}

func runEnrollRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	removed, err := openStore(cfg).Remove(args[0])
	if err != nil {
		return err
	}
	if !removed {
		fmt.Println("Name not found in database.")
		return nil
	}
	fmt.Printf("%s deleted successfully.\n", args[0])
	return nil
}

func runEnrollList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	identities, err := openStore(cfg).List()
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		fmt.Println("No faces registered yet.")
		return nil
	}
	fmt.Printf("Registered faces: %d\n", len(identities))
	for _, ident := range identities {
		fmt.Printf("  %-8s %s\n", ident.ID, ident.Name)
	}
	return nil
}

func runEnrollInteractive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// no signal context here: Ctrl+C must still end a blocked prompt
	ctx := context.Background()
	enroller, err := newEnroller(ctx, cfg)
	if err != nil {
		return err
	}
	beforeCapture := func() {
		fmt.Println("Capturing image... Please look at the camera.")
	}
	return enrollment.NewMenu(enroller, os.Stdin, os.Stdout, beforeCapture).Run(ctx)
}
