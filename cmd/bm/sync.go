package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncDeviceName string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync bookmarks with other devices",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Send queued changes and fetch remote changes once",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		if !a.session.IsAuthenticated() {
			fmt.Println("Not signed in. Run 'bm sync signup' or 'bm sync login <code>'.")
			return
		}
		if err := a.session.FetchNow(cmd.Context()); err != nil {
			exitf("syncing: %s", a.session.LastError())
		}
		fmt.Println(a.styles.Success.Render("Sync complete"))
	},
}

var syncDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Fetch remote changes periodically (foreground)",
	Long: `Run the periodic fetch in the foreground until interrupted.

The interval comes from fetchInterval in the config (default 60s).
Set logFile in the config to write sync logs to a rotating file.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting sync daemon (every %s)\n", a.cfg.Interval())
		fmt.Printf("   Service: %s\n", a.cfg.SyncURL)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := a.session.FetchNow(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Initial fetch failed: %s\n", a.session.LastError())
		}
		a.session.Start(ctx)
		<-ctx.Done()
		a.session.Stop()
	},
}

var syncSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a sync account for this device",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		if err := a.session.CreateAccount(cmd.Context(), syncDeviceName); err != nil {
			exitf("creating account: %s", a.session.LastError())
		}
		fetchAfterSignIn(cmd.Context(), a)
		fmt.Println(a.styles.Success.Render("Account created"))
		fmt.Printf("Recovery code: %s\n", encodeRecoveryCode(a.session.RecoveryCode()))
		fmt.Println("Keep it safe. Other devices sign in with it.")
	},
}

var syncLoginCmd = &cobra.Command{
	Use:   "login <recovery-code>",
	Short: "Sign this device in to an existing account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		code, err := decodeRecoveryCode(args[0])
		if err != nil {
			exitf("%v", err)
		}

		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		if err := a.session.Login(cmd.Context(), code, syncDeviceName); err != nil {
			exitf("signing in: %s", a.session.LastError())
		}
		fetchAfterSignIn(cmd.Context(), a)
		fmt.Println(a.styles.Success.Render("Signed in"))
	},
}

var syncLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign this device out",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		if err := a.session.Disconnect(); err != nil {
			exitf("signing out: %s", a.session.LastError())
		}
		fmt.Println("Signed out")
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.Close()

		state := "signed out"
		if a.session.IsAuthenticated() {
			state = "signed in"
		}
		fmt.Printf("\n%s\n\n", a.styles.Title.Render("Sync Status"))
		fmt.Printf("Service: %s\n", a.cfg.SyncURL)
		fmt.Printf("Account: %s\n", state)
		fmt.Printf("Device: %s\n", a.cfg.DeviceName)
		fmt.Printf("Interval: %s\n", a.cfg.Interval())
		fmt.Printf("Queued: %d of %d\n", a.queue.Depth(), a.queue.Capacity())
		fmt.Println()
	},
}

// fetchAfterSignIn pulls the account's bookmarks right away so a new
// device does not wait for the first tick.
func fetchAfterSignIn(ctx context.Context, a *app) {
	if err := a.session.FetchNow(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Initial fetch failed: %s\n", a.session.LastError())
	}
}

func init() {
	syncSignupCmd.Flags().StringVar(&syncDeviceName, "device", "", "device name (default from config)")
	syncLoginCmd.Flags().StringVar(&syncDeviceName, "device", "", "device name (default from config)")

	syncCmd.AddCommand(syncNowCmd, syncDaemonCmd, syncSignupCmd, syncLoginCmd, syncLogoutCmd, syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
