// Command blockandfocus is the end-user CLI for the BlockAndFocus daemon.
//
// BlockAndFocus is a DNS-level site blocker with a schedule and a math-quiz
// bypass. The CLI talks to a background daemon over a Unix domain socket.
//
// Usage:
//
//	blockandfocus status                    - Show current blocking status
//	blockandfocus block <domain>             - Add a domain to the blocklist
//	blockandfocus unblock <domain>           - Remove a domain from the blocklist
//	blockandfocus list                       - List the current blocklist
//	blockandfocus schedule show              - Show the current schedule
//	blockandfocus bypass request <minutes>   - Request a bypass quiz
//	blockandfocus bypass submit <id> <a...>  - Submit quiz answers
//	blockandfocus bypass cancel              - Cancel an active bypass
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lc/blockandfocus/internal/buildinfo"
	"github.com/lc/blockandfocus/pkg/client"
)

const (
	prodSocketPath = "/var/run/blockandfocus.sock"
	devSocketPath  = "/tmp/blockandfocus-dev.sock"
	callTimeout    = 5 * time.Second
)

func socketPath() string {
	if os.Getenv("BLOCKANDFOCUS_DEV") != "" {
		return devSocketPath
	}
	return prodSocketPath
}

func dial() (*client.Client, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	c, err := client.Dial(ctx, socketPath())
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return c, cancel, nil
}

func main() {
	root := &cobra.Command{
		Use:   "blockandfocus",
		Short: "BlockAndFocus DNS-blocking CLI",
		Long: `BlockAndFocus blocks distracting domains at the DNS level, on a
schedule, with a math-quiz bypass for when you need through.`,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", buildinfo.Version)
			fmt.Printf("commit: %s\n", buildinfo.Commit)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show current blocking status",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			st, err := c.Status()
			if err != nil {
				return err
			}

			if st.BlockingActive {
				color.New(color.FgRed, color.Bold).Println("Blocking: ACTIVE")
			} else {
				color.New(color.FgGreen, color.Bold).Println("Blocking: inactive")
			}
			fmt.Printf("Blocked domains: %d\n", st.BlockedDomainCount)
			fmt.Printf("Queries blocked: %d\n", st.QueriesBlocked)
			fmt.Printf("Queries forwarded: %d\n", st.QueriesForwarded)
			if st.ScheduleEnabled {
				if st.ActiveScheduleRule != "" {
					fmt.Printf("Active schedule rule: %s\n", st.ActiveScheduleRule)
				} else {
					fmt.Println("Schedule enabled, no rule currently active")
				}
			}
			if st.BypassUntil != nil {
				until := time.Unix(*st.BypassUntil, 0)
				color.New(color.FgYellow).Printf("Bypass active until %s\n", until.Format(time.Kitchen))
			}
			return nil
		},
	}

	blockCmd := &cobra.Command{
		Use:   "block <domain>",
		Short: "Add a domain to the blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			if err := c.AddDomain(args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Printf("✓ Blocked %s\n", args[0])
			return nil
		},
	}

	unblockCmd := &cobra.Command{
		Use:   "unblock <domain>",
		Short: "Remove a domain from the blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			if err := c.RemoveDomain(args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Printf("✓ Unblocked %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the current blocklist",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			domains, err := c.GetBlocklist()
			if err != nil {
				return err
			}
			if len(domains) == 0 {
				color.Yellow("No domains on the blocklist.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Domain"})
			table.SetHeaderColor(tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor})
			table.SetBorder(false)
			for _, d := range domains {
				table.Append([]string{d})
			}
			color.New(color.Bold).Println("BLOCKLIST:")
			table.Render()
			return nil
		},
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect the blocking schedule",
	}
	scheduleShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current schedule",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			sched, err := c.GetSchedule()
			if err != nil {
				return err
			}
			if !sched.Enabled {
				color.Yellow("Schedule is disabled; blocking is governed solely by the enabled flag.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Days", "Start", "End"})
			table.SetBorder(false)
			for _, r := range sched.Rules {
				table.Append([]string{r.Name, fmt.Sprint(r.Days), r.StartTime, r.EndTime})
			}
			table.Render()
			return nil
		},
	}
	scheduleCmd.AddCommand(scheduleShowCmd)

	bypassCmd := &cobra.Command{
		Use:   "bypass",
		Short: "Manage the quiz bypass",
	}
	bypassRequestCmd := &cobra.Command{
		Use:   "request <minutes>",
		Short: "Request a bypass quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid minutes: %w", err)
			}

			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			challenge, err := c.RequestBypass(minutes)
			if err != nil {
				return err
			}
			fmt.Printf("Challenge ID: %s\n", challenge.ChallengeID)
			for i, q := range challenge.Questions {
				fmt.Printf("  %d. %s\n", i+1, q)
			}
			return nil
		},
	}
	bypassSubmitCmd := &cobra.Command{
		Use:   "submit <challenge-id> <answer...>",
		Short: "Submit answers for a bypass quiz",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			answers := make([]int, len(args)-1)
			for i, a := range args[1:] {
				n, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("invalid answer %q: %w", a, err)
				}
				answers[i] = n
			}

			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			if err := c.SubmitQuizAnswers(args[0], answers); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Println("✓ Bypass granted")
			return nil
		},
	}
	bypassCancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an active bypass",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, cancel, err := dial()
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			if err := c.CancelBypass(); err != nil {
				return err
			}
			color.New(color.FgGreen).Println("Bypass cancelled")
			return nil
		},
	}
	bypassCmd.AddCommand(bypassRequestCmd, bypassSubmitCmd, bypassCancelCmd)

	root.AddCommand(versionCmd, statusCmd, blockCmd, unblockCmd, listCmd, scheduleCmd, bypassCmd)
	if err := root.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
