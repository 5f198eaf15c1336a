package cli

import (
	"fmt"
	"time"

	"github.com/rustyeddy/carry/calendar"
	"github.com/rustyeddy/carry/config"
	"github.com/spf13/cobra"
)

func newSessionCmd(rc *RootConfig) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show whether the trading week is open",
		Long: `Report whether protection would run at the given instant: inside the
Monday 06:00 to Saturday 05:59 week of the configured zone and outside the
daily rollover bands.

Example:
  carry session --at 2024-10-05T05:58:00+09:00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			cfg := config.Default()
			if rc.ConfigPath != "" {
				if cfg, err = config.LoadFromFile(rc.ConfigPath); err != nil {
					return err
				}
			}
			s := calendar.NewSession(cfg.Session.UTCOffsetHours)
			printSession(cmd, s, now)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant to check (RFC3339, default now)")
	return cmd
}

func printSession(cmd *cobra.Command, s *calendar.Session, now time.Time) {
	out := cmd.OutOrStdout()
	local := now.In(s.Loc)
	start, end := s.Window(now)

	state := "closed"
	if s.IsOpen(now) {
		state = "open"
	}
	fmt.Fprintf(out, "%s  %s\n", local.Format(time.RFC3339), state)
	fmt.Fprintf(out, "  week:     %s .. %s\n", start.Format("Mon 2006-01-02 15:04"), end.Format("Mon 2006-01-02 15:04"))
	for _, b := range s.Bands {
		fmt.Fprintf(out, "  rollover: %s\n", b)
	}
	if s.InBand(now) {
		fmt.Fprintln(out, "  inside a rollover band")
	}
}
