package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/config"
	"github.com/Mohsinsiddi/w3vault/internal/events"
	"github.com/Mohsinsiddi/w3vault/internal/scenario"
	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var (
	simulatePublish bool
	simulateEvents  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Replay a scripted vault and marketplace session",
	Long: `Replay a scenario file on a manual clock and print what happened:
every step with its outcome, closing balances, grants, open listings and
an event tally. The run stops at the first failed step.

With --publish every event is also sent to the configured Redis channel,
where "w3vault index" and "w3vault watch" pick it up.

Examples:
  w3vault simulate team.yaml
  w3vault simulate team.yaml --events
  w3vault simulate team.yaml --publish`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := scenario.Load(args[0])
		if err != nil {
			return err
		}

		opts := []scenario.Option{scenario.WithLogger(log)}
		if simulatePublish {
			client, err := openRedis(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()
			sink := events.NewRedisSink(client, cfg.EventChannel,
				events.WithRedisLogger(log),
				events.WithPublishTimeout(config.RedisDialTimeout))
			// Close flushes what is still queued.
			defer sink.Close()
			opts = append(opts, scenario.WithSink(sink))
		}

		rep, runErr := scenario.Run(cmd.Context(), f, opts...)
		if rep == nil {
			return runErr
		}
		out := cmd.OutOrStdout()
		if _, err := rep.WriteTo(out); err != nil {
			return err
		}
		if simulateEvents {
			writeEventLog(out, rep.Envelopes)
		}
		if simulatePublish {
			fmt.Fprintln(out, ui.Info(fmt.Sprintf("Published %d event(s) to %s", len(rep.Envelopes), cfg.EventChannel)))
		}
		if runErr != nil {
			fmt.Fprintln(out, ui.Err(runErr.Error()))
			return runErr
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("%d step(s) passed", len(rep.Steps))))
		return nil
	},
}

func writeEventLog(w io.Writer, envs []events.Envelope) {
	fmt.Fprintf(w, "\n%s\n", ui.StyleTitle.Render("Event Log"))
	for _, env := range envs {
		writeEventLine(w, env)
	}
}

func writeEventLine(w io.Writer, env events.Envelope) {
	fmt.Fprintf(w, "  %4d  %s  %s  %s\n",
		env.Seq, env.Time.Format("2006-01-02"), ui.KindName(fmt.Sprintf("%-16s", env.Kind())), ui.Summary(env))
}

func init() {
	simulateCmd.Flags().BoolVar(&simulatePublish, "publish", false, "publish events to the configured Redis channel")
	simulateCmd.Flags().BoolVar(&simulateEvents, "events", false, "print every event after the report")
	simulateCmd.SilenceUsage = true
}
