package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/phrazzld/mediaforge-api/internal/task"
	"github.com/spf13/cobra"
)

type queueOptions struct {
	url     string
	token   string
	timeout time.Duration
}

func newQueueCommand() *cobra.Command {
	opts := &queueOptions{}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the running, pending and waiting tasks of a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			snap, err := fetchSnapshot(ctx, http.DefaultClient, opts.url, opts.token)
			if err != nil {
				return err
			}
			renderSnapshot(cmd.OutOrStdout(), snap, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080", "base URL of the server")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token (see the token command)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func fetchSnapshot(ctx context.Context, client *http.Client, baseURL, token string) (task.Snapshot, error) {
	var snap task.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/queue", nil)
	if err != nil {
		return snap, fmt.Errorf("build queue request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("fetch queue: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		return snap, fmt.Errorf("fetch queue: server returned %d: %s", resp.StatusCode, body.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode queue snapshot: %w", err)
	}
	return snap, nil
}

// renderSnapshot prints one table row per task. Times are relative to now.
func renderSnapshot(w io.Writer, snap task.Snapshot, now time.Time) {
	fmt.Fprintf(w, "Running %d/%d, pending %d, waiting %d, watchers %d\n",
		snap.RunningCount, snap.MaxConcurrency, len(snap.Pending), len(snap.Waiting), snap.Watchers)

	if len(snap.Running)+len(snap.Pending)+len(snap.Waiting) == 0 {
		fmt.Fprintln(w, "No tasks in flight.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"State", "Task", "Kind", "Detail", "When"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range snap.Running {
		table.Append([]string{
			color.GreenString("running"),
			r.TaskID.String(),
			r.Kind,
			externalDetail(r.ExternalID, r.Retries),
			"",
		})
	}
	for _, p := range snap.Pending {
		table.Append([]string{
			color.YellowString("pending"),
			p.TaskID.String(),
			p.Kind,
			"#" + strconv.Itoa(p.Position) + " priority " + strconv.Itoa(p.Priority),
			"submitted " + humanize.RelTime(p.SubmittedAt, now, "ago", "from now"),
		})
	}
	for _, wt := range snap.Waiting {
		table.Append([]string{
			color.RedString("waiting"),
			wt.TaskID.String(),
			wt.Kind,
			"retry " + strconv.Itoa(wt.Retries),
			"next attempt " + humanize.RelTime(wt.NextAttemptAt, now, "ago", "from now"),
		})
	}
	table.Render()
}

func externalDetail(externalID string, retries int) string {
	detail := "launching"
	if externalID != "" {
		detail = "job " + externalID
	}
	if retries > 0 {
		detail += " (retry " + strconv.Itoa(retries) + ")"
	}
	return detail
}
