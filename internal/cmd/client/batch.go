package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewBatchCommand constructs the `batch` command group and subcommands.
func NewBatchCommand(baseURL BaseURLFunc) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Batch operations (submit, status, wait, cancel)",
	}
	batchCmd.AddCommand(
		newBatchSubmitCommand(baseURL),
		newBatchEnqueueCommand(baseURL),
		newBatchStatusCommand(baseURL),
		newBatchWaitCommand(baseURL),
		newBatchCancelCommand(baseURL),
		newBatchRecentCommand(baseURL),
		newBatchEventsCommand(baseURL),
	)
	return batchCmd
}

// NewQueueCommand constructs the `queue` command group.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue operations",
	}
	depthCmd := &cobra.Command{
		Use:   "depth",
		Short: "Show pending and processing counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			return getJSON(cmd.OutOrStdout(), baseURL()+"/v1/queues/depth?"+queueQuery(queue).Encode())
		},
	}
	depthCmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	queueCmd.AddCommand(depthCmd)
	return queueCmd
}

func newBatchSubmitCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a batch and wait for its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := submitBody(cmd)
			if err != nil {
				return err
			}
			return postJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/submit", body)
		},
	}
	submitFlags(cmd)
	cmd.Flags().Int64("timeout-ms", 60_000, "How long to wait for the batch before returning a partial result")
	return cmd
}

func newBatchEnqueueCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a batch without waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := submitBody(cmd)
			if err != nil {
				return err
			}
			return postJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/enqueue", body)
		},
	}
	submitFlags(cmd)
	return cmd
}

func newBatchStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live progress for a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			batch, _ := cmd.Flags().GetString("batch")
			q := queueQuery(queue)
			q.Set("batch", batch)
			return getJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/status?"+q.Encode())
		},
	}
	cmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	cmd.Flags().String("batch", "", "Batch id")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newBatchWaitCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until a batch finishes and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			batch, _ := cmd.Flags().GetString("batch")
			timeoutMs, _ := cmd.Flags().GetInt64("timeout-ms")
			q := queueQuery(queue)
			q.Set("batch", batch)
			q.Set("timeoutMs", strconv.FormatInt(timeoutMs, 10))
			return getJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/wait?"+q.Encode())
		},
	}
	cmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	cmd.Flags().String("batch", "", "Batch id")
	cmd.Flags().Int64("timeout-ms", 60_000, "Wait timeout")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newBatchCancelCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a batch's remaining pending items",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			batch, _ := cmd.Flags().GetString("batch")
			body, _ := json.Marshal(map[string]string{"queue": queue, "batchId": batch})
			return postJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/cancel", body)
		},
	}
	cmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	cmd.Flags().String("batch", "", "Batch id")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newBatchRecentCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently finished batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			limit, _ := cmd.Flags().GetInt("limit")
			q := queueQuery(queue)
			q.Set("limit", strconv.Itoa(limit))
			return getJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/recent?"+q.Encode())
		},
	}
	cmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	cmd.Flags().Int("limit", 20, "Max batches to list")
	return cmd
}

func newBatchEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recorded item transitions, optionally for one batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			batch, _ := cmd.Flags().GetString("batch")
			limit, _ := cmd.Flags().GetInt("limit")
			q := queueQuery(queue)
			if batch != "" {
				q.Set("batch", batch)
			}
			q.Set("limit", strconv.Itoa(limit))
			return getJSON(cmd.OutOrStdout(), baseURL()+"/v1/batches/events?"+q.Encode())
		},
	}
	cmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	cmd.Flags().String("batch", "", "Batch id (all batches when empty)")
	cmd.Flags().Int("limit", 100, "Max events to list")
	return cmd
}

func submitFlags(cmd *cobra.Command) {
	cmd.Flags().String("queue", "", "Queue name (default email_enrichment)")
	cmd.Flags().String("batch", "", "Batch id (generated when empty)")
	cmd.Flags().Int32("priority", 0, "Priority for all items; higher runs first")
	cmd.Flags().String("filter", "", "CEL expression selecting which contacts to enqueue")
	cmd.Flags().String("file", "", "JSON file with a contact identity array; - for stdin")
	_ = cmd.MarkFlagRequired("file")
}

// submitBody builds the request body shared by submit and enqueue.
func submitBody(cmd *cobra.Command) ([]byte, error) {
	queue, _ := cmd.Flags().GetString("queue")
	batch, _ := cmd.Flags().GetString("batch")
	priority, _ := cmd.Flags().GetInt32("priority")
	filter, _ := cmd.Flags().GetString("filter")
	file, _ := cmd.Flags().GetString("file")

	contacts, err := readContacts(file)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"queue":    queue,
		"batchId":  batch,
		"priority": priority,
		"filter":   filter,
		"contacts": contacts,
	}
	if cmd.Flags().Lookup("timeout-ms") != nil {
		timeoutMs, _ := cmd.Flags().GetInt64("timeout-ms")
		body["timeoutMs"] = timeoutMs
	}
	return json.Marshal(body)
}

func readContacts(path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var probe []map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("contacts file must hold a JSON array: %w", err)
	}
	return json.RawMessage(data), nil
}

func queueQuery(queue string) url.Values {
	q := url.Values{}
	if queue != "" {
		q.Set("queue", queue)
	}
	return q
}

func getJSON(out io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

func postJSON(out io.Writer, url string, body []byte) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

// printResponse pretty-prints a JSON response body, or the HTTP status for
// empty bodies.
func printResponse(out io.Writer, resp *http.Response) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		fmt.Fprintln(out, "status:", resp.Status)
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return nil
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Fprintln(out, pretty.String())
	} else {
		fmt.Fprintln(out, string(data))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
