package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/NeillJohnston/macropinna/internal/auth"
	"github.com/NeillJohnston/macropinna/internal/config"
	"github.com/NeillJohnston/macropinna/internal/device"
	"github.com/NeillJohnston/macropinna/internal/mdns"
	"github.com/NeillJohnston/macropinna/internal/netaddr"
)

// parseClientFlags parses the shared client flags and returns the
// remaining positional arguments. ok is false when the command should exit
// with code.
func parseClientFlags(name, summary string, args []string, stderr io.Writer) (f *clientFlags, rest []string, code int, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	f = &clientFlags{}
	f.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: macropinna-remote %s [options]\n\n%s\n\nOptions:\n", name, summary)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, 0, false
		}
		return nil, nil, 1, false
	}
	return f, fs.Args(), 0, true
}

func writeJSONOutput(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// formatAgo formats a past time relative to now.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatAgo(now, t time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func printPending(w io.Writer, list []device.PendingInfo, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No devices waiting for approval.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tNAME\tAGENT\tCODE\tWAITING SINCE")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.UUID, p.Name, p.Agent, auth.FormatCode(p.Code), formatAgo(now, p.CreatedAt))
	}
	tw.Flush()
}

func printActive(w io.Writer, list []device.ActiveInfo, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No devices connected.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tNAME\tAGENT\tCONNECTED")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.UUID, a.Name, a.Agent, formatAgo(now, a.ConnectedAt))
	}
	tw.Flush()
}

func runPending(args []string, stdout, stderr io.Writer) int {
	f, _, code, ok := parseClientFlags("pending", "List devices waiting for approval, with their pairing codes.", args, stderr)
	if !ok {
		return code
	}

	client, err := newControlClient(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	list, err := client.pending()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if f.JSON {
		writeJSONOutput(stdout, list)
		return 0
	}
	printPending(stdout, list, time.Now())
	return 0
}

func runActive(args []string, stdout, stderr io.Writer) int {
	f, _, code, ok := parseClientFlags("active", "List connected devices.", args, stderr)
	if !ok {
		return code
	}

	client, err := newControlClient(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	list, err := client.active()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if f.JSON {
		writeJSONOutput(stdout, list)
		return 0
	}
	printActive(stdout, list, time.Now())
	return 0
}

// runDecision implements approve and reject. It exits 1 if the device was
// not pending, so scripts can tell a stale UUID apart.
func runDecision(args []string, approve bool, stdout, stderr io.Writer) int {
	name, verb := "reject", "rejected"
	if approve {
		name, verb = "approve", "approved"
	}

	f, rest, code, ok := parseClientFlags(name+" <uuid>", "Resolve a pending device. Check the pairing code shown on the device first.", args, stderr)
	if !ok {
		return code
	}
	if len(rest) != 1 {
		fmt.Fprintf(stderr, "Usage: macropinna-remote %s <uuid>\n", name)
		return 1
	}
	id, err := uuid.Parse(rest[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid device id %q\n", rest[0])
		return 1
	}

	client, err := newControlClient(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	resolved, err := client.decide(id.String(), approve)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if f.JSON {
		writeJSONOutput(stdout, resolved)
	}
	if !resolved {
		if !f.JSON {
			fmt.Fprintf(stderr, "Device %s is not waiting for approval.\n", id)
		}
		return 1
	}
	if !f.JSON {
		fmt.Fprintf(stdout, "Device %s %s.\n", id, verb)
	}
	return 0
}

// describeEvent renders one /api/events frame for humans.
func describeEvent(data []byte) string {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		switch device.EventKind(kind) {
		case device.EventRefreshPending:
			return "pending devices changed"
		case device.EventRefreshActive:
			return "active devices changed"
		}
		return kind
	}

	var connected map[string]struct {
		UUID  string       `json:"uuid"`
		Name  string       `json:"name"`
		Agent device.Agent `json:"agent"`
	}
	if err := json.Unmarshal(data, &connected); err == nil {
		if c, ok := connected[string(device.EventConnected)]; ok {
			return fmt.Sprintf("device %q (%s) connected as %s", c.Name, c.Agent, c.UUID)
		}
	}
	return string(data)
}

func runWatch(args []string, stdout, stderr io.Writer) int {
	f, _, code, ok := parseClientFlags("watch", "Stream pairing events until interrupted. New pending devices are listed with their codes.", args, stderr)
	if !ok {
		return code
	}

	client, err := newControlClient(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.events(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Fprintln(stderr, "Watching for pairing events. Press Ctrl+C to stop.")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			fmt.Fprintf(stderr, "Event stream closed: %v\n", err)
			return 1
		}

		if f.JSON {
			fmt.Fprintln(stdout, string(data))
			continue
		}
		fmt.Fprintf(stdout, "%s  %s\n", time.Now().Format("15:04:05"), describeEvent(data))

		var kind string
		if json.Unmarshal(data, &kind) == nil && device.EventKind(kind) == device.EventRefreshPending {
			if list, err := client.pending(); err == nil && len(list) > 0 {
				printPending(stdout, list, time.Now())
			}
		}
	}
}

func runURLs(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("urls", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &clientFlags{}
	f.register(fs)
	qr := fs.Bool("qr", false, "Display each URL as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: macropinna-remote urls [options]\n\nShow the URLs a device on the network can open.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	urls, err := lookupURLs(f)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if f.JSON {
		writeJSONOutput(stdout, urls)
		return 0
	}
	if len(urls) == 0 {
		fmt.Fprintln(stdout, "No network interfaces found. Is this machine online?")
		return 0
	}
	for _, u := range urls {
		if *qr {
			DisplayURLQRCode(stdout, u)
		} else {
			DisplayURL(stdout, u)
		}
	}
	return 0
}

// lookupURLs asks the running server and falls back to reading the
// interfaces here with the configured port.
func lookupURLs(f *clientFlags) ([]netaddr.RemoteURL, error) {
	if client, err := newControlClient(f); err == nil {
		if urls, err := client.urls(); err == nil {
			return urls, nil
		}
	}

	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return netaddr.RemoteURLs(port)
}

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: macropinna-remote discover [options]\n\nFind hosts advertising %s on the local network.\n\nOptions:\n", mdns.ServiceType)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		if hosts == nil {
			hosts = []mdns.DiscoveredHost{}
		}
		writeJSONOutput(stdout, hosts)
		return 0
	}
	if len(hosts) == 0 {
		fmt.Fprintln(stdout, "No hosts found.")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tFINGERPRINT")
	for _, h := range hosts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Name, h.URL(), h.Fingerprint)
	}
	tw.Flush()
	return 0
}
