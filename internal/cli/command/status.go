package command

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rafter-go/internal/cli/output"
	"github.com/yndnr/rafter-go/internal/server/httpserver/handler"
	"github.com/yndnr/rafter-go/internal/server/meshserver"
)

// StatusCommand shows leadership and per-peer connectivity.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show leadership and peer connectivity",
		Action: showStatus,
	}
}

// LinksCommand lists the established mesh links.
func LinksCommand() *cli.Command {
	return &cli.Command{
		Name:   "links",
		Usage:  "list established links",
		Action: showLinks,
	}
}

// HealthCommand checks that the node answers.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "check node health",
		Action: showHealth,
	}
}

// MetricsCommand prints the node's rafter_ metrics.
func MetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "print rafter metrics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "include runtime and process metrics"},
		},
		Action: showMetrics,
	}
}

type statusView handler.NodeStatus

func (s statusView) Table() *output.Table {
	t := output.NewTable("PEER", "ADDR", "CONNECTED", "INITIATE")
	for _, p := range s.Peers {
		t.AddRow(p.PeerID.String(), p.Addr, strconv.FormatBool(p.Connected), strconv.FormatBool(p.Initiate))
	}
	return t
}

type linksView []meshserver.LinkInfo

func (l linksView) Table() *output.Table {
	t := output.NewTable("PEER", "DIRECTION", "INITIATOR", "REMOTE", "AGE", "ID")
	for _, link := range l {
		age := ""
		if !link.Established.IsZero() {
			age = time.Since(link.Established).Truncate(time.Second).String()
		}
		t.AddRow(link.Peer.String(), link.Direction, link.Initiator.String(), link.RemoteAddr, age, link.ID)
	}
	return t
}

type healthView handler.HealthStatus

func (h healthView) Table() *output.Table {
	t := output.NewTable("STATUS", "VERSION", "CONNECTED")
	t.AddRow(h.Status, h.Version, fmt.Sprintf("%d/%d", h.Connected, h.Peers))
	return t
}

func showStatus(c *cli.Context) error {
	var st handler.NodeStatus
	if err := client(c).GetData(c.Context, "/status", &st); err != nil {
		return err
	}

	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	if flags.Output == output.FormatTable && !flags.NoHeaders {
		leader := "none"
		if st.RaftLeader != 0 {
			leader = st.RaftLeader.String()
		}
		fmt.Fprintf(c.App.Writer, "Node:        %s (peer %s)\n", st.Node, st.PeerID)
		fmt.Fprintf(c.App.Writer, "Leadership:  %s (%d transitions)\n", st.Leadership, st.Transitions)
		fmt.Fprintf(c.App.Writer, "Raft:        %s, leader %s\n\n", st.RaftState, leader)
	}
	return render(c, statusView(st))
}

func showLinks(c *cli.Context) error {
	var st handler.NodeStatus
	if err := client(c).GetData(c.Context, "/status", &st); err != nil {
		return err
	}
	return render(c, linksView(st.Links))
}

func showHealth(c *cli.Context) error {
	var h handler.HealthStatus
	if err := client(c).GetData(c.Context, "/healthz", &h); err != nil {
		return err
	}
	return render(c, healthView(h))
}

func showMetrics(c *cli.Context) error {
	text, err := client(c).GetText(c.Context, "/metrics")
	if err != nil {
		return err
	}
	if c.Bool("all") {
		_, err = fmt.Fprint(c.App.Writer, text)
		return err
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "rafter_") || strings.HasPrefix(line, "# HELP rafter_") || strings.HasPrefix(line, "# TYPE rafter_") {
			fmt.Fprintln(c.App.Writer, line)
		}
	}
	return sc.Err()
}
