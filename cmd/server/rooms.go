package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/voicerelay/internal/core"
)

func newRoomsCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List live rooms of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			rooms, err := fetchRooms(ctx, server)
			if err != nil {
				return err
			}
			renderRooms(cmd.OutOrStdout(), rooms)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:5000", "server base URL")
	return cmd
}

func fetchRooms(ctx context.Context, server string) ([]core.RoomInfo, error) {
	url := strings.TrimRight(server, "/") + "/api/rooms"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: unexpected status %s", resp.Status)
	}
	var body struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return body.Rooms, nil
}

func renderRooms(w io.Writer, rooms []core.RoomInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room", "Members", "Created"})
	members := 0
	for _, r := range rooms {
		members += r.MemberCount
		t.AppendRow(table.Row{r.ID, r.MemberCount, r.CreatedAt.Format(time.RFC3339)})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rooms", len(rooms)), members, ""})
	t.Render()
}
