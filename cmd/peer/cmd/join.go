package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/jspiers/huddle/internal/adapters/rtc"
	"github.com/jspiers/huddle/internal/client"
	"github.com/jspiers/huddle/internal/domain"
	"github.com/jspiers/huddle/internal/negotiation"
)

var (
	flagServer string
	flagName   string
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and negotiate with its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "signaling server base URL")
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "peer", "display name")
	rootCmd.AddCommand(joinCmd)
}

func joinRoom(ctx context.Context, roomID string) error {
	iceServers, err := client.FetchICEServers(flagServer)
	if err != nil {
		return err
	}
	engineCfg := rtc.ConfigFromICEServers(iceServers)

	c, err := client.Dial(wsURL(flagServer))
	if err != nil {
		return err
	}
	defer c.Close()

	sess := client.NewSession(c, func(remote domain.ConnectionID, onCandidate func(webrtc.ICECandidateInit)) (negotiation.Engine, error) {
		return rtc.NewEngine(engineCfg, remote, onCandidate)
	}, negotiation.DefaultQueueCap)

	return sess.Run(ctx, domain.RoomID(roomID), flagName)
}

func wsURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return fmt.Sprint(u)
}
