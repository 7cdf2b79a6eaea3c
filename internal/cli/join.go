package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/Hush/internal/adapters/rtc"
	"github.com/dkeye/Hush/internal/client/localmedia"
	"github.com/dkeye/Hush/internal/client/mesh"
	clientsignal "github.com/dkeye/Hush/internal/client/signal"
	"github.com/dkeye/Hush/internal/client/session"
	"github.com/dkeye/Hush/internal/domain"
	"github.com/dkeye/Hush/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room by name and password, or through an invite link",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		invite, _ := cmd.Flags().GetString("invite")
		room, _ := cmd.Flags().GetString("room")
		password, _ := cmd.Flags().GetString("password")
		if invite == "" && (room == "" || password == "") {
			return errors.New("either --invite or both --room and --password are required")
		}
		if viper.GetString("name") == "" {
			return fmt.Errorf("no display name: pass --name or set name in %s", configFile)
		}
		return nil
	},
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().String("room", "", "room name")
	joinCmd.Flags().String("password", "", "room password, never sent to the server")
	joinCmd.Flags().String("invite", "", "invite link")
	joinCmd.Flags().String("name", "", "display name")
	joinCmd.Flags().Bool("call", false, "join the call as soon as the room is entered")
	_ = viper.BindPFlag("name", joinCmd.Flags().Lookup("name"))
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := clientsignal.Dial(ctx, viper.GetString("server"))
	if err != nil {
		return err
	}
	defer client.Close()

	name := viper.GetString("name")
	con := NewConsole(os.Stdout)
	ctrl := session.New(session.Config{
		Sender:     client,
		View:       con,
		InviteBase: viper.GetString("invite-base"),
		OpenMedia: func(ctx context.Context) (session.LocalMedia, error) {
			m, err := localmedia.Open(ctx, localmedia.Options{
				Audio: viper.GetBool("media.audio"),
				Video: viper.GetBool("media.video"),
			})
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		Transports: func(tracks []webrtc.TrackLocal) (mesh.TransportFactory, error) {
			level := zerolog.WarnLevel
			if viper.GetBool("debug") {
				level = zerolog.DebugLevel
			}
			f, err := rtc.NewFactory(rtc.DefaultWebRTCConfig(viper.GetStringSlice("webrtc.stun")), tracks, level)
			if err != nil {
				return nil, err
			}
			return f.New, nil
		},
	})
	con.OnInvite(func(room domain.RoomID, password string) {
		if err := ctrl.Join(string(room), name, password); err != nil {
			con.Alert(err.Error())
		}
	})

	autoCall, _ := cmd.Flags().GetBool("call")
	received := make(chan struct{})
	go func() {
		defer close(received)
		for msg := range client.Incoming() {
			ctrl.Handle(msg)
			if _, ok := msg.(protocol.RoomUsers); ok && autoCall {
				autoCall = false
				go func() {
					if err := ctrl.JoinCall(ctx); err != nil {
						log.Warn().Err(err).Str("module", "cli").Msg("auto call")
					}
				}()
			}
		}
	}()

	if invite, _ := cmd.Flags().GetString("invite"); invite != "" {
		err = ctrl.Redeem(invite)
	} else {
		room, _ := cmd.Flags().GetString("room")
		password, _ := cmd.Flags().GetString("password")
		err = ctrl.Join(room, name, password)
	}
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	defer ctrl.Leave()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := Exec(ctx, ctrl, con, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				con.Alert(err.Error())
			}
		case <-con.Destroyed():
			return nil
		case <-received:
			return errors.New("connection to server lost")
		case <-ctx.Done():
			return nil
		}
	}
}
