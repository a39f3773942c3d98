package main

import (
	"context"
	"fmt"
	"time"

	client "github.com/hugolgst/rich-go/client"
)

func initDiscordRPC(ctx context.Context) {
	if err := client.Login("1406171210240360508"); err != nil {
		logDebug("discord rpc login: %v", err)
		return
	}
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			updateDiscordActivity()
			select {
			case <-ctx.Done():
				client.Logout()
				return
			case <-ticker.C:
			}
		}
	}()
}

func updateDiscordActivity() {
	st := sess.Status()
	details := "Browsing servers"
	state := "Idle"
	if st.State == StateStreaming {
		details = "On " + st.Addr
		state = "In match"
		if snap := sess.LastSnapshot(); snap != nil {
			if self, ok := snap.Entities[snap.SelfID]; ok {
				state = fmt.Sprintf("In match, %d frags", self.Frags)
			}
		}
	}
	now := time.Now()
	if err := client.SetActivity(client.Activity{
		State:   state,
		Details: details,
		Timestamps: &client.Timestamps{
			Start: &now,
		},
	}); err != nil {
		logDebug("discord rpc activity: %v", err)
	}
}
