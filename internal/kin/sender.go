// Package kin talks to the AI dialogue service that voices AI citizens, and
// parses the structured decisions they send back.
package kin

import "context"

//go:generate go tool mockgen -destination=./mocks/sender_mock.go -package=mocks . Sender

// Sender delivers a prompt to a persona ("kin") on a channel and returns its
// free-form reply. addSystem is extra context made available to the persona
// for this message only.
type Sender interface {
	Send(ctx context.Context, kin, channel, prompt string, addSystem map[string]any) (string, error)
}
