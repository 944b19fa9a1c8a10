// Package gateway talks to the blind gateway: authentication, the observe
// channel carrying device-updated pushes, and acknowledged commands.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTP paths served by the gateway.
const (
	AuthPath    = "/auth"
	ObservePath = "/observe"
)

// Frame types carried on the observe channel.
const (
	FrameSubscribe     = "subscribe"
	FrameSubscribed    = "subscribed"
	FrameDeviceUpdated = "device_updated"
	FrameCommand       = "command"
	FrameAck           = "ack"
)

const tokenTTL = time.Hour

// AuthRequest exchanges the printed security code for session credentials.
type AuthRequest struct {
	Identity     string `json:"identity"`
	SecurityCode string `json:"security_code"`
}

// AuthResponse carries the pre-shared key bound to Identity.
type AuthResponse struct {
	Identity string `json:"identity"`
	PSK      string `json:"psk"`
}

// DeviceState is a device as reported by the gateway, in native coordinates.
// Nil fields were not part of this push.
type DeviceState struct {
	ID       string `json:"id"`
	Position *int   `json:"position,omitempty"`
	Battery  *int   `json:"battery,omitempty"`
}

// Frame is the JSON envelope of every observe-channel message.
type Frame struct {
	Type     string       `json:"type"`
	ID       string       `json:"id,omitempty"`
	DeviceID string       `json:"device_id,omitempty"`
	Position *int         `json:"position,omitempty"`
	Device   *DeviceState `json:"device,omitempty"`
	OK       bool         `json:"ok,omitempty"`
	Error    string       `json:"error,omitempty"`
}

var errUnknownIdentity = errors.New("unknown identity")

// SignChannelToken builds the bearer token presented when opening the observe channel.
func SignChannelToken(identity, psk string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(psk))
}

// VerifyChannelToken checks a bearer token against the PSK issued to its subject
// and returns that identity.
func VerifyChannelToken(raw string, pskFor func(identity string) (string, bool)) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		sub, err := t.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		psk, ok := pskFor(sub)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownIdentity, sub)
		}
		return []byte(psk), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}
