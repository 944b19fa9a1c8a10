package models

import "time"

// GatewayCredentials are the session credentials handed out by the gateway in
// exchange for its security code. They stay valid across restarts.
type GatewayCredentials struct {
	Host      string    `json:"host"`
	Identity  string    `json:"identity"`
	PSK       string    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsZero reports whether no credentials were found.
func (c GatewayCredentials) IsZero() bool {
	return c.Identity == "" || c.PSK == ""
}
