// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

var (
	dialerMu  sync.Mutex
	dialerIDs = map[string]string{}
)

// registerDialer registers a custom network with the MySQL driver that dials
// TCP with the given keep-alive interval and optional local bind address.
// Registrations are deduplicated per setting pair since driver registration
// is process-global.
func registerDialer(keepAlive time.Duration, localAddress string) (string, error) {
	dialerMu.Lock()
	defer dialerMu.Unlock()

	key := fmt.Sprintf("%s/%s", keepAlive, localAddress)
	if name, ok := dialerIDs[key]; ok {
		return name, nil
	}

	d := &net.Dialer{KeepAlive: keepAlive}
	if localAddress != "" {
		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(localAddress, "0"))
		if err != nil {
			return "", fmt.Errorf("config: invalid local address %q: %w", localAddress, err)
		}
		d.LocalAddr = addr
	}

	name := fmt.Sprintf("tcp-sigil-%d", len(dialerIDs))
	mysql.RegisterDialContext(name, func(ctx context.Context, addr string) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	})
	dialerIDs[key] = name
	return name, nil
}
